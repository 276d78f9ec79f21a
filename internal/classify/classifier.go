// Package classify identifies the likely originating institution and
// transaction-type family for a normalized message.
package classify

import (
	"strings"
	"sync"

	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
)

// Signal weights for institution identification. Sender-address match is
// least ambiguous; content signatures are most prone to false positives
// from promotional mail.
const (
	weightSender    = 0.5
	weightDomain    = 0.3
	weightSignature = 0.2
)

// Likelihood combination: institution identity dominates family labeling.
const (
	likelihoodInstitutionWeight = 0.6
	likelihoodFamilyWeight      = 0.4
)

// Classifier identifies message sources against a registry of known
// institutions. Safe for concurrent use; the registry is read-mostly.
type Classifier struct {
	institutions []model.Institution
	mu           sync.RWMutex
}

// NewClassifier creates a classifier over the given institution registry.
func NewClassifier(institutions []model.Institution) *Classifier {
	return &Classifier{institutions: institutions}
}

// Reload replaces the institution registry.
func (c *Classifier) Reload(institutions []model.Institution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.institutions = institutions
}

// Classify derives a Classification for one normalized message. It never
// fails: unresolved identification yields an empty institution, family
// "unknown", and a low transaction likelihood.
func (c *Classifier) Classify(n *normalize.Normalized) model.Classification {
	c.mu.RLock()
	institutions := c.institutions
	c.mu.RUnlock()

	sender := strings.ToLower(strings.TrimSpace(n.Message.Sender))
	content := strings.ToLower(n.Subject + "\n" + n.Text)

	var best model.Institution
	var bestScore float64

	for _, inst := range institutions {
		if !inst.IsActive {
			continue
		}
		score := weightSender*senderScore(sender, inst.Senders) +
			weightDomain*domainScore(sender, inst.Domains) +
			weightSignature*signatureScore(content, inst.Signatures)
		if score > bestScore {
			bestScore = score
			best = inst
		}
	}

	cls := model.Classification{
		Family:       model.FamilyUnknown,
		FamilyScores: scoreFamilies(sender, strings.ToLower(n.Subject), content),
	}

	// A bare signature hit alone is not identification
	if bestScore > weightSignature {
		cls.Institution = best.Name
		cls.InstitutionConfidence = bestScore
	}

	for family, score := range cls.FamilyScores {
		if score > cls.FamilyConfidence {
			cls.Family = family
			cls.FamilyConfidence = score
		}
	}

	cls.TransactionLikelihood = likelihoodInstitutionWeight*cls.InstitutionConfidence +
		likelihoodFamilyWeight*cls.FamilyConfidence

	return cls
}

// senderScore matches the sender address against known institution senders.
// Exact match wins outright; a shared local part is a weaker fuzzy match.
func senderScore(sender string, known []string) float64 {
	if sender == "" {
		return 0
	}
	local := sender
	if at := strings.IndexByte(sender, '@'); at > 0 {
		local = sender[:at]
	}

	var best float64
	for _, k := range known {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if sender == k {
			return 1.0
		}
		if at := strings.IndexByte(k, '@'); at > 0 && k[:at] == local {
			if best < 0.7 {
				best = 0.7
			}
		}
	}
	return best
}

// domainScore matches the sender's domain, including subdomains, against
// known institution domains.
func domainScore(sender string, domains []string) float64 {
	at := strings.IndexByte(sender, '@')
	if at < 0 {
		return 0
	}
	domain := sender[at+1:]

	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return 1.0
		}
	}
	return 0
}

// signatureScore checks for fixed content markers known to appear in an
// institution's messages.
func signatureScore(content string, signatures []string) float64 {
	matched := 0
	for _, sig := range signatures {
		sig = strings.ToLower(strings.TrimSpace(sig))
		if sig != "" && strings.Contains(content, sig) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	if matched == 1 {
		return 0.6
	}
	return 1.0
}
