package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
)

// tierTemplate applies a security-validated template directly. No external
// calls: when this tier accepts, the message costs nothing to process.
func (e *Engine) tierTemplate(ctx context.Context, r *run) (*Candidate, error) {
	if r.cls.Unresolved() {
		return nil, nil
	}

	tmpl, err := e.store.GetTemplate(ctx, r.cls.Institution, r.cls.Family)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("template lookup: %w", err)
	}

	if !tmpl.EligibleForDirectUse(e.cfg.TemplateMinConfidence) {
		return nil, nil
	}

	cand, err := e.applyTemplate(tmpl, r.normalized)
	if err != nil || cand == nil {
		return nil, err
	}

	// A full template hit carries exactly the template's configured
	// confidence; partial hits fall through to tier 2.
	cand.Confidence = tmpl.Confidence
	cand.TemplateID = &tmpl.ID
	return cand, nil
}

// tierStructural extracts with generic structural heuristics, borrowing a
// near-match template for the same institution when one exists. Local
// compute only.
func (e *Engine) tierStructural(ctx context.Context, r *run) (*Candidate, error) {
	if r.cls.Unresolved() {
		return nil, nil
	}

	// Try a fuzzy near-match template first: same institution, different
	// family, applied with a confidence penalty.
	templates, err := e.store.GetTemplatesByInstitution(ctx, r.cls.Institution)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("template lookup: %w", err)
	}
	for i := range templates {
		tmpl := &templates[i]
		if !tmpl.IsActive || !tmpl.SecurityValidated {
			continue
		}
		cand, applyErr := e.applyTemplate(tmpl, r.normalized)
		if applyErr != nil || cand == nil {
			continue
		}
		cand.Confidence = tmpl.Confidence - e.cfg.FuzzyPenalty
		cand.TemplateID = &tmpl.ID
		return cand, nil
	}

	return e.heuristicExtract(r.normalized, 0.85)
}

// tierSynthesis asks a model to describe the message structure, converts
// the description into declarative rules under the synthesis guard, and
// applies those rules locally. One external inference call.
func (e *Engine) tierSynthesis(ctx context.Context, r *run) (*Candidate, error) {
	if r.cls.TransactionLikelihood < e.cfg.LikelihoodThreshold {
		return nil, nil
	}
	if r.normalized.Tree == nil {
		// Nothing structural to synthesize against
		return nil, nil
	}

	prompt := e.synthesisPrompt(r.normalized)
	resp, err := e.inferrer.ProposeRules(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("rule proposal: %w", err)
	}

	institution := r.cls.Institution
	if institution == "" {
		institution = strings.ToLower(strings.TrimSpace(r.normalized.Message.Sender))
	}

	tmpl, err := e.guard.Synthesize(institution, r.cls.Family, resp.Raw, r.normalized)
	if err != nil {
		// Rejected proposals are discarded, never sanitized and retried
		r.synthesis = SynthesisRejected
		e.logger.Info("synthesis proposal rejected",
			"message_id", r.normalized.Message.ProviderID,
			"error", err)
		return nil, nil
	}
	r.synthesis = SynthesisAccepted

	if saveErr := e.store.SaveTemplate(ctx, tmpl); saveErr != nil {
		e.logger.Error("failed to persist synthesized template", "error", saveErr)
	}

	cand, err := e.applyTemplate(tmpl, r.normalized)
	if err != nil || cand == nil {
		return nil, err
	}
	cand.Confidence = tmpl.Confidence
	cand.Cost = resp.Cost
	if tmpl.ID != 0 {
		cand.TemplateID = &tmpl.ID
	}
	return cand, nil
}

// tierDiscovery asks the model for a direct structured-field extraction.
// The richest call, used when everything else failed; its result always
// queues for template-synthesis review.
func (e *Engine) tierDiscovery(ctx context.Context, r *run) (*Candidate, error) {
	prompt := e.discoveryPrompt(r.normalized)
	resp, err := e.inferrer.ExtractFields(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("discovery extraction: %w", err)
	}

	amount, err := ParseAmount(resp.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedResponse, err)
	}

	cand := &Candidate{
		Amount:    amount,
		Currency:  resp.Currency,
		Merchant:  normalize.CleanMerchant(resp.Merchant),
		Reference: resp.Reference,
		Location:  resp.Location,
		Cost:      resp.Cost,
	}

	if resp.Date != "" {
		if date, dateErr := ParseDate(resp.Date); dateErr == nil {
			cand.Date = date
		}
	}
	if cand.Date.IsZero() {
		cand.Date = r.normalized.Message.ReceivedAt
	}

	// Discovery confidence tops out at 0.75
	cand.Confidence = resp.Confidence
	if cand.Confidence > 0.75 {
		cand.Confidence = 0.75
	}

	return cand, nil
}

// applyTemplate evaluates a template's field rules against the message.
// Selectors run inside the sandboxed interpreter; fields whose selector
// times out are forced empty with zero contribution, never a crash. Returns
// nil when the amount cannot be resolved.
func (e *Engine) applyTemplate(tmpl *model.Template, n *normalize.Normalized) (*Candidate, error) {
	values := make(map[string]string, len(tmpl.Rules))

	for name, rule := range tmpl.Rules {
		value := e.guard.ExtractField(rule, n)
		if rule.Pattern != "" && value != "" {
			matched, err := common.MatchRegex(rule.Pattern, value)
			if err != nil || !matched {
				// Extract the matching portion instead when the rule
				// pattern narrows a wider selector hit
				if sub := extractSubmatch(rule.Pattern, value); sub != "" {
					value = sub
				} else {
					value = ""
				}
			}
		}
		values[name] = strings.TrimSpace(value)
	}

	if values["amount"] == "" {
		return nil, nil
	}

	amount, err := ParseAmount(values["amount"])
	if err != nil {
		return nil, nil
	}

	cand := &Candidate{
		Amount:    amount,
		Currency:  values["currency"],
		Merchant:  normalize.CleanMerchant(values["merchant"]),
		Reference: values["reference"],
		Location:  values["location"],
	}

	if cand.Currency == "" {
		cand.Currency = DetectCurrency(values["amount"] + " " + n.Text)
	}

	if values["date"] != "" {
		if date, dateErr := ParseDate(values["date"]); dateErr == nil {
			cand.Date = date
		}
	}
	if cand.Date.IsZero() {
		cand.Date = n.Message.ReceivedAt
	}

	// Every typed rule must have resolved for a full hit
	for name, rule := range tmpl.Rules {
		if rule.Type != model.FieldTypeText && values[name] == "" && name != "currency" {
			return nil, nil
		}
	}

	return cand, nil
}

// heuristicExtract pulls fields out of plain text with the generic literal
// patterns. Confidence scales with field coverage from the given base.
func (e *Engine) heuristicExtract(n *normalize.Normalized, base float64) (*Candidate, error) {
	rawAmount := FindAmount(n.Text)
	if rawAmount == "" {
		rawAmount = FindAmount(n.Subject)
	}
	if rawAmount == "" {
		return nil, nil
	}

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, nil
	}

	cand := &Candidate{
		Amount:    amount,
		Currency:  DetectCurrency(n.Text),
		Merchant:  normalize.CleanMerchant(FindMerchant(n.Text)),
		Reference: FindReference(n.Text),
	}

	coverage := 0.6 // amount alone
	if rawDate := FindDate(n.Text); rawDate != "" {
		if date, dateErr := ParseDate(rawDate); dateErr == nil {
			cand.Date = date
			coverage += 0.2
		}
	}
	if cand.Date.IsZero() {
		cand.Date = n.Message.ReceivedAt
	}
	if cand.Merchant != "" {
		coverage += 0.2
	}

	cand.Confidence = base * coverage
	return cand, nil
}

func (e *Engine) synthesisPrompt(n *normalize.Normalized) string {
	var sb strings.Builder
	sb.WriteString("Analyze this banking notification and propose declarative extraction rules.\n")
	sb.WriteString("Respond with JSON only, in exactly this schema:\n")
	sb.WriteString(`{"fields":{"amount":{"selector":"<structural selector>","pattern":"<optional regex>"}, ...}}` + "\n")
	sb.WriteString("Allowed field names: amount, currency, date, merchant, reference, location.\n")
	sb.WriteString("Selector grammar: whitespace-separated steps, '>' for direct child, each step tag[#id][.class][:nth(n)], optional trailing @attr.\n\n")
	sb.WriteString("Subject: ")
	sb.WriteString(n.Subject)
	sb.WriteString("\n\nHTML:\n")
	sb.WriteString(e.guard.BoundInput(n.Message.HTMLBody))
	return sb.String()
}

func (e *Engine) discoveryPrompt(n *normalize.Normalized) string {
	var sb strings.Builder
	sb.WriteString("Extract the transaction fields from this banking notification.\n")
	sb.WriteString("Respond with JSON only, in exactly this schema:\n")
	sb.WriteString(`{"amount":"","currency":"","date":"","merchant":"","reference":"","location":"","confidence":0.0}` + "\n")
	sb.WriteString("Keep the amount exactly as written in the message. Use YYYY-MM-DD for the date. Confidence is your calibrated trust in the extraction, 0 to 1.\n\n")
	sb.WriteString("Subject: ")
	sb.WriteString(n.Subject)
	sb.WriteString("\nReceived: ")
	sb.WriteString(n.Message.ReceivedAt.Format(time.RFC3339))
	sb.WriteString("\n\nBody:\n")
	sb.WriteString(e.guard.BoundInput(n.Text))
	return sb.String()
}

// extractSubmatch returns the first capture group (or whole match) of the
// pattern within value, used when a validation pattern doubles as a
// narrowing extractor.
func extractSubmatch(pattern, value string) string {
	re, err := compileCached(pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return m[0]
}
