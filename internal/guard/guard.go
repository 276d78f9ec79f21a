// Package guard is the security boundary between language-model output and
// deterministic extraction. The only data a model may contribute toward
// future extraction is a bounded declarative configuration: one structural
// selector and one optional validation pattern per allowlisted field name.
// Nothing a model returns is ever executed as code.
package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/selector"
)

// allowedFields is the fixed allow-list of field names a proposal may bind.
var allowedFields = map[string]model.FieldType{
	"amount":    model.FieldTypeAmount,
	"currency":  model.FieldTypeCurrency,
	"date":      model.FieldTypeDate,
	"merchant":  model.FieldTypeText,
	"reference": model.FieldTypeText,
	"location":  model.FieldTypeText,
}

// denylist holds substrings associated with script injection, URI-scheme
// execution, or expression evaluation. This is a syntactic check, not a
// semantic interpreter: any hit rejects the proposal outright.
var denylist = []string{
	"javascript:",
	"vbscript:",
	"data:text/html",
	"<script",
	"</script",
	"eval(",
	"expression(",
	"function(",
	"settimeout(",
	"document.",
	"window.",
	"onerror=",
	"onload=",
	"srcdoc",
	"\\x",
	"\\u00",
}

const (
	maxPatternLength = 200
	defaultMaxInput  = 8192
	synthConfidence  = 0.8
	synthAcceptFloor = 0.8
)

// Guard validates model rule proposals and converts accepted ones into
// templates that start life unvalidated.
type Guard struct {
	interp   *selector.Interpreter
	logger   *slog.Logger
	maxInput int
}

// NewGuard creates a synthesis guard using the given sandboxed interpreter.
func NewGuard(interp *selector.Interpreter, maxInput int, logger *slog.Logger) *Guard {
	if maxInput <= 0 {
		maxInput = defaultMaxInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{interp: interp, maxInput: maxInput, logger: logger}
}

// BoundInput truncates model input to prevent unbounded-cost prompts.
func (g *Guard) BoundInput(s string) string {
	if len(s) <= g.maxInput {
		return s
	}
	return s[:g.maxInput]
}

// fieldProposal is the only shape accepted per field. Extra keys, nested
// structures, and non-string values all fail decoding.
type fieldProposal struct {
	Selector string `json:"selector"`
	Pattern  string `json:"pattern,omitempty"`
}

type proposal struct {
	Fields map[string]fieldProposal `json:"fields"`
}

// Synthesize converts a raw model proposal into an unvalidated template.
// Rejection is terminal for the proposal: callers must discard it and fall
// through to discovery-mode extraction, never sanitize and retry.
func (g *Guard) Synthesize(institution string, family model.Family, raw string, sample *normalize.Normalized) (*model.Template, error) {
	parsed, err := g.parseStrict(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSynthesisRejected, err)
	}

	rules := make(map[string]model.FieldRule, len(parsed.Fields))
	for name, field := range parsed.Fields {
		fieldType, ok := allowedFields[name]
		if !ok {
			return nil, fmt.Errorf("%w: field %q not in allow-list", common.ErrSynthesisRejected, name)
		}

		if err := g.checkDenylist(field.Selector); err != nil {
			return nil, err
		}
		if err := g.checkDenylist(field.Pattern); err != nil {
			return nil, err
		}

		if _, err := selector.Parse(field.Selector); err != nil {
			return nil, fmt.Errorf("%w: selector for %q: %v", common.ErrSynthesisRejected, name, err)
		}

		if field.Pattern != "" {
			if len(field.Pattern) > maxPatternLength {
				return nil, fmt.Errorf("%w: pattern for %q exceeds %d chars", common.ErrSynthesisRejected, name, maxPatternLength)
			}
			if _, err := regexp.Compile(field.Pattern); err != nil {
				return nil, fmt.Errorf("%w: pattern for %q: %v", common.ErrSynthesisRejected, name, err)
			}
		}

		rules[name] = model.FieldRule{
			Selector: field.Selector,
			Pattern:  field.Pattern,
			Type:     fieldType,
		}
	}

	if _, ok := rules["amount"]; !ok {
		return nil, fmt.Errorf("%w: proposal binds no amount field", common.ErrSynthesisRejected)
	}

	if err := g.trialRun(rules, sample); err != nil {
		return nil, err
	}

	now := time.Now()
	return &model.Template{
		Institution:       institution,
		Family:            family,
		Version:           1,
		Rules:             rules,
		Confidence:        synthConfidence,
		AcceptThreshold:   synthAcceptFloor,
		SecurityValidated: false,
		Provenance:        model.ProvenanceSynthesized,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ExtractField evaluates one declarative rule against a normalized message
// inside the sandbox. Structural selection runs first; when the tree is
// unavailable or the selector matches nothing, the validation pattern doubles
// as a plain-text extractor. A selector timeout forces the field empty
// rather than failing the message.
func (g *Guard) ExtractField(rule model.FieldRule, n *normalize.Normalized) string {
	if n.Tree != nil && rule.Selector != "" {
		if q, err := selector.Parse(rule.Selector); err == nil {
			value, err := g.interp.Extract(n.Tree, q)
			if err != nil {
				g.logger.Warn("selector execution timed out", "selector", rule.Selector)
			} else if v := strings.TrimSpace(value); v != "" {
				return v
			}
		}
	}

	if rule.Pattern != "" {
		if re, err := regexp.Compile(rule.Pattern); err == nil {
			if m := re.FindStringSubmatch(n.Text); m != nil {
				if len(m) > 1 && m[1] != "" {
					return strings.TrimSpace(m[1])
				}
				return strings.TrimSpace(m[0])
			}
		}
	}

	return ""
}

// parseStrict parses model output as the fixed schema. Anything with extra
// keys, nested structures, or non-string selector/pattern values is
// rejected, not coerced.
func (g *Guard) parseStrict(raw string) (*proposal, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()

	var p proposal
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("proposal is not the fixed schema: %w", err)
	}
	// Trailing content after the object is as suspect as extra keys
	if decoder.More() {
		return nil, errors.New("trailing content after proposal object")
	}
	if len(p.Fields) == 0 {
		return nil, errors.New("proposal binds no fields")
	}
	return &p, nil
}

func (g *Guard) checkDenylist(s string) error {
	lower := strings.ToLower(s)
	for _, marker := range denylist {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: denylisted marker %q", common.ErrSynthesisRejected, marker)
		}
	}
	return nil
}

// trialRun executes the proposed selectors inside the sandboxed interpreter
// against the message the proposal was synthesized from. The amount field
// must resolve; a proposal that cannot extract an amount from its own
// source message is useless.
func (g *Guard) trialRun(rules map[string]model.FieldRule, sample *normalize.Normalized) error {
	if sample == nil || sample.Tree == nil {
		return fmt.Errorf("%w: no markup tree to validate against", common.ErrSynthesisRejected)
	}

	for name, rule := range rules {
		q, err := selector.Parse(rule.Selector)
		if err != nil {
			return fmt.Errorf("%w: selector for %q: %v", common.ErrSynthesisRejected, name, err)
		}

		value, err := g.interp.Extract(sample.Tree, q)
		if err != nil {
			// Timeout forces the field empty rather than crashing; the
			// proposal is still rejected because it proved nothing.
			g.logger.Warn("selector trial timed out", "field", name)
			value = ""
		}

		if name == "amount" && strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: amount selector matched nothing in source message", common.ErrSynthesisRejected)
		}

		if rule.Pattern != "" && value != "" {
			matched, err := common.MatchRegex(rule.Pattern, value)
			if err != nil || (name == "amount" && !matched) {
				return fmt.Errorf("%w: validation pattern for %q does not match extracted value", common.ErrSynthesisRejected, name)
			}
		}
	}

	return nil
}
