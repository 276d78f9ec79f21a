package model

import "time"

// Provenance indicates how a template was created.
type Provenance string

const (
	// ProvenanceManual indicates a template seeded by an operator.
	ProvenanceManual Provenance = "manual"
	// ProvenanceSynthesized indicates a template derived from model-assisted
	// structural analysis under the synthesis guard.
	ProvenanceSynthesized Provenance = "synthesized"
)

// FieldType is a type hint for an extracted field.
type FieldType string

// Field type hints.
const (
	FieldTypeAmount   FieldType = "amount"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeDate     FieldType = "date"
	FieldTypeText     FieldType = "text"
)

// FieldRule is one declarative extraction rule: a structural selector plus an
// optional validation pattern. Rules are data, never code.
type FieldRule struct {
	Selector string    `json:"selector"`
	Pattern  string    `json:"pattern,omitempty"`
	Type     FieldType `json:"type"`
}

// Template is a named, versioned set of field rules for one
// institution+family pair. Templates are never deleted, only deactivated,
// to preserve audit history.
type Template struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Rules             map[string]FieldRule
	Institution       string
	Family            Family
	Provenance        Provenance
	ID                int64
	Version           int
	SuccessCount      int
	FailureCount      int
	Confidence        float64 // confidence assigned to direct template hits
	AcceptThreshold   float64 // minimum confidence for unsupervised acceptance
	SecurityValidated bool
	HumanReviewed     bool
	IsActive          bool
}

// SuccessRate returns the fraction of successful applications, or 0 when the
// template has never been exercised.
func (t *Template) SuccessRate() float64 {
	total := t.SuccessCount + t.FailureCount
	if total == 0 {
		return 0
	}
	return float64(t.SuccessCount) / float64(total)
}

// EligibleForDirectUse reports whether the template may serve unsupervised
// tier-1 extraction. A template never qualifies without security validation.
func (t *Template) EligibleForDirectUse(minConfidence float64) bool {
	return t.IsActive && t.SecurityValidated && t.Confidence >= minConfidence
}
