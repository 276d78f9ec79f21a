// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sievefin/sift/internal/model"
)

// Store defines the contract for our persistence layer.
type Store interface {
	// Template operations
	SaveTemplate(ctx context.Context, template *model.Template) error
	GetTemplate(ctx context.Context, institution string, family model.Family) (*model.Template, error)
	GetTemplateByID(ctx context.Context, id int64) (*model.Template, error)
	GetTemplatesByInstitution(ctx context.Context, institution string) ([]model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	RecordTemplateSuccess(ctx context.Context, id int64) error
	RecordTemplateFailure(ctx context.Context, id int64) error
	PromoteTemplate(ctx context.Context, id int64, humanApproved bool) error
	DeactivateTemplate(ctx context.Context, id int64) error
	UpdateTemplateRule(ctx context.Context, id int64, field string, rule model.FieldRule) error

	// Institution operations
	SaveInstitution(ctx context.Context, institution *model.Institution) error
	ListInstitutions(ctx context.Context) ([]model.Institution, error)

	// Extraction result operations
	SaveResult(ctx context.Context, result *model.ExtractionResult) error
	GetResultByID(ctx context.Context, id string) (*model.ExtractionResult, error)
	SupersedeResult(ctx context.Context, oldID, newID string) error
	FindDuplicate(ctx context.Context, accountID, messageID, reference string, around time.Time, window time.Duration) (*model.ExtractionResult, error)
	AmountHistory(ctx context.Context, institution string, family model.Family, limit int) ([]decimal.Decimal, error)

	// Review queue operations
	SaveReviewItem(ctx context.Context, item *model.ReviewItem) error
	ListPendingReviews(ctx context.Context, limit int) ([]model.ReviewItem, error)
	ResolveReview(ctx context.Context, id int64, status model.ReviewStatus) error

	// Correction operations
	SaveCorrection(ctx context.Context, correction *model.Correction) error
	CountAgreeingCorrections(ctx context.Context, templateID int64, field, newValue string) (int, error)
	MarkCorrectionApplied(ctx context.Context, id int64) error
	SaveUserOverride(ctx context.Context, userID string, templateID int64, field string, rule model.FieldRule) error

	// Metric operations
	RecordMetric(ctx context.Context, metric *model.ProcessingMetric) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Recorder records per-message processing outcomes for tuning and auditing.
type Recorder interface {
	Record(ctx context.Context, metric *model.ProcessingMetric) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// EventKind identifies a learning event emitted by validation finalization.
type EventKind string

// Learning event kinds.
const (
	EventTemplateReinforce   EventKind = "template-reinforce"
	EventTemplateFailure     EventKind = "template-failure"
	EventNeedsReview         EventKind = "needs-review"
	EventCorrectionSubmitted EventKind = "correction-submitted"
)

// LearningEvent is a discrete message from validation finalization to the
// learning handler. The handler is independently testable and never runs
// inline with extraction.
type LearningEvent struct {
	Result     *model.ExtractionResult
	Correction *model.Correction
	TemplateID *int64
	Kind       EventKind
	Failures   []string
}

// BatchStats summarizes one processing run.
type BatchStats struct {
	Total       int
	Accepted    int
	NeedsReview int
	Duplicates  int
	Discarded   int
	Failed      int
	Duration    time.Duration
	Cost        float64
}
