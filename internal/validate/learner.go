package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/service"
)

// LearnerConfig tunes how aggressively templates are promoted and corrected.
type LearnerConfig struct {
	// PromoteSuccesses is the consecutive-success count at which a
	// synthesized template earns security validation.
	PromoteSuccesses int
	// ConsensusThreshold is the number of agreeing corrections required
	// before a template rule changes for everyone.
	ConsensusThreshold int
}

// DefaultLearnerConfig returns the default learning configuration.
func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		PromoteSuccesses:   5,
		ConsensusThreshold: 3,
	}
}

// Learner applies validation outcomes back to the template store. It runs
// off the extraction path and consumes learning events from a channel, so a
// slow database write never stalls message processing.
type Learner struct {
	store  service.Store
	logger *slog.Logger
	cfg    LearnerConfig
}

// NewLearner creates a learner.
func NewLearner(store service.Store, cfg LearnerConfig, logger *slog.Logger) *Learner {
	if cfg.PromoteSuccesses <= 0 {
		cfg.PromoteSuccesses = DefaultLearnerConfig().PromoteSuccesses
	}
	if cfg.ConsensusThreshold <= 0 {
		cfg.ConsensusThreshold = DefaultLearnerConfig().ConsensusThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{store: store, cfg: cfg, logger: logger}
}

// Run consumes events until the channel closes or the context is canceled.
func (l *Learner) Run(ctx context.Context, events <-chan service.LearningEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := l.Handle(ctx, event); err != nil {
				l.logger.Error("learning event failed",
					"kind", string(event.Kind),
					"error", err)
			}
		}
	}
}

// Handle applies a single learning event. Exposed separately so the event
// handlers are testable without channel plumbing.
func (l *Learner) Handle(ctx context.Context, event service.LearningEvent) error {
	switch event.Kind {
	case service.EventTemplateReinforce:
		return l.reinforce(ctx, event)
	case service.EventTemplateFailure:
		return l.recordFailure(ctx, event)
	case service.EventNeedsReview:
		return l.queueReview(ctx, event)
	case service.EventCorrectionSubmitted:
		return l.applyCorrection(ctx, event)
	default:
		return fmt.Errorf("unknown learning event kind %q", event.Kind)
	}
}

// reinforce bumps a template's success count and promotes it to
// security-validated once it has proven itself enough times. Promotion is
// monotonic: it happens only through this accumulation or an explicit human
// approval, never from a single successful use.
func (l *Learner) reinforce(ctx context.Context, event service.LearningEvent) error {
	if event.TemplateID == nil {
		return nil
	}
	id := *event.TemplateID

	if err := l.store.RecordTemplateSuccess(ctx, id); err != nil {
		return fmt.Errorf("failed to record template success: %w", err)
	}

	tmpl, err := l.store.GetTemplateByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load template %d: %w", id, err)
	}

	if !tmpl.SecurityValidated && tmpl.SuccessCount >= l.cfg.PromoteSuccesses {
		if err := l.store.PromoteTemplate(ctx, id, false); err != nil {
			return fmt.Errorf("failed to promote template %d: %w", id, err)
		}
		l.logger.Info("template promoted",
			"template_id", id,
			"institution", tmpl.Institution,
			"successes", tmpl.SuccessCount)
	}

	return nil
}

func (l *Learner) recordFailure(ctx context.Context, event service.LearningEvent) error {
	if event.TemplateID == nil {
		return nil
	}
	if err := l.store.RecordTemplateFailure(ctx, *event.TemplateID); err != nil {
		return fmt.Errorf("failed to record template failure: %w", err)
	}
	return nil
}

// queueReview creates a pending review item with a priority derived from
// the amount magnitude and how far below the acceptance threshold the
// result landed.
func (l *Learner) queueReview(ctx context.Context, event service.LearningEvent) error {
	if event.Result == nil {
		return nil
	}
	item := &model.ReviewItem{
		ResultID:  event.Result.ID,
		Priority:  reviewPriority(event.Result),
		Status:    model.ReviewPending,
		Failures:  event.Failures,
		CreatedAt: time.Now(),
	}
	if err := l.store.SaveReviewItem(ctx, item); err != nil {
		return fmt.Errorf("failed to queue review item: %w", err)
	}
	return nil
}

// applyCorrection records a user's field correction. When enough distinct
// corrections agree on the same field and value, the backing template rule
// changes for everyone; until then the correction applies only as a
// per-user override so one user's mistake cannot degrade a shared template.
func (l *Learner) applyCorrection(ctx context.Context, event service.LearningEvent) error {
	c := event.Correction
	if c == nil {
		return nil
	}

	if err := l.store.SaveCorrection(ctx, c); err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}

	if c.TemplateID == nil {
		return nil
	}
	id := *c.TemplateID

	agreeing, err := l.store.CountAgreeingCorrections(ctx, id, c.Field, c.NewValue)
	if err != nil {
		return fmt.Errorf("failed to count corrections: %w", err)
	}

	rule := correctionRule(c)

	if agreeing >= l.cfg.ConsensusThreshold {
		if err := l.store.UpdateTemplateRule(ctx, id, c.Field, rule); err != nil {
			return fmt.Errorf("failed to update template rule: %w", err)
		}
		if err := l.store.MarkCorrectionApplied(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to mark correction applied: %w", err)
		}
		l.logger.Info("template rule updated by consensus",
			"template_id", id,
			"field", c.Field,
			"agreeing", agreeing)
		return nil
	}

	if err := l.store.SaveUserOverride(ctx, c.UserID, id, c.Field, rule); err != nil {
		return fmt.Errorf("failed to save user override: %w", err)
	}
	return nil
}

// correctionRule turns a corrected value into a literal-match rule for the
// field. Corrections carry values, not selectors; an exact pattern is the
// safest representation.
func correctionRule(c *model.Correction) model.FieldRule {
	fieldType := model.FieldTypeText
	switch c.Field {
	case "amount":
		fieldType = model.FieldTypeAmount
	case "currency":
		fieldType = model.FieldTypeCurrency
	case "date":
		fieldType = model.FieldTypeDate
	}
	return model.FieldRule{
		Pattern: regexp.QuoteMeta(c.NewValue),
		Type:    fieldType,
	}
}

// reviewPriority maps a result onto the 1 (urgent) to 10 (low) review
// scale. Big amounts and very low confidence sort first.
func reviewPriority(result *model.ExtractionResult) int {
	priority := 5

	switch {
	case result.Confidence < 0.3:
		priority -= 3
	case result.Confidence < 0.6:
		priority -= 1
	}

	amount, _ := result.Amount.Float64()
	switch {
	case amount >= 100_000:
		priority -= 2
	case amount >= 10_000:
		priority -= 1
	case amount < 100:
		priority += 2
	}

	if priority > 10 {
		priority = 10
	}
	if priority < 1 {
		priority = 1
	}
	return priority
}
