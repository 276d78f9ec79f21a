// Package engine orchestrates the processing pipeline: normalize, classify,
// extract, validate, learn, record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sievefin/sift/internal/classify"
	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/extract"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/service"
	"github.com/sievefin/sift/internal/validate"
)

const defaultWorkers = 4

// Pipeline wires the processing stages together and owns the learning event
// channel. Create with NewPipeline, start the learner with Start, and Close
// when done so queued learning events drain.
type Pipeline struct {
	store      service.Store
	classifier *classify.Classifier
	extractor  *extract.Engine
	validator  *validate.Validator
	learner    *validate.Learner
	recorder   service.Recorder
	logger     *slog.Logger
	events     chan service.LearningEvent
	done       chan struct{}
	workers    int
	startOnce  sync.Once
	closeOnce  sync.Once
}

// NewPipeline assembles a pipeline from its stages.
func NewPipeline(store service.Store, classifier *classify.Classifier, extractor *extract.Engine, validator *validate.Validator, learner *validate.Learner, recorder service.Recorder, workers int, logger *slog.Logger) *Pipeline {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		validator:  validator,
		learner:    learner,
		recorder:   recorder,
		logger:     logger,
		workers:    workers,
		events:     make(chan service.LearningEvent, 256),
		done:       make(chan struct{}),
	}
}

// Start launches the learning consumer. Idempotent.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go func() {
			defer close(p.done)
			p.learner.Run(ctx, p.events)
		}()
	})
}

// Close stops accepting learning events and waits for the queue to drain.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.events)
		<-p.done
	})
}

// ProcessMessage runs one message through the full pipeline. Every path
// leaves a durable trace: a saved result, a review item, or a discard
// metric. A nil result with a nil error means the message was discarded as
// non-financial.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg model.Message) (*model.ExtractionResult, error) {
	start := time.Now()

	n := normalize.Normalize(&msg)
	cls := p.classifier.Classify(n)

	cand, err := p.extractor.Extract(ctx, n, cls)
	if err != nil {
		if errors.Is(err, extract.ErrNotFinancial) {
			p.record(ctx, msg, cls, 0, model.OutcomeDiscarded, 0, 0, time.Since(start))
			return nil, nil
		}
		if errors.Is(err, common.ErrExtractionExhausted) {
			return p.handleExhausted(ctx, msg, n, cls, start)
		}
		return nil, fmt.Errorf("extraction failed for message %s: %w", msg.ProviderID, err)
	}

	result, events, err := p.validator.Finalize(ctx, cand, n, cls)
	if err != nil {
		return nil, err
	}
	p.emit(events)

	outcome := model.OutcomeAccepted
	switch {
	case isDuplicate(result):
		outcome = model.OutcomeDuplicate
	case result.NeedsReview:
		outcome = model.OutcomeNeedsReview
	}
	p.record(ctx, msg, cls, result.Tier, outcome, result.Confidence, result.Cost, time.Since(start))

	switch cand.Synthesis {
	case extract.SynthesisAccepted:
		p.record(ctx, msg, cls, model.TierSynthesis, model.OutcomeSynthesisAccepted, result.Confidence, 0, 0)
	case extract.SynthesisRejected:
		p.record(ctx, msg, cls, model.TierSynthesis, model.OutcomeSynthesisRejected, 0, 0, 0)
	}

	return result, nil
}

// handleExhausted records a zero-confidence placeholder result and queues it
// for review so the message is never silently lost.
func (p *Pipeline) handleExhausted(ctx context.Context, msg model.Message, n *normalize.Normalized, cls model.Classification, start time.Time) (*model.ExtractionResult, error) {
	result := &model.ExtractionResult{
		ID:          uuid.NewString(),
		MessageID:   msg.ProviderID,
		AccountID:   msg.AccountID,
		Institution: cls.Institution,
		Family:      cls.Family,
		Date:        msg.ReceivedAt,
		Tier:        model.TierDiscovery,
		Confidence:  0,
		NeedsReview: true,
		Failures:    []string{"all extraction tiers exhausted"},
		Duration:    time.Since(start),
		CreatedAt:   time.Now(),
	}
	if err := p.store.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save exhausted result: %w", err)
	}

	p.emit([]service.LearningEvent{{
		Kind:     service.EventNeedsReview,
		Result:   result,
		Failures: result.Failures,
	}})

	p.record(ctx, msg, cls, model.TierDiscovery, model.OutcomeNeedsReview, 0, 0, time.Since(start))
	return result, nil
}

// ProcessBatch processes messages concurrently with a bounded worker pool.
// The progress callback, when non-nil, fires once per completed message.
func (p *Pipeline) ProcessBatch(ctx context.Context, msgs []model.Message, progress func()) (service.BatchStats, error) {
	start := time.Now()

	var mu sync.Mutex
	stats := service.BatchStats{Total: len(msgs)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			result, err := p.ProcessMessage(ctx, msg)

			mu.Lock()
			defer mu.Unlock()
			if progress != nil {
				progress()
			}

			switch {
			case err != nil:
				stats.Failed++
				p.logger.Error("message processing failed",
					"message_id", msg.ProviderID,
					"error", err)
			case result == nil:
				stats.Discarded++
			case isDuplicate(result):
				stats.Duplicates++
			case result.NeedsReview:
				stats.NeedsReview++
			default:
				stats.Accepted++
			}
			if result != nil {
				stats.Cost += result.Cost
			}
			// Individual failures don't abort the batch
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

// SubmitCorrection applies a human correction to a finalized result. The
// original record is never mutated: a superseding result carries the
// corrected value, and the correction itself feeds the learning loop.
func (p *Pipeline) SubmitCorrection(ctx context.Context, userID, resultID, field, newValue string) (*model.ExtractionResult, error) {
	original, err := p.store.GetResultByID(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", resultID, err)
	}
	if original.SupersededBy != "" {
		return nil, fmt.Errorf("result %s is already superseded by %s", resultID, original.SupersededBy)
	}

	corrected := *original
	corrected.ID = uuid.NewString()
	corrected.SupersededBy = ""
	corrected.Confidence = 1.0
	corrected.NeedsReview = false
	corrected.Failures = nil
	corrected.CreatedAt = time.Now()

	oldValue, err := applyField(&corrected, field, newValue)
	if err != nil {
		return nil, err
	}

	if err := p.store.SaveResult(ctx, &corrected); err != nil {
		return nil, fmt.Errorf("failed to save corrected result: %w", err)
	}
	if err := p.store.SupersedeResult(ctx, original.ID, corrected.ID); err != nil {
		return nil, err
	}

	p.emit([]service.LearningEvent{{
		Kind: service.EventCorrectionSubmitted,
		Correction: &model.Correction{
			UserID:     userID,
			ResultID:   original.ID,
			Field:      field,
			OldValue:   oldValue,
			NewValue:   newValue,
			TemplateID: original.TemplateID,
			CreatedAt:  corrected.CreatedAt,
		},
	}})

	return &corrected, nil
}

// applyField sets one correctable field on a result, returning the prior
// value.
func applyField(result *model.ExtractionResult, field, newValue string) (string, error) {
	switch field {
	case "amount":
		old := result.Amount.String()
		amount, err := extract.ParseAmount(newValue)
		if err != nil {
			return "", fmt.Errorf("%w: corrected amount %q: %v", common.ErrInvalidConfig, newValue, err)
		}
		result.Amount = amount
		return old, nil
	case "currency":
		old := result.Currency
		result.Currency = strings.ToUpper(strings.TrimSpace(newValue))
		return old, nil
	case "date":
		old := result.Date.Format("2006-01-02")
		date, err := extract.ParseDate(newValue)
		if err != nil {
			return "", fmt.Errorf("%w: corrected date %q: %v", common.ErrInvalidConfig, newValue, err)
		}
		result.Date = date
		return old, nil
	case "merchant":
		old := result.Merchant
		result.Merchant = strings.TrimSpace(newValue)
		return old, nil
	case "reference":
		old := result.Reference
		result.Reference = strings.TrimSpace(newValue)
		return old, nil
	case "location":
		old := result.Location
		result.Location = strings.TrimSpace(newValue)
		return old, nil
	default:
		return "", fmt.Errorf("%w: field %q is not correctable", common.ErrInvalidConfig, field)
	}
}

func (p *Pipeline) emit(events []service.LearningEvent) {
	for _, event := range events {
		select {
		case p.events <- event:
		default:
			// A full queue means the learner is far behind; dropping a
			// learning event loses tuning signal but never data.
			p.logger.Warn("learning event queue full, dropping event",
				"kind", string(event.Kind))
		}
	}
}

func (p *Pipeline) record(ctx context.Context, msg model.Message, cls model.Classification, tier model.Tier, outcome string, confidence, cost float64, duration time.Duration) {
	metric := &model.ProcessingMetric{
		MessageID:   msg.ProviderID,
		Institution: cls.Institution,
		Family:      cls.Family,
		Tier:        tier,
		Outcome:     outcome,
		Confidence:  confidence,
		Cost:        cost,
		Duration:    duration,
		CreatedAt:   time.Now(),
	}
	if err := p.recorder.Record(ctx, metric); err != nil {
		p.logger.Error("failed to record metric",
			"message_id", msg.ProviderID,
			"error", err)
	}
}

func isDuplicate(result *model.ExtractionResult) bool {
	for _, failure := range result.Failures {
		if strings.HasPrefix(failure, "duplicate of") {
			return true
		}
	}
	return false
}
