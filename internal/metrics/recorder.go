// Package metrics records per-message processing outcomes.
package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/service"
)

// Recorder persists processing metrics and mirrors them to the structured
// log so a tail of the log answers "what tier is doing the work" without a
// database query.
type Recorder struct {
	store  service.Store
	logger *slog.Logger
}

// NewRecorder creates a metrics recorder backed by the store.
func NewRecorder(store service.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record persists one metric. A failed write is an error to the caller; a
// message must never be processed without leaving a trace.
func (r *Recorder) Record(ctx context.Context, metric *model.ProcessingMetric) error {
	if err := r.store.RecordMetric(ctx, metric); err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}

	r.logger.Debug("message processed",
		"message_id", metric.MessageID,
		"institution", metric.Institution,
		"family", string(metric.Family),
		"tier", metric.Tier.String(),
		"outcome", metric.Outcome,
		"confidence", metric.Confidence,
		"cost", metric.Cost,
		"duration_ms", metric.Duration.Milliseconds())
	return nil
}

var _ service.Recorder = (*Recorder)(nil)
