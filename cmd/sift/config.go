package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/sievefin/sift/internal/classify"
	"github.com/sievefin/sift/internal/engine"
	"github.com/sievefin/sift/internal/extract"
	"github.com/sievefin/sift/internal/guard"
	"github.com/sievefin/sift/internal/llm"
	"github.com/sievefin/sift/internal/metrics"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/selector"
	"github.com/sievefin/sift/internal/storage"
	"github.com/sievefin/sift/internal/validate"
)

func setDefaults() {
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.model", "claude-3-5-haiku-latest")
	viper.SetDefault("llm.timeout", "30s")
	viper.SetDefault("llm.max_retries", 2)
	viper.SetDefault("llm.retry_delay", "1s")
	viper.SetDefault("llm.rate_limit", 30)
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 1024)

	viper.SetDefault("extraction.template_min_confidence", 0.8)
	viper.SetDefault("extraction.likelihood_threshold", 0.35)
	viper.SetDefault("extraction.fuzzy_penalty", 0.1)
	viper.SetDefault("extraction.max_llm_input", 8192)
	viper.SetDefault("extraction.tier_thresholds.template", 0.8)
	viper.SetDefault("extraction.tier_thresholds.structural", 0.8)
	viper.SetDefault("extraction.tier_thresholds.synthesis", 0.7)
	viper.SetDefault("extraction.tier_thresholds.discovery", 0.0)
	viper.SetDefault("extraction.selector_timeout", "100ms")

	viper.SetDefault("validation.review_threshold", 0.8)
	viper.SetDefault("validation.reinforce_threshold", 0.9)
	viper.SetDefault("validation.outlier_cutoff", 3.5)
	viper.SetDefault("validation.duplicate_window", "48h")
	viper.SetDefault("validation.max_age", "8760h")

	viper.SetDefault("learning.promote_successes", 5)
	viper.SetDefault("learning.consensus_threshold", 3)

	viper.SetDefault("processing.workers", 4)
}

func databasePath() (string, error) {
	dbPath := viper.GetString("database.path")
	if dbPath != "" {
		return dbPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "sift", "sift.db"), nil
}

func openStore() (*storage.SQLiteStore, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteStore(dbPath)
}

func llmConfig() llm.Config {
	return llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		Timeout:     viper.GetDuration("llm.timeout"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	}
}

func extractionConfig() extract.Config {
	return extract.Config{
		TierThresholds: map[model.Tier]float64{
			model.TierTemplate:   viper.GetFloat64("extraction.tier_thresholds.template"),
			model.TierStructural: viper.GetFloat64("extraction.tier_thresholds.structural"),
			model.TierSynthesis:  viper.GetFloat64("extraction.tier_thresholds.synthesis"),
			model.TierDiscovery:  viper.GetFloat64("extraction.tier_thresholds.discovery"),
		},
		TemplateMinConfidence: viper.GetFloat64("extraction.template_min_confidence"),
		LikelihoodThreshold:   viper.GetFloat64("extraction.likelihood_threshold"),
		FuzzyPenalty:          viper.GetFloat64("extraction.fuzzy_penalty"),
		MaxLLMInput:           viper.GetInt("extraction.max_llm_input"),
	}
}

func validationConfig() validate.Config {
	cfg := validate.DefaultConfig()
	cfg.ReviewThreshold = viper.GetFloat64("validation.review_threshold")
	cfg.ReinforceThreshold = viper.GetFloat64("validation.reinforce_threshold")
	cfg.OutlierCutoff = viper.GetFloat64("validation.outlier_cutoff")
	cfg.DuplicateWindow = viper.GetDuration("validation.duplicate_window")
	cfg.MaxAge = viper.GetDuration("validation.max_age")
	return cfg
}

func learnerConfig() validate.LearnerConfig {
	return validate.LearnerConfig{
		PromoteSuccesses:   viper.GetInt("learning.promote_successes"),
		ConsensusThreshold: viper.GetInt("learning.consensus_threshold"),
	}
}

// buildPipeline assembles the full processing pipeline. The returned cleanup
// closes the store and drains the learning queue.
func buildPipeline(ctx context.Context) (*engine.Pipeline, func(), error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	institutions, err := store.ListInstitutions(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to load institutions: %w", err)
	}
	classifier := classify.NewClassifier(institutions)

	logger := slog.Default()

	inferrer, err := llm.NewInferrer(llmConfig(), logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	interp := selector.NewInterpreter(viper.GetDuration("extraction.selector_timeout"))
	g := guard.NewGuard(interp, viper.GetInt("extraction.max_llm_input"), logger)

	extractor := extract.NewEngine(store, inferrer, g, extractionConfig(), logger)
	validator := validate.NewValidator(store, validationConfig(), logger)
	learner := validate.NewLearner(store, learnerConfig(), logger)
	recorder := metrics.NewRecorder(store, logger)

	pipeline := engine.NewPipeline(store, classifier, extractor, validator, learner, recorder,
		viper.GetInt("processing.workers"), logger)
	pipeline.Start(ctx)

	cleanup := func() {
		pipeline.Close()
		inferrer.Close()
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
	return pipeline, cleanup, nil
}
