package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/service"
)

// Inferrer wraps a raw Client with rate limiting and bounded retry. It is
// the only path the extraction engine uses to reach a model: every call is
// issued with a timeout and at most MaxRetries attempts before the engine
// degrades to the best available lower-confidence result.
type Inferrer struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
	timeout     time.Duration
}

// NewInferrer creates a rate-limited, retrying LLM front end.
func NewInferrer(cfg Config, logger *slog.Logger) (*Inferrer, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return NewInferrerWithClient(client, cfg, logger), nil
}

// NewInferrerWithClient wires an Inferrer around an existing client. Used by
// tests to substitute a mock.
func NewInferrerWithClient(client Client, cfg Config, logger *slog.Logger) *Inferrer {
	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 2
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Inferrer{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		timeout:     timeout,
	}
}

// ProposeRules requests a rule proposal with retry and rate limiting.
func (i *Inferrer) ProposeRules(ctx context.Context, prompt string) (ProposalResponse, error) {
	var response ProposalResponse

	err := common.WithRetry(ctx, func() error {
		if err := i.rateLimiter.wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()

		resp, err := i.client.ProposeRules(callCtx, prompt)
		if err != nil {
			i.logger.Warn("rule proposal call failed", "error", err)
			return err
		}
		response = resp
		return nil
	}, i.retryOpts)

	return response, err
}

// ExtractFields requests a structured extraction with retry and rate limiting.
func (i *Inferrer) ExtractFields(ctx context.Context, prompt string) (ExtractionResponse, error) {
	var response ExtractionResponse

	err := common.WithRetry(ctx, func() error {
		if err := i.rateLimiter.wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()

		resp, err := i.client.ExtractFields(callCtx, prompt)
		if err != nil {
			i.logger.Warn("field extraction call failed", "error", err)
			return err
		}
		response = resp
		return nil
	}, i.retryOpts)

	return response, err
}

// Close releases the rate limiter.
func (i *Inferrer) Close() {
	i.rateLimiter.Close()
}
