package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	// ProposeRules asks the model to describe a message's structure as a
	// declarative rule proposal. The raw response is untrusted and must be
	// passed through the synthesis guard before any use.
	ProposeRules(ctx context.Context, prompt string) (ProposalResponse, error)
	// ExtractFields asks the model for a direct structured-field extraction
	// against a strict output schema.
	ExtractFields(ctx context.Context, prompt string) (ExtractionResponse, error)
}

// ProposalResponse carries the model's raw rule proposal and the estimated
// cost of the call.
type ProposalResponse struct {
	Raw  string
	Cost float64
}

// ExtractionResponse is the model's structured-field extraction. All values
// are strings; typed materialization happens in the extraction engine.
type ExtractionResponse struct {
	Amount     string
	Currency   string
	Date       string
	Merchant   string
	Reference  string
	Location   string
	Confidence float64
	Cost       float64
}

// Config holds configuration for LLM clients.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}
