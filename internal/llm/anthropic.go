package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// anthropicClient implements the Client interface for Anthropic API.
type anthropicClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// Rough per-token pricing used for cost attribution; operators tune the
// accuracy/cost trade-off from these aggregates, exactness is not required.
const (
	anthropicInputCostPerToken  = 3.0 / 1_000_000
	anthropicOutputCostPerToken = 15.0 / 1_000_000
)

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-sonnet-20240229"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &anthropicClient{
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// ProposeRules sends a structural-analysis request to Anthropic and returns
// the raw proposal text for the synthesis guard.
func (c *anthropicClient) ProposeRules(ctx context.Context, prompt string) (ProposalResponse, error) {
	systemPrompt := "You are a banking notification structure analyst. Respond only with the JSON rule proposal in the exact schema requested. Never include executable code."

	response, err := c.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return ProposalResponse{}, err
	}

	if len(response.Content) == 0 {
		return ProposalResponse{}, fmt.Errorf("no content in response")
	}

	return ProposalResponse{
		Raw:  cleanMarkdownWrapper(response.Content[0].Text),
		Cost: c.cost(response),
	}, nil
}

// ExtractFields sends a direct structured-extraction request to Anthropic.
func (c *anthropicClient) ExtractFields(ctx context.Context, prompt string) (ExtractionResponse, error) {
	systemPrompt := "You are a banking notification field extractor. Respond only with the JSON object in the exact schema requested: amount, currency, date, merchant, reference, location, confidence."

	response, err := c.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return ExtractionResponse{}, err
	}

	if len(response.Content) == 0 {
		return ExtractionResponse{}, fmt.Errorf("no content in response")
	}

	extraction, err := parseExtraction(response.Content[0].Text)
	if err != nil {
		return ExtractionResponse{}, err
	}
	extraction.Cost = c.cost(response)
	return extraction, nil
}

// complete issues one messages-API call.
func (c *anthropicClient) complete(ctx context.Context, systemPrompt, prompt string) (anthropicResponse, error) {
	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", strings.NewReader(string(jsonBody)))
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return anthropicResponse{}, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return anthropicResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return response, nil
}

func (c *anthropicClient) cost(r anthropicResponse) float64 {
	return float64(r.Usage.InputTokens)*anthropicInputCostPerToken +
		float64(r.Usage.OutputTokens)*anthropicOutputCostPerToken
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Role         string `json:"role"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason"`
	StopSequence string `json:"stop_sequence"`
	Content      []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
