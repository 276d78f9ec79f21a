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

// openaiClient implements the Client interface for the OpenAI API.
type openaiClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

const (
	openaiInputCostPerToken  = 2.5 / 1_000_000
	openaiOutputCostPerToken = 10.0 / 1_000_000
)

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
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

	return &openaiClient{
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

// ProposeRules sends a structural-analysis request to OpenAI.
func (c *openaiClient) ProposeRules(ctx context.Context, prompt string) (ProposalResponse, error) {
	systemPrompt := "You are a banking notification structure analyst. Respond only with the JSON rule proposal in the exact schema requested. Never include executable code."

	response, err := c.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return ProposalResponse{}, err
	}

	content, err := response.firstContent()
	if err != nil {
		return ProposalResponse{}, err
	}

	return ProposalResponse{
		Raw:  cleanMarkdownWrapper(content),
		Cost: c.cost(response),
	}, nil
}

// ExtractFields sends a direct structured-extraction request to OpenAI.
func (c *openaiClient) ExtractFields(ctx context.Context, prompt string) (ExtractionResponse, error) {
	systemPrompt := "You are a banking notification field extractor. Respond only with the JSON object in the exact schema requested: amount, currency, date, merchant, reference, location, confidence."

	response, err := c.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return ExtractionResponse{}, err
	}

	content, err := response.firstContent()
	if err != nil {
		return ExtractionResponse{}, err
	}

	extraction, err := parseExtraction(content)
	if err != nil {
		return ExtractionResponse{}, err
	}
	extraction.Cost = c.cost(response)
	return extraction, nil
}

func (c *openaiClient) complete(ctx context.Context, systemPrompt, prompt string) (openaiResponse, error) {
	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return openaiResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return openaiResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return openaiResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return openaiResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return openaiResponse{}, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response openaiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return openaiResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return response, nil
}

func (c *openaiClient) cost(r openaiResponse) float64 {
	return float64(r.Usage.PromptTokens)*openaiInputCostPerToken +
		float64(r.Usage.CompletionTokens)*openaiOutputCostPerToken
}

// openaiResponse represents the OpenAI chat completion response structure.
type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r openaiResponse) firstContent() (string, error) {
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return r.Choices[0].Message.Content, nil
}
