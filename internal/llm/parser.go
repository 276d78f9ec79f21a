package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanMarkdownWrapper strips code-fence wrappers that models add around
// JSON despite instructions not to.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	return strings.TrimSpace(content)
}

// parseExtraction parses a discovery-mode extraction response against the
// strict output schema. Extra keys are rejected, not coerced: the model's
// output is untrusted data.
func parseExtraction(content string) (ExtractionResponse, error) {
	content = cleanMarkdownWrapper(content)

	var jsonResp struct {
		Amount     string  `json:"amount"`
		Currency   string  `json:"currency"`
		Date       string  `json:"date"`
		Merchant   string  `json:"merchant"`
		Reference  string  `json:"reference"`
		Location   string  `json:"location"`
		Confidence float64 `json:"confidence"`
	}

	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&jsonResp); err != nil {
		return ExtractionResponse{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if jsonResp.Amount == "" {
		return ExtractionResponse{}, fmt.Errorf("no amount found in response")
	}

	if jsonResp.Confidence < 0 {
		jsonResp.Confidence = 0
	} else if jsonResp.Confidence > 1 {
		jsonResp.Confidence = 1
	}

	return ExtractionResponse{
		Amount:     jsonResp.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(jsonResp.Currency)),
		Date:       jsonResp.Date,
		Merchant:   jsonResp.Merchant,
		Reference:  jsonResp.Reference,
		Location:   jsonResp.Location,
		Confidence: jsonResp.Confidence,
	}, nil
}
