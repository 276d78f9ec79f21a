package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain json untouched",
			content: `{"amount":"45.20"}`,
			want:    `{"amount":"45.20"}`,
		},
		{
			name:    "fenced json block",
			content: "```json\n{\"amount\":\"45.20\"}\n```",
			want:    `{"amount":"45.20"}`,
		},
		{
			name:    "fence without language",
			content: "```\n{\"amount\":\"45.20\"}\n```",
			want:    `{"amount":"45.20"}`,
		},
		{
			name:    "surrounding whitespace",
			content: "  \n{\"amount\":\"45.20\"}\n  ",
			want:    `{"amount":"45.20"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.content))
		})
	}
}

func TestParseExtraction(t *testing.T) {
	resp, err := parseExtraction(`{
		"amount": "15,450.00",
		"currency": " crc ",
		"date": "2025-03-15",
		"merchant": "CAFE DEL SOL",
		"reference": "REF-1234",
		"location": "",
		"confidence": 0.82
	}`)
	require.NoError(t, err)

	assert.Equal(t, "15,450.00", resp.Amount)
	assert.Equal(t, "CRC", resp.Currency)
	assert.Equal(t, "2025-03-15", resp.Date)
	assert.Equal(t, "CAFE DEL SOL", resp.Merchant)
	assert.InDelta(t, 0.82, resp.Confidence, 1e-9)
}

func TestParseExtractionRejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing amount", content: `{"currency":"CRC","confidence":0.9}`},
		{name: "unknown key", content: `{"amount":"45.20","balance":"100"}`},
		{name: "not json", content: `the amount is 45.20`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseExtraction(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestParseExtractionClampsConfidence(t *testing.T) {
	resp, err := parseExtraction(`{"amount":"45.20","confidence":1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Confidence)

	resp, err = parseExtraction(`{"amount":"45.20","confidence":-0.2}`)
	require.NoError(t, err)
	assert.Zero(t, resp.Confidence)
}
