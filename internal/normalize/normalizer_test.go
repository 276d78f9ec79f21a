package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievefin/sift/internal/model"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "decodes named entities",
			input: "Compra en Caf&eacute; del Sol por &#36;45.20",
			want:  "Compra en Café del Sol por $45.20",
		},
		{
			name:  "decodes double-encoded entities",
			input: "Caf&amp;eacute;",
			want:  "Café",
		},
		{
			name:  "collapses runs of spaces and tabs",
			input: "monto:   \t 15,450.00",
			want:  "monto: 15,450.00",
		},
		{
			name:  "strips quoted reply lines",
			input: "Pago recibido\n> mensaje original\n> con dos lineas\nGracias",
			want:  "Pago recibido\n\nGracias",
		},
		{
			name:  "collapses blank line runs",
			input: "a\n\n\n\n\nb",
			want:  "a\n\nb",
		},
		{
			name:  "handles non-breaking spaces",
			input: "monto\u00a0total",
			want:  "monto total",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestCleanMerchant(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"keeps casing verbatim", "MERCADO CENTRAL", "MERCADO CENTRAL"},
		{"decodes entities", "CAF&Eacute; DEL SOL", "CAFÉ DEL SOL"},
		{"collapses internal whitespace", "UBER   EATS", "UBER EATS"},
		{"trims surrounding whitespace", "  PayPal *Spotify ", "PayPal *Spotify"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMerchant(tt.input))
		})
	}
}

func TestDisplayMerchant(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"title-cases shouting merchants", "CAFE DEL SOL", "Cafe Del Sol"},
		{"leaves mixed case alone", "PayPal *Spotify", "PayPal *Spotify"},
		{"keeps short all-caps tokens", "ATM", "ATM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayMerchant(tt.input))
		})
	}
}

func TestNormalizeWithMarkup(t *testing.T) {
	msg := &model.Message{
		ReceivedAt: time.Now(),
		ProviderID: "msg-1",
		AccountID:  "acct-1",
		Sender:     "notificaciones@banco.example",
		Subject:    "Notificaci&oacute;n de compra",
		HTMLBody:   `<html><body><table><tr><td class="amount">15,450.00</td></tr></table></body></html>`,
	}

	n := Normalize(msg)
	require.NotNil(t, n.Tree, "well-formed markup should produce a tree")
	assert.False(t, n.Degraded)
	assert.Equal(t, "Notificación de compra", n.Subject)
	assert.Contains(t, n.Text, "15,450.00")
}

func TestNormalizeTextOnly(t *testing.T) {
	msg := &model.Message{
		ProviderID: "msg-2",
		AccountID:  "acct-1",
		TextBody:   "Compra por $45.20 en CAFE DEL SOL",
	}

	n := Normalize(msg)
	assert.Nil(t, n.Tree)
	assert.False(t, n.Degraded)
	assert.Equal(t, "Compra por $45.20 en CAFE DEL SOL", n.Text)
}

func TestNormalizePrefersTextBody(t *testing.T) {
	msg := &model.Message{
		ProviderID: "msg-3",
		AccountID:  "acct-1",
		TextBody:   "plain version",
		HTMLBody:   "<html><body><p>markup version</p></body></html>",
	}

	n := Normalize(msg)
	require.NotNil(t, n.Tree)
	assert.Equal(t, "plain version", n.Text)
}
