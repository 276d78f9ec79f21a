package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain decimal", input: "45.20", want: "45.20"},
		{name: "us grouping", input: "1,234.50", want: "1234.50"},
		{name: "us grouping large", input: "15,450.00", want: "15450.00"},
		{name: "european grouping", input: "15.450,00", want: "15450.00"},
		{name: "comma decimal", input: "45,20", want: "45.20"},
		{name: "comma thousands without decimals", input: "1,234", want: "1234"},
		{name: "dollar symbol", input: "$1,234.56", want: "1234.56"},
		{name: "colon symbol", input: "₡15.450,00", want: "15450.00"},
		{name: "iso code prefix", input: "CRC 15,450.00", want: "15450.00"},
		{name: "parenthesized negative", input: "(123.45)", want: "-123.45"},
		{name: "minus negative", input: "-50.00", want: "-50.00"},
		{name: "empty", input: "", wantErr: true},
		{name: "no digits", input: "$", wantErr: true},
		{name: "garbage", input: "n/a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}

func TestParseAmountIsExact(t *testing.T) {
	// Fixed-point exactness: the parsed value must round-trip the literal
	// with no binary-float drift.
	got, err := ParseAmount("15,450.00")
	require.NoError(t, err)
	assert.Equal(t, "15450.00", got.String())
	assert.True(t, got.Equal(decimal.New(1545000, -2)))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2025-03-15", "2025-03-15"},
		{"15/03/2025", "2025-03-15"},
		{"15.03.2025", "2025-03-15"},
		{"Mar 15, 2025", "2025-03-15"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}

	_, err := ParseDate("not a date")
	assert.Error(t, err)
}

func TestFindAmount(t *testing.T) {
	assert.Equal(t, "$45.20", FindAmount("Compra por $45.20 en CAFE DEL SOL"))
	assert.Equal(t, "15,450.00", FindAmount("monto: 15,450.00 colones"))

	// Ungrouped thousands must match from the first digit, never a
	// truncated tail of the number
	assert.Equal(t, "1500.00", FindAmount("Purchase of 1500.00 at MERCADO CENTRAL"))
	assert.Equal(t, "12500.00", FindAmount("monto: 12500.00"))
	assert.Equal(t, "1500.00", FindAmount("1500.00 charged to your card"))

	// Card suffixes and references must not match: a decimal part is required
	assert.Empty(t, FindAmount("tarjeta terminada en 1234"))
	assert.Empty(t, FindAmount("referencia 987654"))
}

func TestFindMerchant(t *testing.T) {
	assert.Equal(t, "CAFE DEL SOL", FindMerchant("Compra por $45.20 en CAFE DEL SOL."))
	assert.Equal(t, "UBER EATS", FindMerchant("Purchase at UBER EATS on 03/15"))
	assert.Empty(t, FindMerchant("sin comercio aqui"))
}

func TestFindReference(t *testing.T) {
	assert.Equal(t, "ABC-123456", FindReference("Referencia: ABC-123456"))
	assert.Equal(t, "XY99", FindReference("confirmation # XY99"))
	assert.Empty(t, FindReference("no identifier here"))
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, "CRC", DetectCurrency("monto ₡15.450,00"))
	assert.Equal(t, "USD", DetectCurrency("charged $45.20"))
	assert.Equal(t, "EUR", DetectCurrency("total EUR 12.00"))
	assert.Empty(t, DetectCurrency("no currency marker"))
}
