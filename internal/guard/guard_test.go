package guard

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/selector"
)

const sampleHTML = `<html><body>
<table>
<tr><td class="label">Monto</td><td class="amount">CRC 15,450.00</td></tr>
<tr><td class="label">Comercio</td><td class="merchant">CAFE DEL SOL</td></tr>
</table>
</body></html>`

func newTestGuard() *Guard {
	return NewGuard(selector.NewInterpreter(100*time.Millisecond), 0, nil)
}

func sampleMessage() *normalize.Normalized {
	return normalize.Normalize(&model.Message{
		ReceivedAt: time.Now(),
		ProviderID: "msg-1",
		AccountID:  "acct-1",
		HTMLBody:   sampleHTML,
	})
}

func TestSynthesizeAcceptsValidProposal(t *testing.T) {
	g := newTestGuard()

	raw := `{"fields":{
		"amount":{"selector":"td.amount","pattern":"[0-9.,]+"},
		"merchant":{"selector":"td.merchant"}
	}}`

	tmpl, err := g.Synthesize("banco-sol", model.FamilyPurchase, raw, sampleMessage())
	require.NoError(t, err)

	assert.Equal(t, "banco-sol", tmpl.Institution)
	assert.Equal(t, model.FamilyPurchase, tmpl.Family)
	assert.Equal(t, model.ProvenanceSynthesized, tmpl.Provenance)
	assert.Len(t, tmpl.Rules, 2)
	assert.Equal(t, model.FieldTypeAmount, tmpl.Rules["amount"].Type)

	// A synthesized template never starts trusted
	assert.False(t, tmpl.SecurityValidated)
	assert.False(t, tmpl.HumanReviewed)
	assert.False(t, tmpl.EligibleForDirectUse(0.8))
}

func TestSynthesizeRejections(t *testing.T) {
	g := newTestGuard()

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "unknown field name",
			raw:  `{"fields":{"amount":{"selector":"td.amount"},"balance":{"selector":"td"}}}`,
		},
		{
			name: "missing amount field",
			raw:  `{"fields":{"merchant":{"selector":"td.merchant"}}}`,
		},
		{
			name: "extra top-level key",
			raw:  `{"fields":{"amount":{"selector":"td.amount"}},"code":"x()"}`,
		},
		{
			name: "extra per-field key",
			raw:  `{"fields":{"amount":{"selector":"td.amount","exec":"rm"}}}`,
		},
		{
			name: "trailing content",
			raw:  `{"fields":{"amount":{"selector":"td.amount"}}} tail`,
		},
		{
			name: "not json at all",
			raw:  `please run this: eval(x)`,
		},
		{
			name: "denylisted selector",
			raw:  `{"fields":{"amount":{"selector":"javascript:alert(1)"}}}`,
		},
		{
			name: "denylisted pattern",
			raw:  `{"fields":{"amount":{"selector":"td.amount","pattern":"eval(.*)"}}}`,
		},
		{
			name: "script marker",
			raw:  `{"fields":{"amount":{"selector":"<script>td"}}}`,
		},
		{
			name: "escape sequence smuggling",
			raw:  `{"fields":{"amount":{"selector":"td.amount","pattern":"\\x41"}}}`,
		},
		{
			name: "selector off grammar",
			raw:  `{"fields":{"amount":{"selector":"td[onclick=x]"}}}`,
		},
		{
			name: "unparseable pattern",
			raw:  `{"fields":{"amount":{"selector":"td.amount","pattern":"[unclosed"}}}`,
		},
		{
			name: "oversized pattern",
			raw:  `{"fields":{"amount":{"selector":"td.amount","pattern":"` + strings.Repeat("a", 201) + `"}}}`,
		},
		{
			name: "amount selector matches nothing",
			raw:  `{"fields":{"amount":{"selector":"td.missing"}}}`,
		},
		{
			name: "pattern contradicts extracted value",
			raw:  `{"fields":{"amount":{"selector":"td.amount","pattern":"^[a-z]+$"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := g.Synthesize("banco-sol", model.FamilyPurchase, tt.raw, sampleMessage())
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrSynthesisRejected)
			assert.Nil(t, tmpl)
		})
	}
}

func TestSynthesizeRequiresSampleTree(t *testing.T) {
	g := newTestGuard()
	raw := `{"fields":{"amount":{"selector":"td.amount"}}}`

	textOnly := normalize.Normalize(&model.Message{ProviderID: "m", TextBody: "monto 1.00"})
	_, err := g.Synthesize("banco-sol", model.FamilyPurchase, raw, textOnly)
	assert.ErrorIs(t, err, common.ErrSynthesisRejected)
}

func TestExtractField(t *testing.T) {
	g := newTestGuard()
	n := sampleMessage()

	bySelector := g.ExtractField(model.FieldRule{Selector: "td.amount", Type: model.FieldTypeAmount}, n)
	assert.Equal(t, "CRC 15,450.00", bySelector)

	// Pattern doubles as a plain-text fallback when the selector misses
	byPattern := g.ExtractField(model.FieldRule{
		Selector: "td.missing",
		Pattern:  `CRC ([0-9.,]+)`,
		Type:     model.FieldTypeAmount,
	}, n)
	assert.Equal(t, "15,450.00", byPattern)

	assert.Empty(t, g.ExtractField(model.FieldRule{Selector: "td.missing"}, n))
}

func TestBoundInput(t *testing.T) {
	g := NewGuard(selector.NewInterpreter(0), 16, nil)
	assert.Equal(t, "short", g.BoundInput("short"))
	assert.Len(t, g.BoundInput(strings.Repeat("x", 100)), 16)
}
