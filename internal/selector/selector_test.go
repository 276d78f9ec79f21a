package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		steps   int
		attr    string
		wantErr bool
	}{
		{name: "single tag", expr: "td", steps: 1},
		{name: "chained steps", expr: "table tr td", steps: 3},
		{name: "direct child", expr: "tr > td", steps: 2},
		{name: "id and class", expr: "div#total.amount", steps: 1},
		{name: "nth", expr: "tr:nth(2)", steps: 1},
		{name: "attribute read", expr: "span.amount @data-value", steps: 1, attr: "data-value"},
		{name: "wildcard", expr: "*.amount", steps: 1},
		{name: "empty", expr: "", wantErr: true},
		{name: "leading combinator", expr: "> td", wantErr: true},
		{name: "trailing combinator", expr: "td >", wantErr: true},
		{name: "double combinator", expr: "tr > > td", wantErr: true},
		{name: "bracket syntax rejected", expr: "a[href]", wantErr: true},
		{name: "pseudo selector rejected", expr: "tr:first-child", wantErr: true},
		{name: "function call rejected", expr: "eval(x)", wantErr: true},
		{name: "bad attribute name", expr: "td @on click", wantErr: true},
		{name: "oversized selector", expr: strings.Repeat("a ", 200), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, q.Steps, tt.steps)
			assert.Equal(t, tt.attr, q.Attr)
		})
	}
}

const sampleDoc = `<html><body>
<div id="header">Banco Sol</div>
<table>
<tr><td class="label">Monto</td><td class="amount" data-raw="15450.00">CRC 15,450.00</td></tr>
<tr><td class="label">Comercio</td><td class="merchant">CAFE DEL SOL</td></tr>
</table>
</body></html>`

func parseDoc(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

func mustQuery(t *testing.T, expr string) *Query {
	t.Helper()
	q, err := Parse(expr)
	require.NoError(t, err)
	return q
}

func TestInterpreterExtract(t *testing.T) {
	interp := NewInterpreter(0)
	root := parseDoc(t, sampleDoc)

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"class match", "td.amount", "CRC 15,450.00"},
		{"chained", "table td.merchant", "CAFE DEL SOL"},
		{"id match", "div#header", "Banco Sol"},
		{"nth row", "table tr:nth(2) td.label", "Comercio"},
		{"attribute read", "td.amount @data-raw", "15450.00"},
		{"no match", "td.missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interp.Extract(root, mustQuery(t, tt.expr))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpreterDirectChild(t *testing.T) {
	interp := NewInterpreter(0)
	root := parseDoc(t, `<html><body><div class="outer"><p>direct</p><span><p>nested</p></span></div></body></html>`)

	nodes, err := interp.SelectAll(root, mustQuery(t, "div.outer > p"))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "direct", Text(nodes[0]))

	nodes, err = interp.SelectAll(root, mustQuery(t, "div.outer p"))
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestInterpreterTimeout(t *testing.T) {
	// A tree large enough to cross the periodic clock check with a
	// deadline that has already passed
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 2000; i++ {
		sb.WriteString("<div><span>x</span></div>")
	}
	sb.WriteString("</body></html>")

	root := parseDoc(t, sb.String())
	interp := NewInterpreter(1) // 1ns: expired before evaluation starts

	_, err := interp.SelectAll(root, mustQuery(t, "span"))
	require.Error(t, err)
}

func TestInterpreterNodeBudget(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 60_000; i++ {
		sb.WriteString("<i></i>")
	}
	sb.WriteString("</body></html>")

	root := parseDoc(t, sb.String())
	interp := NewInterpreter(0)

	// Two full traversals of a 60k-node body exceed the visit budget
	_, err := interp.SelectAll(root, mustQuery(t, "* i"))
	require.Error(t, err)
}
