// Package selector implements the restricted declarative selector language
// used by extraction templates. The interpreter supports exactly four
// operations over a parsed markup tree: select-one, select-all, get-text,
// and get-attribute. Selectors are data; nothing here evaluates code.
package selector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Step is one segment of a selector chain.
type Step struct {
	Tag    string // element name, or "*" for any
	Class  string
	ID     string
	Nth    int  // 1-based position among matches of this step; 0 = first
	Direct bool // true when joined to the previous step with '>'
}

// Query is a parsed selector: a chain of steps plus an optional attribute
// to read instead of the node's text.
type Query struct {
	Attr  string
	Steps []Step
}

var stepRe = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*|\*)?(?:#([a-zA-Z][\w-]*))?(?:\.([a-zA-Z][\w-]*))?(?::nth\((\d{1,3})\))?$`)

// Parse parses a selector expression. The grammar is deliberately small:
// whitespace-separated steps, '>' for direct children, each step
// tag[#id][.class][:nth(n)], with an optional trailing "@attr".
// Anything outside the grammar is rejected.
func Parse(expr string) (*Query, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty selector")
	}
	if len(expr) > 256 {
		return nil, fmt.Errorf("selector too long (%d chars)", len(expr))
	}

	q := &Query{}

	if at := strings.LastIndex(expr, "@"); at >= 0 {
		attr := strings.TrimSpace(expr[at+1:])
		if !isName(attr) {
			return nil, fmt.Errorf("invalid attribute name %q", attr)
		}
		q.Attr = attr
		expr = strings.TrimSpace(expr[:at])
	}

	direct := false
	for _, token := range strings.Fields(expr) {
		if token == ">" {
			if len(q.Steps) == 0 || direct {
				return nil, fmt.Errorf("misplaced combinator in selector")
			}
			direct = true
			continue
		}

		m := stepRe.FindStringSubmatch(token)
		if m == nil {
			return nil, fmt.Errorf("invalid selector step %q", token)
		}

		step := Step{Tag: m[1], ID: m[2], Class: m[3], Direct: direct}
		if step.Tag == "" {
			step.Tag = "*"
		}
		step.Tag = strings.ToLower(step.Tag)
		if m[4] != "" {
			n, err := strconv.Atoi(m[4])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid nth index %q", m[4])
			}
			step.Nth = n
		}

		q.Steps = append(q.Steps, step)
		direct = false
	}

	if len(q.Steps) == 0 || direct {
		return nil, fmt.Errorf("incomplete selector %q", expr)
	}

	return q, nil
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_'):
		default:
			return false
		}
	}
	return true
}

// matches reports whether a node satisfies a step, ignoring position.
func (s Step) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.Tag != "*" && n.Data != s.Tag {
		return false
	}
	if s.ID != "" && attrValue(n, "id") != s.ID {
		return false
	}
	if s.Class != "" {
		found := false
		for _, c := range strings.Fields(attrValue(n, "class")) {
			if c == s.Class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
