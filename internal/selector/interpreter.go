package selector

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/sievefin/sift/internal/common"
)

// Budget caps one selector evaluation. The wall-clock deadline is the hard
// guarantee; the node budget keeps adversarial trees from burning the whole
// deadline on a single field.
const maxVisitedNodes = 100_000

// Interpreter evaluates parsed queries against a markup tree inside a fixed
// wall-clock budget. A zero Timeout means 100ms.
type Interpreter struct {
	Timeout time.Duration
}

// NewInterpreter creates an interpreter with the given per-evaluation timeout.
func NewInterpreter(timeout time.Duration) *Interpreter {
	return &Interpreter{Timeout: timeout}
}

func (i *Interpreter) deadline() time.Time {
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return time.Now().Add(timeout)
}

// SelectOne returns the first node matching the query, or nil.
func (i *Interpreter) SelectOne(root *html.Node, q *Query) (*html.Node, error) {
	nodes, err := i.sel(root, q, 1)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// SelectAll returns every node matching the query.
func (i *Interpreter) SelectAll(root *html.Node, q *Query) ([]*html.Node, error) {
	return i.sel(root, q, -1)
}

// Extract evaluates the query and returns the selected node's text, or the
// named attribute when the query carries one. Returns "" when nothing
// matches.
func (i *Interpreter) Extract(root *html.Node, q *Query) (string, error) {
	node, err := i.SelectOne(root, q)
	if err != nil || node == nil {
		return "", err
	}
	if q.Attr != "" {
		return attrValue(node, q.Attr), nil
	}
	return Text(node), nil
}

// Text returns the concatenated text content of a node.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

type evalState struct {
	deadline time.Time
	visited  int
}

func (s *evalState) tick() error {
	s.visited++
	if s.visited > maxVisitedNodes {
		return common.ErrSelectorTimeout
	}
	// Checking the clock on every visit would dominate evaluation time
	if s.visited%256 == 0 && time.Now().After(s.deadline) {
		return common.ErrSelectorTimeout
	}
	return nil
}

// sel evaluates the step chain; limit < 0 means unlimited matches.
func (i *Interpreter) sel(root *html.Node, q *Query, limit int) ([]*html.Node, error) {
	state := &evalState{deadline: i.deadline()}

	current := []*html.Node{root}
	for _, step := range q.Steps {
		var next []*html.Node
		for _, node := range current {
			found, err := collect(node, step, state)
			if err != nil {
				return nil, err
			}
			next = append(next, found...)
		}
		if step.Nth > 0 {
			if step.Nth > len(next) {
				return nil, nil
			}
			next = next[step.Nth-1 : step.Nth]
		}
		current = next
		if len(current) == 0 {
			return nil, nil
		}
	}

	if limit >= 0 && len(current) > limit {
		current = current[:limit]
	}
	return current, nil
}

// collect gathers descendants (or direct children) of n matching the step.
func collect(n *html.Node, step Step, state *evalState) ([]*html.Node, error) {
	var out []*html.Node

	if step.Direct {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if err := state.tick(); err != nil {
				return nil, err
			}
			if step.matches(child) {
				out = append(out, child)
			}
		}
		return out, nil
	}

	var walk func(*html.Node) error
	walk = func(node *html.Node) error {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if err := state.tick(); err != nil {
				return err
			}
			if step.matches(child) {
				out = append(out, child)
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(n); err != nil {
		return nil, err
	}
	return out, nil
}
