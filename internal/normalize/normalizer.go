// Package normalize canonicalizes raw notification messages into a uniform
// in-memory representation before any pattern matching runs.
package normalize

import (
	stdhtml "html"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sievefin/sift/internal/model"
)

// Normalized is the canonical form of one message: decoded plain text plus,
// when the HTML body parses, a markup tree for structural selectors.
type Normalized struct {
	Message  *model.Message
	Tree     *html.Node // nil when normalization degraded to text-only
	Text     string     // entity-decoded, whitespace-collapsed plain text
	Subject  string     // entity-decoded subject
	Degraded bool       // true when the markup could not be used
}

var (
	whitespaceRe = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	quotedLineRe = regexp.MustCompile(`(?m)^>.*$`)
	titleCaser   = cases.Title(language.Und)
)

// Normalize canonicalizes a raw message. It never fails: on malformed markup
// it falls back to plain text only and records the degradation.
func Normalize(msg *model.Message) *Normalized {
	n := &Normalized{
		Message: msg,
		Subject: decodeEntities(msg.Subject),
	}

	text := msg.TextBody

	if msg.HTMLBody != "" {
		tree, err := html.Parse(strings.NewReader(msg.HTMLBody))
		if err != nil || tree == nil {
			n.Degraded = true
			slog.Debug("markup parse failed, degrading to text-only",
				"message_id", msg.ProviderID,
				"error", err)
		} else {
			n.Tree = tree
			if text == "" {
				text = flattenTree(tree)
			}
		}
	}

	n.Text = CleanText(text)
	return n
}

// CleanText decodes entity references and collapses whitespace. Unresolved
// entities are a primary cause of otherwise-correct patterns failing to
// match, so decoding happens before anything else sees the text.
func CleanText(text string) string {
	text = decodeEntities(text)
	text = quotedLineRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// CleanMerchant prepares a merchant string for storage: entity decoding and
// whitespace collapsing only. Beyond that the extracted value is kept
// verbatim, casing included.
func CleanMerchant(s string) string {
	s = decodeEntities(s)
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// DisplayMerchant renders a merchant string for terminal output. All-caps
// strings read better title-cased; stored values are never rewritten.
func DisplayMerchant(s string) string {
	if s == strings.ToUpper(s) && len(s) > 3 {
		return titleCaser.String(strings.ToLower(s))
	}
	return s
}

// decodeEntities resolves named and numeric entity references. Runs twice to
// catch double-encoded content, which some senders produce.
func decodeEntities(s string) string {
	decoded := stdhtml.UnescapeString(s)
	if strings.ContainsRune(decoded, '&') {
		decoded = stdhtml.UnescapeString(decoded)
	}
	return decoded
}

// flattenTree extracts the visible text of a markup tree in document order.
func flattenTree(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "head":
				return
			case "br", "p", "div", "tr", "li", "table":
				sb.WriteString("\n")
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "div", "tr", "li":
				sb.WriteString("\n")
			}
		}
	}
	walk(n)
	return sb.String()
}
