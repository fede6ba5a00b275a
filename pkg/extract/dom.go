package extract

import (
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

func now() time.Time { return time.Now() }

// parseHTML parses a document, tolerating the malformed markup real pages
// ship.
func parseHTML(rawHTML string) (*html.Node, error) {
	return html.Parse(strings.NewReader(rawHTML))
}

// querySelector returns the first node matching the CSS selector, or nil.
// Invalid selectors match nothing rather than erroring; selector lists come
// from config and one bad candidate must not abort the batch.
func querySelector(doc *html.Node, selector string) *html.Node {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil
	}
	return cascadia.Query(doc, sel)
}

// querySelectorAll returns all nodes matching the CSS selector.
func querySelectorAll(doc *html.Node, selector string) []*html.Node {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil
	}
	return cascadia.QueryAll(doc, sel)
}

// firstMatch tries an ordered list of selector candidates and returns the
// first node found. Ordered candidates are how extraction tolerates markup
// variants across page redesigns.
func firstMatch(doc *html.Node, selectors []string) *html.Node {
	for _, s := range selectors {
		if n := querySelector(doc, s); n != nil {
			return n
		}
	}
	return nil
}

// firstMatchAll tries selector families in order and returns the matches of
// the first family that yields at least one node. Families are never merged.
func firstMatchAll(doc *html.Node, selectorFamilies []string) []*html.Node {
	for _, s := range selectorFamilies {
		if nodes := querySelectorAll(doc, s); len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

// textFromSelectors extracts trimmed visible text from the first matching
// selector candidate.
func textFromSelectors(doc *html.Node, selectors []string) string {
	if n := firstMatch(doc, selectors); n != nil {
		return strings.TrimSpace(visibleText(n))
	}
	return ""
}

// excludedTags are removed entirely from visible-text extraction: scripts
// and styling, navigation chrome, media, and code blocks.
var excludedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"canvas":   true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
	"button":   true,
	"img":      true,
	"video":    true,
	"audio":    true,
	"picture":  true,
	"code":     true,
	"pre":      true,
	"template": true,
}

// blockTags get a blank line around their text so paragraphs stay readable
// after flattening.
var blockTags = map[string]bool{
	"p":          true,
	"div":        true,
	"section":    true,
	"article":    true,
	"main":       true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
	"ul":         true,
	"ol":         true,
	"table":      true,
	"blockquote": true,
}

// lineTags get a single newline: list items, table rows, explicit breaks.
var lineTags = map[string]bool{
	"li": true,
	"tr": true,
	"br": true,
	"dt": true,
	"dd": true,
}

// visibleText reconstructs readable text from a subtree, skipping excluded
// tags and inline-hidden elements, and applying spacing per tag class.
func visibleText(n *html.Node) string {
	var b strings.Builder
	walkVisible(n, &b)
	return collapseBlankLines(b.String())
}

func walkVisible(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if b.Len() > 0 && !endsWithSpace(b) {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if excludedTags[tag] || isInlineHidden(n) {
			return
		}
		if blockTags[tag] {
			b.WriteString("\n\n")
		} else if lineTags[tag] {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkVisible(c, b)
		}
		if blockTags[tag] {
			b.WriteString("\n\n")
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkVisible(c, b)
	}
}

// isInlineHidden catches the common inline hiding styles and the hidden
// attribute. Computed styles are not available from static HTML; this is
// best-effort by design of the extraction contract.
func isInlineHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(attr.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	if s == "" {
		return true
	}
	last := s[len(s)-1]
	return last == ' ' || last == '\n'
}

// collapseBlankLines normalizes runs of blank lines down to one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true // drop leading blanks
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}
	// Drop a trailing blank line.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// documentTitle pulls the page title from raw HTML: <title> first, og:title
// as fallback.
func documentTitle(rawHTML string) string {
	doc, err := parseHTML(rawHTML)
	if err != nil {
		return ""
	}
	if n := querySelector(doc, "title"); n != nil && n.FirstChild != nil {
		if t := strings.TrimSpace(n.FirstChild.Data); t != "" {
			return t
		}
	}
	return metaContent(doc, "og:title")
}

// metaContent reads a meta tag's content by name or property.
func metaContent(doc *html.Node, nameOrProperty string) string {
	for _, n := range querySelectorAll(doc, "meta") {
		var matched bool
		var content string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "name", "property":
				if attr.Val == nameOrProperty {
					matched = true
				}
			case "content":
				content = attr.Val
			}
		}
		if matched && content != "" {
			return strings.TrimSpace(content)
		}
	}
	return ""
}

// attrValue returns a node attribute's value, empty if absent.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

// truncateRunes caps a string at max runes without splitting a rune.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
