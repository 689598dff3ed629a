// Package content models the rich-text body of a document: an ordered list
// of titled sections, each holding a ProseMirror-style node tree.
package content

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode"
)

// Section is one titled block of a document body.
type Section struct {
	Title   string `json:"title"`
	Content Node   `json:"content"`
}

// Node is a rich-text tree node as produced by the editor.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline formatting applied to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ParseSections decodes a stored content blob. Empty input yields no
// sections. A bare document node is accepted as a single untitled section.
func ParseSections(raw []byte) ([]Section, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []Section{}, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var doc Node
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode content document: %w", err)
		}
		return []Section{{Content: doc}}, nil
	}

	var sections []Section
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("decode content sections: %w", err)
	}
	if sections == nil {
		sections = []Section{}
	}
	return sections, nil
}

// Marshal encodes sections for storage.
func Marshal(sections []Section) ([]byte, error) {
	if sections == nil {
		sections = []Section{}
	}
	return json.Marshal(sections)
}

// PlainText flattens a node tree, separating blocks with newlines.
func (n Node) PlainText() string {
	var b strings.Builder
	n.writeText(&b)
	return strings.TrimSpace(b.String())
}

func (n Node) writeText(b *strings.Builder) {
	if n.Type == "text" {
		b.WriteString(n.Text)
		return
	}
	if n.Type == "hardBreak" {
		b.WriteString("\n")
		return
	}
	for _, child := range n.Content {
		child.writeText(b)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem", "blockquote", "codeBlock", "tableRow":
		b.WriteString("\n")
	}
}

// HTML renders the node tree. Unknown node types render their children.
func (n Node) HTML() string {
	switch n.Type {
	case "":
		return ""
	case "doc":
		return renderChildren(n.Content)
	case "paragraph":
		return fmt.Sprintf("<p>%s</p>\n", renderChildren(n.Content))
	case "heading":
		level := 1
		if lvl, ok := n.Attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, renderChildren(n.Content), level)
	case "bulletList":
		return fmt.Sprintf("<ul>\n%s</ul>\n", renderChildren(n.Content))
	case "orderedList":
		return fmt.Sprintf("<ol>\n%s</ol>\n", renderChildren(n.Content))
	case "listItem":
		return fmt.Sprintf("<li>%s</li>\n", renderChildren(n.Content))
	case "blockquote":
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", renderChildren(n.Content))
	case "codeBlock":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(n.PlainText()))
	case "text":
		return renderText(n.Text, n.Marks)
	case "hardBreak":
		return "<br>"
	case "table":
		return fmt.Sprintf("<table>\n%s</table>\n", renderChildren(n.Content))
	case "tableRow":
		return fmt.Sprintf("<tr>\n%s</tr>\n", renderChildren(n.Content))
	case "tableCell":
		return fmt.Sprintf("<td>%s</td>\n", renderChildren(n.Content))
	case "tableHeader":
		return fmt.Sprintf("<th>%s</th>\n", renderChildren(n.Content))
	case "horizontalRule":
		return "<hr>\n"
	default:
		return renderChildren(n.Content)
	}
}

func renderChildren(nodes []Node) string {
	var b strings.Builder
	for _, node := range nodes {
		b.WriteString(node.HTML())
	}
	return b.String()
}

// renderText applies marks from the innermost outwards.
func renderText(text string, marks []Mark) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)

	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "code":
			out = "<code>" + out + "</code>"
		case "strike":
			out = "<s>" + out + "</s>"
		case "underline":
			out = "<u>" + out + "</u>"
		case "link":
			href, _ := marks[i].Attrs["href"].(string)
			if linkable(href) {
				out = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), out)
			}
		}
	}
	return out
}

var linkSchemes = map[string]bool{"http": true, "https": true, "mailto": true}

// linkable reports whether href may be rendered as a link. Relative links
// and http, https and mailto URLs pass. Anything else renders as plain text.
func linkable(href string) bool {
	if href == "" || strings.IndexFunc(href, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return u.Scheme == "" || linkSchemes[strings.ToLower(u.Scheme)]
}
