package main

import (
	"strings"

	"golang.org/x/net/html"
)

// Containers of site chrome stripped before serving: navigation header,
// footer, language switcher, toolbar, and section edit links.
var strippedClasses = []string{
	"vector-header-container",
	"mw-footer-container",
	"vector-page-toolbar",
	"mw-editsection",
}

const strippedID = "p-lang-btn"

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func shouldStrip(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.Data == "script" || n.Data == "style" {
		return true
	}
	if attrValue(n, "id") == strippedID {
		return true
	}
	for _, class := range strippedClasses {
		if hasClass(n, class) {
			return true
		}
	}
	return false
}

// sanitizeDocument rewrites third-party markup in place so it is safe to
// render: scripts, styles, event handlers, javascript: URLs, and site chrome
// are removed, and root-relative references are made absolute against base.
func sanitizeDocument(doc *html.Node, base string) {
	// Snapshot removals first; detaching while walking would skip siblings.
	var doomed []*html.Node

	walk(doc, func(n *html.Node) bool {
		if shouldStrip(n) {
			doomed = append(doomed, n)
			return false
		}
		if n.Type != html.ElementNode {
			return true
		}

		kept := n.Attr[:0]
		for _, attr := range n.Attr {
			key := strings.ToLower(attr.Key)
			val := attr.Val

			if strings.HasPrefix(key, "on") {
				continue
			}

			switch key {
			case "href", "src", "action", "formaction":
				if strings.HasPrefix(strings.ToLower(strings.TrimSpace(val)), "javascript:") {
					continue
				}
				if strings.HasPrefix(val, "/wiki/") ||
					strings.HasPrefix(val, "/w/") ||
					strings.HasPrefix(val, "/static/") {
					attr.Val = base + val
				}
			}

			kept = append(kept, attr)
		}
		n.Attr = kept

		return true
	})

	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		return true
	})
	return sb.String()
}

func setText(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// pageHeading locates the article title element: the span inside the first
// heading when present, otherwise the heading itself.
func pageHeading(doc *html.Node) *html.Node {
	heading := findByAttr(doc, "id", "firstHeading")
	if heading == nil {
		walk(doc, func(n *html.Node) bool {
			if heading != nil {
				return false
			}
			if n.Type == html.ElementNode && n.Data == "h1" {
				heading = n
				return false
			}
			return true
		})
	}
	if heading == nil {
		return nil
	}

	for child := heading.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "span" {
			return child
		}
	}

	return heading
}

func renderDocument(doc *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// sanitizePage is the full pipeline for navigation mode.
func (a *app) sanitizePage(markup string) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	sanitizeDocument(doc, a.cfg.wikiBase())

	return renderDocument(doc)
}

// redactPage is the guessing-mode pipeline: sanitize, blank the visible
// heading, then blank every occurrence of the title's literal, phonetic, and
// romanized forms in the rendered output.
func (a *app) redactPage(markup string) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	sanitizeDocument(doc, a.cfg.wikiBase())

	heading := pageHeading(doc)
	if heading == nil {
		return renderDocument(doc)
	}

	title := textContent(heading)
	setText(heading, redactFill(title))

	rendered, err := renderDocument(doc)
	if err != nil {
		return "", err
	}

	return applyRedaction(rendered, a.red.derive(title)), nil
}
