package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	// StrictPolicy removes all markup
	StrictPolicy *bluemonday.Policy
	// MailPolicy keeps the formatting found in ordinary HTML mail
	MailPolicy *bluemonday.Policy
)

func init() {
	StrictPolicy = bluemonday.StrictPolicy()

	MailPolicy = bluemonday.UGCPolicy()
	MailPolicy.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	MailPolicy.AllowElements("strong", "em", "u", "s", "code", "pre", "font", "center")
	MailPolicy.AllowElements("ul", "ol", "li", "blockquote", "hr")
	MailPolicy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td")
	MailPolicy.AllowAttrs("href").OnElements("a")
	MailPolicy.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	MailPolicy.AllowAttrs("align", "valign", "bgcolor", "colspan", "rowspan", "width").OnElements("table", "tr", "td", "th")
	MailPolicy.AllowAttrs("color", "face", "size").OnElements("font")
	MailPolicy.AllowAttrs("style").OnElements("span", "div", "p", "td", "table")
	MailPolicy.AllowStyling()
	MailPolicy.RequireParseableURLs(true)
	MailPolicy.AllowURLSchemes("http", "https", "mailto", "cid")
	MailPolicy.AddTargetBlankToFullyQualifiedLinks(true)
}

// SanitizeHTML sanitizes a message body for display in the browser
func SanitizeHTML(body string) string {
	return MailPolicy.Sanitize(body)
}

// StripHTML removes all HTML tags from content
func StripHTML(body string) string {
	return StrictPolicy.Sanitize(body)
}

// blockElements end a line of text when converting HTML to plain text
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true,
}

// HTMLToText renders the readable text of an HTML body, one block per line.
// Script and style contents are dropped.
func HTMLToText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(StripHTML(body))
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "head" {
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
		}
	}
	walk(doc)

	return strings.TrimSpace(b.String())
}
