package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"

	"github.com/c360studio/semdiff/source"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// Page chrome dropped before conversion when no main content element exists.
var (
	chromeTags = map[string]bool{
		"nav": true, "header": true, "footer": true, "aside": true,
		"script": true, "style": true, "noscript": true, "iframe": true,
		"object": true, "embed": true, "form": true, "button": true,
	}
	chromeClasses = map[string]bool{
		"nav": true, "navbar": true, "navigation": true, "sidebar": true,
		"menu": true, "footer": true, "header": true, "breadcrumb": true,
		"advertisement": true, "social": true, "share": true, "comments": true,
	}
)

// HTMLParser converts HTML pages to markdown text so headings survive as
// markdown heading lines.
type HTMLParser struct {
	converter *md.Converter
}

// NewHTMLParser creates a new HTML parser.
func NewHTMLParser() *HTMLParser {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTMLParser{converter: converter}
}

// Parse extracts the title and main content of an HTML page.
func (p *HTMLParser) Parse(filename string, content []byte) (*source.Document, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	title := htmlTitle(root)
	markdown, err := p.converter.ConvertString(mainContent(root))
	if err != nil {
		return nil, fmt.Errorf("convert HTML: %w", err)
	}
	markdown = cleanMarkdown(markdown)
	if title == "" {
		title = markdownTitle(markdown)
	}

	doc := source.NewDocument("html", filename, MimeHTML, content, markdown)
	doc.Title = title
	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *HTMLParser) CanParse(mimeType string) bool {
	switch mimeType {
	case MimeHTML, "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *HTMLParser) MimeType() string {
	return MimeHTML
}

func htmlTitle(root *html.Node) string {
	if n := findElement(root, func(n *html.Node) bool { return n.Data == "title" }); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

// mainContent renders the main, article or role=main element, or the body
// stripped of navigation chrome.
func mainContent(root *html.Node) string {
	for _, match := range []func(*html.Node) bool{
		func(n *html.Node) bool { return n.Data == "main" },
		func(n *html.Node) bool { return n.Data == "article" },
		func(n *html.Node) bool { return attr(n, "role") == "main" },
	} {
		if n := findElement(root, match); n != nil {
			return renderNode(n)
		}
	}

	removeChrome(root)
	if body := findElement(root, func(n *html.Node) bool { return n.Data == "body" }); body != nil {
		return renderNode(body)
	}
	return renderNode(root)
}

// findElement returns the first element, depth first, satisfying match.
func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isChrome(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if chromeTags[n.Data] {
		return true
	}
	for _, class := range strings.Fields(strings.ToLower(attr(n, "class"))) {
		if chromeClasses[class] {
			return true
		}
	}
	return false
}

func removeChrome(n *html.Node) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if isChrome(node) {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// cleanMarkdown trims trailing spaces and collapses runs of blank lines.
func cleanMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
