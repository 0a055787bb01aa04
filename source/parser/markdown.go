package parser

import (
	"fmt"
	"strings"

	"github.com/c360studio/semdiff/source"
	"gopkg.in/yaml.v3"
)

// MarkdownParser parses markdown documents with optional YAML frontmatter.
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse parses a markdown document, extracting frontmatter and body.
func (p *MarkdownParser) Parse(filename string, content []byte) (*source.Document, error) {
	str := string(content)
	doc := source.NewDocument("markdown", filename, MimeMarkdown, content, str)

	// Check for YAML frontmatter
	if strings.HasPrefix(str, "---\n") || strings.HasPrefix(str, "---\r\n") {
		frontmatter, body, err := extractFrontmatter(str)
		if err == nil {
			doc.Frontmatter = frontmatter
			doc.Body = body
		}
		// If frontmatter parsing fails, the entire content stays as body
	}

	if title, ok := doc.Frontmatter["title"].(string); ok {
		doc.Title = title
	} else {
		doc.Title = markdownTitle(doc.Body)
	}

	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *MarkdownParser) CanParse(mimeType string) bool {
	switch mimeType {
	case MimeMarkdown, "text/x-markdown":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *MarkdownParser) MimeType() string {
	return MimeMarkdown
}

// extractFrontmatter parses YAML frontmatter from markdown content.
// Returns the parsed frontmatter map, the remaining body, and any error.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	// Skip the opening delimiter
	start := len(delimiter)
	if len(content) > start && content[start] == '\r' {
		start++
	}
	if len(content) > start && content[start] == '\n' {
		start++
	}

	// Find the closing delimiter
	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	yamlContent := content[start : start+closeIdx]

	// Find where the body starts (after closing delimiter and newline)
	bodyStart := start + closeIdx + 1 + len(delimiter)
	for bodyStart < len(content) && (content[bodyStart] == '\n' || content[bodyStart] == '\r') {
		bodyStart++
	}

	body := ""
	if bodyStart < len(content) {
		body = content[bodyStart:]
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &frontmatter); err != nil {
		return nil, content, fmt.Errorf("parse YAML frontmatter: %w", err)
	}

	return frontmatter, body, nil
}

// markdownTitle extracts the first H1 heading from markdown.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// TextParser passes plain text through unchanged.
type TextParser struct{}

// NewTextParser creates a new plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse returns the content as the document body.
func (p *TextParser) Parse(filename string, content []byte) (*source.Document, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	return source.NewDocument("text", filename, MimeText, content, text), nil
}

// CanParse returns true for plain text.
func (p *TextParser) CanParse(mimeType string) bool {
	return mimeType == MimeText
}

// MimeType returns the primary MIME type for this parser.
func (p *TextParser) MimeType() string {
	return MimeText
}
