package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownParser_Parse_NoFrontmatter(t *testing.T) {
	p := NewMarkdownParser()

	content := `# Cold Storage SOP

## 1.0 Purpose

Describe how samples are stored.
`

	doc, err := p.Parse("sop.md", []byte(content))
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "sop.md", doc.Filename)
	assert.Equal(t, MimeMarkdown, doc.MimeType)
	assert.Equal(t, content, doc.Content)
	assert.Equal(t, content, doc.Body)
	assert.Equal(t, "Cold Storage SOP", doc.Title)
	assert.Len(t, doc.Hash, 64)
	assert.False(t, doc.HasFrontmatter())
}

func TestMarkdownParser_Parse_WithFrontmatter(t *testing.T) {
	p := NewMarkdownParser()

	content := `---
title: Sample Storage
revision: C
owners:
  - QA
  - Lab Operations
---
# 1.0 Purpose

Samples must be stored at 2-8 °C.
`

	doc, err := p.Parse("sop-014.md", []byte(content))
	require.NoError(t, err)

	assert.True(t, doc.HasFrontmatter())
	assert.Equal(t, "Sample Storage", doc.Title)
	assert.Equal(t, "C", doc.Revision())

	owners, ok := doc.Frontmatter["owners"].([]any)
	require.True(t, ok)
	assert.Len(t, owners, 2)

	// Body excludes frontmatter
	assert.True(t, len(doc.Body) < len(doc.Content))
	assert.Contains(t, doc.Body, "# 1.0 Purpose")
	assert.NotContains(t, doc.Body, "---")
	assert.Equal(t, doc.Body, doc.Text())
}

func TestMarkdownParser_Parse_InvalidFrontmatter(t *testing.T) {
	p := NewMarkdownParser()

	// Missing closing delimiter - should treat as body
	content := `---
category: sop

# No closing delimiter

Content here.
`

	doc, err := p.Parse("test.md", []byte(content))
	require.NoError(t, err)

	assert.False(t, doc.HasFrontmatter())
	assert.Equal(t, content, doc.Body)
}

func TestMarkdownParser_Parse_MalformedYAML(t *testing.T) {
	p := NewMarkdownParser()

	content := `---
category: [unclosed array
---
# Test

Content.
`

	doc, err := p.Parse("test.md", []byte(content))
	require.NoError(t, err)

	assert.False(t, doc.HasFrontmatter())
	assert.Equal(t, content, doc.Body)
}

func TestMarkdownParser_Parse_WindowsLineEndings(t *testing.T) {
	p := NewMarkdownParser()

	content := "---\r\nrevision: B\r\n---\r\n# Title\r\n"

	doc, err := p.Parse("test.md", []byte(content))
	require.NoError(t, err)

	assert.True(t, doc.HasFrontmatter())
	assert.Equal(t, "B", doc.Revision())
}

func TestMarkdownParser_CanParse(t *testing.T) {
	p := NewMarkdownParser()

	tests := []struct {
		mimeType string
		want     bool
	}{
		{"text/markdown", true},
		{"text/x-markdown", true},
		{"text/plain", false},
		{"text/html", false},
		{"application/pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			assert.Equal(t, tt.want, p.CanParse(tt.mimeType))
		})
	}
}

func TestMarkdownParser_IDStability(t *testing.T) {
	p := NewMarkdownParser()

	a, err := p.Parse("test.md", []byte("# Test 1"))
	require.NoError(t, err)
	b, err := p.Parse("test.md", []byte("# Test 1"))
	require.NoError(t, err)
	c, err := p.Parse("test.md", []byte("# Test 2"))
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestTextParser_Parse(t *testing.T) {
	p := NewTextParser()

	doc, err := p.Parse("notes.txt", []byte("\ufeff1.0 Purpose\nDo X."))
	require.NoError(t, err)

	assert.Equal(t, "1.0 Purpose\nDo X.", doc.Body)
	assert.Equal(t, MimeText, doc.MimeType)
	assert.True(t, p.CanParse("text/plain"))
	assert.False(t, p.CanParse("text/markdown"))
}
