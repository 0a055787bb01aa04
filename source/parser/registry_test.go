package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetByMimeType(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		mimeType string
		want     string
	}{
		{"text/markdown", MimeMarkdown},
		{"text/x-markdown", MimeMarkdown},
		{"text/plain", MimeText},
		{"text/plain; charset=utf-8", MimeText},
		{"text/html", MimeHTML},
		{"application/xhtml+xml", MimeHTML},
		{"application/pdf", MimePDF},
		{MimeDOCX, MimeDOCX},
		{"application/octet-stream", ""},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			p := r.GetByMimeType(tt.mimeType)
			if tt.want == "" {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, tt.want, p.MimeType())
		})
	}
}

func TestRegistry_GetByExtension(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		filename string
		wantNil  bool
	}{
		{"sop.md", false},
		{"sop.markdown", false},
		{"sop.txt", false},
		{"sop.HTML", false},
		{"sop.pdf", false},
		{"sop.docx", false},
		{"sop.doc", true},
		{"noextension", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			p := r.GetByExtension(tt.filename)
			if tt.wantNil {
				assert.Nil(t, p)
			} else {
				assert.NotNil(t, p)
			}
		})
	}
}

func TestRegistry_Parse(t *testing.T) {
	r := NewRegistry()

	t.Run("markdown file", func(t *testing.T) {
		doc, err := r.Parse("test.md", []byte("# Test\n\nContent"))
		require.NoError(t, err)
		assert.Equal(t, "test.md", doc.Filename)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := r.Parse("test.xyz", []byte("content"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	})
}

func TestRegistry_ParseMimeType(t *testing.T) {
	r := NewRegistry()

	t.Run("content type wins over extension", func(t *testing.T) {
		doc, err := r.ParseMimeType("page", "text/html; charset=utf-8", []byte("<h1>Scope</h1>"))
		require.NoError(t, err)
		assert.Equal(t, MimeHTML, doc.MimeType)
		assert.Contains(t, doc.Body, "# Scope")
	})

	t.Run("generic type falls back to extension", func(t *testing.T) {
		doc, err := r.ParseMimeType("notes.txt", "application/octet-stream", []byte("1.0 Purpose"))
		require.NoError(t, err)
		assert.Equal(t, MimeText, doc.MimeType)
	})

	t.Run("unknown type and extension", func(t *testing.T) {
		_, err := r.ParseMimeType("image", "image/png", []byte{0x89})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestRegistry_ParseFile(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()

	path := filepath.Join(dir, "sop.md")
	require.NoError(t, os.WriteFile(path, []byte("# 1.0 Purpose\nDo X."), 0644))

	doc, err := r.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Location)
	assert.Equal(t, "# 1.0 Purpose\nDo X.", doc.Body)

	_, err = r.ParseFile(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)

	_, err = r.ParseFile(filepath.Join(dir, "image.png"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRegistry_ListMimeTypes(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{
		MimePDF,
		MimeDOCX,
		MimeHTML,
		MimeMarkdown,
		MimeText,
	}, r.ListMimeTypes())
}

func TestMimeTypeFromExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".md", MimeMarkdown},
		{".MD", MimeMarkdown},
		{".txt", MimeText},
		{".htm", MimeHTML},
		{".pdf", MimePDF},
		{".docx", MimeDOCX},
		{".unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, MimeTypeFromExtension(tt.ext))
		})
	}
}

func TestExtensionFromMimeType(t *testing.T) {
	assert.Equal(t, ".md", ExtensionFromMimeType("text/markdown"))
	assert.Equal(t, ".html", ExtensionFromMimeType("text/html; charset=utf-8"))
	assert.Equal(t, ".docx", ExtensionFromMimeType(MimeDOCX))
	assert.Equal(t, "", ExtensionFromMimeType("image/png"))
}
