// Package source provides the document model shared by the file parsers and
// the remote fetcher.
package source

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Document represents a loaded document reduced to plain text.
type Document struct {
	// ID is the document identifier (derived from name and content hash).
	ID string `json:"id"`

	// Filename is the original filename, or the last URL path segment.
	Filename string `json:"filename"`

	// Location is the path or URL the document was loaded from.
	Location string `json:"location,omitempty"`

	// MimeType is the format the document was parsed as.
	MimeType string `json:"mime_type"`

	// Title is the document title when the format carries one.
	Title string `json:"title,omitempty"`

	// Content is the full extracted text.
	Content string `json:"content"`

	// Frontmatter contains parsed YAML frontmatter if present.
	Frontmatter map[string]any `json:"frontmatter,omitempty"`

	// Body is the content without frontmatter. This is the text compared.
	Body string `json:"body"`

	// Hash is the BLAKE3 fingerprint of the raw bytes.
	Hash string `json:"hash"`

	// LoadedAt is when the document was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// HasFrontmatter returns true if the document has parsed frontmatter.
func (d *Document) HasFrontmatter() bool {
	return len(d.Frontmatter) > 0
}

// Text returns the body, falling back to the full content.
func (d *Document) Text() string {
	if d.Body != "" {
		return d.Body
	}
	return d.Content
}

// Revision returns the "revision" or "version" frontmatter field, if any.
func (d *Document) Revision() string {
	for _, key := range []string{"revision", "version"} {
		switch v := d.Frontmatter[key].(type) {
		case string:
			return v
		case int, float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// Fingerprint returns the hex BLAKE3-256 digest of content.
func Fingerprint(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Changed reports whether content differs from the fingerprinted document.
func (d *Document) Changed(content []byte) bool {
	return d.Hash != Fingerprint(content)
}

// GenerateID creates a stable document ID from format, filename and content.
func GenerateID(kind, filename string, content []byte) string {
	base := filepath.Base(filename)
	name := sanitizeID(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" {
		name = "document"
	}
	// 12 hex chars = 48 bits
	return fmt.Sprintf("doc.%s.%s.%s", kind, name, Fingerprint(content)[:12])
}

// sanitizeID makes a string safe for use as an ID segment.
func sanitizeID(s string) string {
	var buf bytes.Buffer
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z':
			buf.WriteRune(r)
		case r >= '0' && r <= '9':
			buf.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '-' {
				buf.WriteByte('-')
			}
		}
	}
	return strings.TrimRight(buf.String(), "-")
}

// NewDocument builds a Document from extracted text, filling ID and hash
// from the raw bytes.
func NewDocument(kind, filename, mimeType string, raw []byte, text string) *Document {
	return &Document{
		ID:       GenerateID(kind, filename, raw),
		Filename: filepath.Base(filename),
		Location: filename,
		MimeType: mimeType,
		Content:  text,
		Body:     text,
		Hash:     Fingerprint(raw),
		LoadedAt: time.Now().UTC(),
	}
}
