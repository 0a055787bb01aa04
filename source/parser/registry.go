// Package parser turns document files into plain text for comparison.
package parser

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/c360studio/semdiff/source"
)

// ErrUnsupportedFormat is returned when no parser handles a file type.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// MIME types handled by the default parsers.
const (
	MimeMarkdown = "text/markdown"
	MimeText     = "text/plain"
	MimeHTML     = "text/html"
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Parser defines the interface for document parsers.
type Parser interface {
	// Parse parses a document and returns its extracted text.
	Parse(filename string, content []byte) (*source.Document, error)

	// CanParse returns true if this parser handles the given MIME type.
	CanParse(mimeType string) bool

	// MimeType returns the primary MIME type for this parser.
	MimeType() string
}

// Registry manages document parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // keyed by primary MIME type
}

// DefaultRegistry is the global parser registry with default parsers.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new parser registry with default parsers.
func NewRegistry() *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
	}

	r.Register(NewMarkdownParser())
	r.Register(NewTextParser())
	r.Register(NewHTMLParser())
	r.Register(NewPDFParser())
	r.Register(NewDOCXParser())

	return r
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.MimeType()] = p
}

// GetByMimeType returns a parser for the given MIME type. Parameters such
// as "; charset=utf-8" are ignored.
func (r *Registry) GetByMimeType(mimeType string) Parser {
	mimeType = baseMimeType(mimeType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Direct match
	if p, ok := r.parsers[mimeType]; ok {
		return p
	}

	// Check if any parser can handle this type, in a stable order
	for _, t := range r.sortedTypes() {
		if p := r.parsers[t]; p.CanParse(mimeType) {
			return p
		}
	}

	return nil
}

// GetByExtension returns a parser for a file based on its extension.
func (r *Registry) GetByExtension(filename string) Parser {
	return r.GetByMimeType(MimeTypeFromExtension(filepath.Ext(filename)))
}

// Parse parses a document using the parser for its extension.
func (r *Registry) Parse(filename string, content []byte) (*source.Document, error) {
	parser := r.GetByExtension(filename)
	if parser == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	return parser.Parse(filename, content)
}

// ParseMimeType parses content whose MIME type is known, as with a fetched
// document. Generic types fall back to the filename extension.
func (r *Registry) ParseMimeType(filename, mimeType string, content []byte) (*source.Document, error) {
	base := baseMimeType(mimeType)
	if base == "" || base == "application/octet-stream" {
		return r.Parse(filename, content)
	}
	parser := r.GetByMimeType(base)
	if parser == nil {
		if byExt := r.GetByExtension(filename); byExt != nil {
			return byExt.Parse(filename, content)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, base)
	}
	return parser.Parse(filename, content)
}

// ParseFile reads and parses a local file.
func (r *Registry) ParseFile(path string) (*source.Document, error) {
	if r.GetByExtension(path) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := r.Parse(path, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	doc.Location = path
	return doc, nil
}

// ListMimeTypes returns all registered MIME types, sorted.
func (r *Registry) ListMimeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedTypes()
}

func (r *Registry) sortedTypes() []string {
	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MimeTypeFromExtension returns the MIME type for a file extension.
func MimeTypeFromExtension(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".md", ".markdown":
		return MimeMarkdown
	case ".txt", ".text":
		return MimeText
	case ".html", ".htm", ".xhtml":
		return MimeHTML
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	default:
		return "application/octet-stream"
	}
}

// ExtensionFromMimeType returns a typical file extension for a MIME type.
func ExtensionFromMimeType(mimeType string) string {
	switch baseMimeType(mimeType) {
	case MimeMarkdown, "text/x-markdown":
		return ".md"
	case MimeText:
		return ".txt"
	case MimeHTML, "application/xhtml+xml":
		return ".html"
	case MimePDF:
		return ".pdf"
	case MimeDOCX:
		return ".docx"
	default:
		return ""
	}
}

func baseMimeType(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return base
}
