package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/c360studio/semdiff/source"
	"github.com/ledongthuc/pdf"
)

// PDFParser parses PDF documents by extracting text content.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts the plain text of every page. Image-only PDFs yield an
// empty body.
func (p *PDFParser) Parse(filename string, content []byte) (*source.Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var textBuilder strings.Builder

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Some pages fail to decode; keep the rest
			continue
		}

		if text = strings.TrimSpace(text); text != "" {
			if textBuilder.Len() > 0 {
				textBuilder.WriteString("\n\n")
			}
			textBuilder.WriteString(text)
		}
	}

	return source.NewDocument("pdf", filename, MimePDF, content, textBuilder.String()), nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *PDFParser) CanParse(mimeType string) bool {
	return mimeType == MimePDF
}

// MimeType returns the primary MIME type for this parser.
func (p *PDFParser) MimeType() string {
	return MimePDF
}
