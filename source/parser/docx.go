package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/c360studio/semdiff/source"
)

const (
	docxBody     = "word/document.xml"
	docxCoreMeta = "docProps/core.xml"

	// maxDocxPart bounds the decompressed size of one archive part.
	maxDocxPart = 64 << 20
)

// DOCXParser extracts paragraph text from Word documents.
type DOCXParser struct{}

// NewDOCXParser creates a new DOCX parser.
func NewDOCXParser() *DOCXParser {
	return &DOCXParser{}
}

// Parse extracts one line per paragraph. Paragraphs styled HeadingN become
// markdown heading lines so the segmenter sees them as headings.
func (p *DOCXParser) Parse(filename string, content []byte) (*source.Document, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	body, err := readPart(archive, docxBody)
	if err != nil {
		return nil, err
	}
	root, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxBody, err)
	}

	var lines []string
	for _, para := range xmlquery.Find(root, "//*[local-name()='body']//*[local-name()='p']") {
		text := paragraphText(para)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if level := headingLevel(para); level > 0 {
			text = strings.Repeat("#", level) + " " + strings.TrimSpace(text)
		}
		lines = append(lines, text)
	}

	doc := source.NewDocument("docx", filename, MimeDOCX, content, strings.Join(lines, "\n"))
	if meta, err := readPart(archive, docxCoreMeta); err == nil {
		doc.Title = coreTitle(meta)
	}
	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *DOCXParser) CanParse(mimeType string) bool {
	return mimeType == MimeDOCX
}

// MimeType returns the primary MIME type for this parser.
func (p *DOCXParser) MimeType() string {
	return MimeDOCX
}

func readPart(archive *zip.Reader, name string) ([]byte, error) {
	f, err := archive.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDocxPart+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > maxDocxPart {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, maxDocxPart)
	}
	return data, nil
}

// paragraphText joins the text runs of one paragraph, honouring tabs and
// line breaks.
func paragraphText(para *xmlquery.Node) string {
	var sb strings.Builder
	for _, n := range xmlquery.Find(para, ".//*[local-name()='t' or local-name()='tab' or local-name()='br']") {
		switch n.Data {
		case "t":
			sb.WriteString(n.InnerText())
		case "tab":
			sb.WriteByte('\t')
		case "br":
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// headingLevel returns N for a paragraph styled "HeadingN" or "Title", else 0.
func headingLevel(para *xmlquery.Node) int {
	style := xmlquery.FindOne(para, "./*[local-name()='pPr']/*[local-name()='pStyle']")
	if style == nil {
		return 0
	}
	var val string
	for _, a := range style.Attr {
		if a.Name.Local == "val" {
			val = a.Value
		}
	}
	switch {
	case strings.EqualFold(val, "Title"):
		return 1
	case strings.HasPrefix(strings.ToLower(val), "heading"):
		n, err := strconv.Atoi(strings.TrimSpace(val[len("heading"):]))
		if err != nil || n < 1 {
			return 0
		}
		return min(n, 6)
	}
	return 0
}

func coreTitle(meta []byte) string {
	root, err := xmlquery.Parse(bytes.NewReader(meta))
	if err != nil {
		return ""
	}
	if n := xmlquery.FindOne(root, "//*[local-name()='title']"); n != nil {
		return strings.TrimSpace(n.InnerText())
	}
	return ""
}
