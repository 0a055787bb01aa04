package parser

import (
	"testing"
)

func TestPDFParser_MimeType(t *testing.T) {
	p := NewPDFParser()
	if p.MimeType() != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", p.MimeType())
	}
}

func TestPDFParser_CanParse(t *testing.T) {
	p := NewPDFParser()

	tests := []struct {
		mimeType string
		want     bool
	}{
		{"application/pdf", true},
		{"text/plain", false},
		{"text/markdown", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			got := p.CanParse(tt.mimeType)
			if got != tt.want {
				t.Errorf("CanParse(%s) = %v, want %v", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestPDFParser_ParseInvalidPDF(t *testing.T) {
	p := NewPDFParser()

	_, err := p.Parse("test.pdf", []byte("not a pdf file"))
	if err == nil {
		t.Error("expected error for invalid PDF content")
	}
}
