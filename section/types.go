// Package section splits structured documents (SOPs, policies, work
// instructions) into ordered, named sections whose keys stay stable across
// revisions even when sections are renumbered.
package section

import (
	"strings"
)

// Detector identifies which heuristic produced a section boundary.
type Detector string

// Detectors in priority order. Implicit marks sections without a heading line:
// the whole-document fallback and the preamble.
const (
	DetectorNumbered Detector = "numbered"
	DetectorKeyword  Detector = "keyword"
	DetectorAppendix Detector = "appendix"
	DetectorImplicit Detector = "implicit"
)

// Category is a coarse section classification used for downstream filtering.
type Category string

// Section categories.
const (
	CategoryProcedure   Category = "procedure"
	CategoryDefinitions Category = "definitions"
	CategorySafety      Category = "safety"
	CategoryGeneral     Category = "general"
)

// ImplicitKey is the key of the single section produced when no heading is found.
const ImplicitKey = "body_document"

// ImplicitHeading is the heading of the implicit whole-document section.
const ImplicitHeading = "Document Body"

// PreambleKey and PreambleHeading name the implicit section holding any text
// before the first detected heading.
const (
	PreambleKey     = "body_preamble"
	PreambleHeading = "Preamble"
)

// Section is one named region of a document.
type Section struct {
	// Key is the numbering-independent identity used to match across revisions.
	Key string `json:"key"`

	// Number is the section number ("3.1"), empty when the heading is unnumbered.
	Number string `json:"number,omitempty"`

	// Heading is the heading text without its number.
	Heading string `json:"heading"`

	// StartOffset is the byte offset of the heading line in the original text.
	StartOffset int `json:"start_offset"`

	// Content is the original text from StartOffset up to the next section.
	Content string `json:"content"`

	// Detector is the heuristic that found the heading.
	Detector Detector `json:"detector"`

	// Category classifies the section for filtering.
	Category Category `json:"category"`
}

// Title returns the display title, including the number when present.
func (s Section) Title() string {
	if s.Number == "" {
		return s.Heading
	}
	return s.Number + " " + s.Heading
}

// Body returns the content after the heading line.
func (s Section) Body() string {
	if s.Detector == DetectorImplicit {
		return s.Content
	}
	first, rest, hasNewline := strings.Cut(s.Content, "\n")

	// Inline keyword headings ("Purpose: To define...") keep the text after the colon.
	inline := ""
	if s.Detector == DetectorKeyword {
		if _, after, ok := strings.Cut(first, ":"); ok {
			inline = strings.TrimSpace(after)
		}
	}

	switch {
	case inline == "":
		return rest
	case !hasNewline:
		return inline
	default:
		return inline + "\n" + rest
	}
}

// Comparable returns the text used to decide whether two revisions of a
// section differ: heading and body, without the section number, so that
// renumbering alone never registers as a change.
func (s Section) Comparable() string {
	return s.Heading + "\n" + s.Body()
}

// End returns the byte offset just past the section's content.
func (s Section) End() int {
	return s.StartOffset + len(s.Content)
}

// categoryTerms maps heading words to categories, checked in order.
var categoryTerms = []struct {
	category Category
	terms    []string
}{
	{CategorySafety, []string{"safety", "precaution", "hazard", "warning", "ppe", "emergency"}},
	{CategoryDefinitions, []string{"definition", "abbreviation", "glossary", "term", "acronym"}},
	{CategoryProcedure, []string{"procedure", "instruction", "step", "process", "method", "operation"}},
}

// Categorize derives a category from heading text. A term matches any heading
// word it prefixes, so "precaution" covers "Precautions".
func Categorize(heading string) Category {
	words := strings.Fields(strings.ToLower(heading))
	for _, ct := range categoryTerms {
		for _, term := range ct.terms {
			for _, w := range words {
				if strings.HasPrefix(w, term) {
					return ct.category
				}
			}
		}
	}
	return CategoryGeneral
}
