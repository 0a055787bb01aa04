package verify

import (
	"regexp"
	"sort"

	"github.com/c360studio/semdiff/normalize"
)

// Pre-compiled key-term patterns. Codes and standards are matched on the
// original casing; quantities are case-insensitive.
var keyTermPatterns = []*regexp.Regexp{
	// Document codes: SOP-001, QA-12.3, SOP-QA-0042, WI-0042-B
	regexp.MustCompile(`\b[A-Z]{2,}(?:-[A-Z]{2,})*-?\d{2,}(?:[.\-]\d+)*(?:-[A-Z])?\b`),
	// Regulations: 21 CFR Part 11, 21 CFR 211.68
	regexp.MustCompile(`\b\d{1,2}\s+CFR\s+(?:[Pp]art\s+)?\d+(?:\.\d+)*\b`),
	// Standards: ISO 9001:2015, ICH Q7, ASTM D4236, EN 556-1, IEC 62304
	regexp.MustCompile(`\b(?:ISO|IEC|ASTM|ANSI|OSHA|FDA|EN|BS|DIN|NFPA|USP|ICH|IEEE|AAMI|EU)(?:/[A-Z]{2,})?\s+[A-Z]?\d+[A-Z]?(?:[-.:]\d+)*\b`),
	// Quantities with units: 2-8 °C, 30 minutes, 5 mg, 1.5 L
	regexp.MustCompile(`(?i)-?\d+(?:\.\d+)?(?:\s*(?:-|–|to)\s*-?\d+(?:\.\d+)?)?\s*(?:°\s*[CFK]\b|(?:minutes?|mins?|hours?|hrs?|seconds?|secs?|days?|weeks?|months?|years?|mg|[µμ]g|kg|g|ml|[µμ]l|l|mm|cm|m|ppm|ppb|psi|bar|kpa|rpm|lux)\b)`),
	// Percentages: 95%, 0.5 %
	regexp.MustCompile(`\d+(?:\.\d+)?\s*%`),
}

// KeyTerm is one extracted term with its byte offset in the scanned text.
type KeyTerm struct {
	Term   string `json:"term"`
	Offset int    `json:"offset"`
}

// ExtractKeyTerms returns the distinct key terms of text in order of first
// appearance: document and regulatory codes, standard references, quantities
// with units and percentages.
func ExtractKeyTerms(text string) []string {
	found := extractKeyTerms(text)
	terms := make([]string, len(found))
	for i, kt := range found {
		terms[i] = kt.Term
	}
	return terms
}

func extractKeyTerms(text string) []KeyTerm {
	type span struct{ start, end int }
	var spans []span
	for _, re := range keyTermPatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	// Earliest first; at the same start the longest match wins.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var terms []KeyTerm
	seen := make(map[string]bool)
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		lastEnd = s.end
		term := text[s.start:s.end]
		key := normalize.Fold(term)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, KeyTerm{Term: term, Offset: s.start})
	}
	return terms
}
