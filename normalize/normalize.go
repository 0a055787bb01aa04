// Package normalize provides the text normalization used by every comparison
// and verification step: page-noise filtering, case folding, whitespace
// collapsing and canonicalisation of typographic variants.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Pre-compiled patterns for page-repeating artifacts. Each pattern is anchored
// to a whole line so body prose mentioning the same words is kept.
var noisePatterns = []*regexp.Regexp{
	// Page 3 of 12, Page 3/12, - Page 3 of 12 -
	regexp.MustCompile(`(?i)^\W*page\s+\d+\s*(?:of|/)\s*\d+\W*$`),
	// Header/footer lines that embed a page counter, e.g. "SOP-001 Rev 2   Page 3 of 12"
	regexp.MustCompile(`(?i)^.{0,80}\bpage\s+\d+\s+of\s+\d+\s*$`),
	regexp.MustCompile(`(?i)^\W*(?:strictly\s+|company\s+)?(?:confidential|proprietary)(?:\s+(?:and|&)\s+(?:confidential|proprietary))?(?:\s*(?:information|document))?\W*$`),
	regexp.MustCompile(`(?i)^\W*(?:for\s+)?internal\s+use\s+only\W*$`),
	regexp.MustCompile(`(?i)^\W*(?:this\s+document\s+is\s+)?uncontrolled\s+(?:when|if)\s+printed\W*$`),
	regexp.MustCompile(`(?i)^\W*(?:document\s+)?version\s*(?:no\.?|number)?\s*[:#]?\s*v?\d+(?:\.\d+)*\W*$`),
	regexp.MustCompile(`(?i)^\W*rev(?:ision)?\.?\s*(?:no\.?)?\s*[:#]?\s*\d+(?:\.\d+)*\W*$`),
	regexp.MustCompile(`(?i)^\W*effective\s+date\s*[:\-]?\s*[\w ,./-]{0,40}$`),
}

// variants maps typographic quote, dash and bullet characters to ASCII.
var variants = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
	"•", "*", "◦", "*", "▪", "*", "‣", "*", "∙", "*", "·", "*",
)

// Filter removes page-repeating noise lines (page counters, confidentiality,
// version and effective-date stamps). The result is the "filtered" text used
// for length and coverage metrics.
func Filter(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		if IsNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// IsNoise reports whether a single line is a page artifact.
func IsNoise(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, re := range noisePatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// Normalize filters noise lines and then folds the rest (see Fold).
func Normalize(text string) string {
	return Fold(Filter(text))
}

// Fold applies NFKC, case-folds, collapses whitespace and unifies
// quote/dash/bullet variants. Unlike Normalize it keeps every line, so a
// superset of some text always folds to a superset.
func Fold(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	// Variants go first because NFKC decomposes some of them ("″" becomes
	// two primes), and again after for compatibility forms NFKC maps onto
	// the table.
	s := variants.Replace(text)
	s = norm.NFKC.String(s)
	// Casers carry state, so each call gets its own.
	s = cases.Fold().String(s)
	s = strings.Join(strings.Fields(s), " ")
	return variants.Replace(s)
}

// NormalizeAlnum normalizes text and then drops everything that is not a
// letter or digit. Word boundaries are lost; use Words for token-level work.
func NormalizeAlnum(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, Normalize(text))
}

// Words returns the normalized word tokens of text: maximal runs of letters
// and digits.
func Words(text string) []string {
	return splitWords(Normalize(text))
}

func splitWords(s string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// WordSet returns the distinct entries of a token list, usually from Words.
func WordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
