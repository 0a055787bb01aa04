// Package verify checks that a derived document (training material, a
// summary, a translation of form) still carries every section heading and
// key term of its source document.
package verify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/semdiff/normalize"
	"github.com/c360studio/semdiff/section"
)

// placeholders flag derived documents that were never finished.
var placeholders = []string{
	"todo", "tbd", "fixme", "[placeholder]", "[insert", "lorem ipsum",
}

// MissingTerm is a key term absent from the derived document, with the
// source heading it appeared under.
type MissingTerm struct {
	Term    string `json:"term"`
	Section string `json:"section,omitempty"`
}

// Result contains the result of a completeness check.
type Result struct {
	SourceHeadings     []string      `json:"source_headings"`
	MissingHeadings    []string      `json:"missing_headings"`
	KeyTerms           []string      `json:"key_terms"`
	MissingKeyTerms    []string      `json:"missing_key_terms"`
	MissingTermDetails []MissingTerm `json:"missing_term_details,omitempty"`
	SourceCharCount    int           `json:"source_char_count"`
	OutputCharCount    int           `json:"output_char_count"`
	CoveragePercent    float64       `json:"coverage_percent"`
	IsComplete         bool          `json:"is_complete"`
	Warnings           []string      `json:"warnings,omitempty"`
}

// KeyTermRatio returns the share of key terms found, 1 when there are none.
func (r *Result) KeyTermRatio() float64 {
	if len(r.KeyTerms) == 0 {
		return 1
	}
	return float64(len(r.KeyTerms)-len(r.MissingKeyTerms)) / float64(len(r.KeyTerms))
}

// Config holds verification thresholds.
type Config struct {
	// HeadingTokenRatio is the share of a heading's significant tokens that
	// must appear in the derived text.
	HeadingTokenRatio float64 `yaml:"heading_token_ratio" json:"heading_token_ratio"`

	// MinKeyTermRatio is the share of key terms required for completeness.
	MinKeyTermRatio float64 `yaml:"min_key_term_ratio" json:"min_key_term_ratio"`

	// MinTokenLength is the shortest heading token counted as significant.
	MinTokenLength int `yaml:"min_token_length" json:"min_token_length"`
}

// DefaultConfig returns the verification defaults.
func DefaultConfig() Config {
	return Config{
		HeadingTokenRatio: 0.5,
		MinKeyTermRatio:   0.9,
		MinTokenLength:    3,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.HeadingTokenRatio <= 0 || c.HeadingTokenRatio > 1 {
		return fmt.Errorf("HeadingTokenRatio must be in (0, 1], got %v", c.HeadingTokenRatio)
	}
	if c.MinKeyTermRatio < 0 || c.MinKeyTermRatio > 1 {
		return fmt.Errorf("MinKeyTermRatio must be in [0, 1], got %v", c.MinKeyTermRatio)
	}
	if c.MinTokenLength < 1 {
		return fmt.Errorf("MinTokenLength must be at least 1, got %d", c.MinTokenLength)
	}
	return nil
}

// Verifier checks derived documents against their sources.
type Verifier struct {
	config    Config
	segmenter *section.Segmenter
}

// New creates a Verifier. A nil segmenter uses the default segmentation.
func New(cfg Config, segmenter *section.Segmenter) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if segmenter == nil {
		segmenter = section.NewDefault()
	}
	return &Verifier{config: cfg, segmenter: segmenter}, nil
}

// MustNew creates a Verifier, panicking on invalid config.
func MustNew(cfg Config, segmenter *section.Segmenter) *Verifier {
	v, err := New(cfg, segmenter)
	if err != nil {
		panic(err)
	}
	return v
}

// NewDefault creates a Verifier with default configuration.
func NewDefault() *Verifier {
	return MustNew(DefaultConfig(), nil)
}

// Verify checks derivedText against sourceText. It never fails: empty or
// unrelated derived text reports zero coverage and everything missing.
func (v *Verifier) Verify(sourceText, derivedText string) *Result {
	filtered := normalize.Filter(sourceText)
	// Derived text is folded without noise filtering so that appending to a
	// source line can never hide the terms already on it.
	normDerived := normalize.Fold(derivedText)

	result := &Result{
		SourceHeadings:  []string{},
		MissingHeadings: []string{},
		KeyTerms:        []string{},
		MissingKeyTerms: []string{},
		SourceCharCount: utf8.RuneCountInString(filtered),
		OutputCharCount: utf8.RuneCountInString(derivedText),
	}
	if result.SourceCharCount > 0 {
		result.CoveragePercent = float64(result.OutputCharCount) / float64(result.SourceCharCount) * 100
	}

	seen := make(map[string]bool)
	for _, s := range v.segmenter.Segment(sourceText) {
		if s.Detector == section.DetectorImplicit {
			continue
		}
		title := s.Title()
		if seen[title] {
			continue
		}
		seen[title] = true
		result.SourceHeadings = append(result.SourceHeadings, title)
		if !v.headingPresent(title, normDerived) {
			result.MissingHeadings = append(result.MissingHeadings, title)
		}
	}

	for _, kt := range extractKeyTerms(filtered) {
		result.KeyTerms = append(result.KeyTerms, kt.Term)
		if normDerived != "" && strings.Contains(normDerived, normalize.Fold(kt.Term)) {
			continue
		}
		result.MissingKeyTerms = append(result.MissingKeyTerms, kt.Term)
		result.MissingTermDetails = append(result.MissingTermDetails, MissingTerm{
			Term:    kt.Term,
			Section: v.enclosingHeading(filtered, kt.Offset),
		})
	}

	result.IsComplete = len(result.MissingHeadings) == 0 &&
		result.KeyTermRatio() >= v.config.MinKeyTermRatio
	result.Warnings = checkCommonIssues(derivedText)

	return result
}

// headingPresent reports whether enough of a heading's significant tokens
// appear in the normalized derived text.
func (v *Verifier) headingPresent(title, normDerived string) bool {
	if normDerived == "" {
		return false
	}
	var tokens []string
	for _, w := range normalize.Words(title) {
		if utf8.RuneCountInString(w) >= v.config.MinTokenLength {
			tokens = append(tokens, w)
		}
	}
	if len(tokens) == 0 {
		norm := normalize.Fold(title)
		return norm != "" && strings.Contains(normDerived, norm)
	}
	found := 0
	for _, tok := range tokens {
		if strings.Contains(normDerived, tok) {
			found++
		}
	}
	return float64(found)/float64(len(tokens)) >= v.config.HeadingTokenRatio
}

// enclosingHeading scans backward from offset for the nearest heading line.
func (v *Verifier) enclosingHeading(text string, offset int) string {
	end := strings.IndexByte(text[offset:], '\n')
	if end == -1 {
		end = len(text)
	} else {
		end += offset
	}
	lines := strings.Split(text[:end], "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if v.segmenter.IsHeading(lines[i]) {
			return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(lines[i]), "#"))
		}
	}
	return ""
}

// checkCommonIssues warns about unfinished derived documents.
func checkCommonIssues(derivedText string) []string {
	var warnings []string
	if strings.TrimSpace(derivedText) == "" {
		return []string{"Derived document is empty"}
	}
	lower := strings.ToLower(derivedText)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			warnings = append(warnings, fmt.Sprintf("Contains placeholder text: %s", p))
		}
	}
	return warnings
}

// FormatFeedback formats an incomplete result as a markdown checklist of
// what the derived document still needs.
func (r *Result) FormatFeedback() string {
	if r.IsComplete && len(r.Warnings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Completeness Check Failed\n\n")
	sb.WriteString(fmt.Sprintf("Coverage: %.1f%% (%d of %d characters). Key terms found: %d of %d.\n\n",
		r.CoveragePercent, r.OutputCharCount, r.SourceCharCount,
		len(r.KeyTerms)-len(r.MissingKeyTerms), len(r.KeyTerms)))

	if len(r.MissingHeadings) > 0 {
		sb.WriteString("### Missing Headings\n\n")
		for _, h := range r.MissingHeadings {
			sb.WriteString(fmt.Sprintf("- %s\n", h))
		}
		sb.WriteString("\n")
	}

	if len(r.MissingTermDetails) > 0 {
		sb.WriteString("### Missing Key Terms\n\n")
		for _, mt := range r.MissingTermDetails {
			if mt.Section != "" {
				sb.WriteString(fmt.Sprintf("- %s (in %s)\n", mt.Term, mt.Section))
			} else {
				sb.WriteString(fmt.Sprintf("- %s\n", mt.Term))
			}
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("### Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// VerifyDocument is a convenience function for verifying with defaults.
func VerifyDocument(sourceText, derivedText string) *Result {
	return NewDefault().Verify(sourceText, derivedText)
}
