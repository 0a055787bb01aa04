package section

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// keyFingerprintLen bounds the heading fingerprint used in numbered keys.
const keyFingerprintLen = 30

var (
	// numberedRe matches "3.1 Heading", "4. Heading" and "12.3.4 Heading".
	numberedRe = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3})*)\.?\s+(\p{Lu}.*)$`)

	// appendixRe matches "Appendix A", "Appendix 2: Forms", "APPENDIX B - Sample Log".
	appendixRe = regexp.MustCompile(`(?i)^appendix\s+([a-z0-9]{1,4})(?:$|[\s:.\-–—]+(.{0,80})$)`)
)

// DefaultKeywords is the controlled vocabulary of standard section names.
// Singular and plural spellings of each entry are both accepted.
var DefaultKeywords = []string{
	"purpose",
	"scope",
	"procedure",
	"responsibilities",
	"references",
	"definitions",
	"revision history",
	"abbreviations",
	"background",
	"policy",
	"training",
	"safety",
	"precautions",
	"equipment",
	"materials",
	"records",
	"attachments",
	"introduction",
	"overview",
	"summary",
	"requirements",
	"approvals",
	"document history",
	"change history",
	"glossary",
}

// Config holds segmentation configuration.
type Config struct {
	// OverlapWindow discards a candidate heading within this many bytes of an
	// already accepted one.
	OverlapWindow int `yaml:"overlap_window" json:"overlap_window"`

	// MaxHeadingLength bounds the heading phrase length in characters.
	MaxHeadingLength int `yaml:"max_heading_length" json:"max_heading_length"`

	// MaxHeadingWords bounds the number of words in a numbered heading.
	MaxHeadingWords int `yaml:"max_heading_words" json:"max_heading_words"`

	// Keywords overrides DefaultKeywords when non-empty.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// DefaultConfig returns the segmentation defaults.
func DefaultConfig() Config {
	return Config{
		OverlapWindow:    10,
		MaxHeadingLength: 80,
		MaxHeadingWords:  12,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.OverlapWindow < 0 {
		return fmt.Errorf("OverlapWindow must not be negative, got %d", c.OverlapWindow)
	}
	if c.MaxHeadingLength <= 0 {
		return fmt.Errorf("MaxHeadingLength must be positive, got %d", c.MaxHeadingLength)
	}
	if c.MaxHeadingWords <= 0 {
		return fmt.Errorf("MaxHeadingWords must be positive, got %d", c.MaxHeadingWords)
	}
	for _, kw := range c.Keywords {
		if strings.TrimSpace(kw) == "" {
			return errors.New("Keywords must not contain blank entries")
		}
	}
	return nil
}

// Segmenter detects section boundaries in document text.
type Segmenter struct {
	config    Config
	keywordRe *regexp.Regexp
	canonical map[string]string // keyword form -> canonical keyword
}

// New creates a Segmenter with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	re, canonical := compileKeywords(keywords)
	return &Segmenter{config: cfg, keywordRe: re, canonical: canonical}, nil
}

// MustNew creates a Segmenter, panicking on invalid config.
func MustNew(cfg Config) *Segmenter {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// NewDefault creates a Segmenter with default configuration.
func NewDefault() *Segmenter {
	return MustNew(DefaultConfig())
}

var defaultSegmenter = NewDefault()

// Segment splits text into sections using the default configuration.
func Segment(text string) []Section {
	return defaultSegmenter.Segment(text)
}

// candidate is a detected heading before overlap resolution.
type candidate struct {
	offset  int
	section Section
}

// line is one line of the source text with its byte offset.
type line struct {
	offset int
	text   string
}

// Segment splits text into ordered, non-overlapping, contiguous sections.
// Blank text yields no sections; text without any detectable heading yields
// a single implicit "Document Body" section. Non-blank text before the first
// heading becomes an implicit "Preamble" section at offset 0.
func (s *Segmenter) Segment(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := splitLines(text)

	// Detectors run independently in priority order; the tagged candidate
	// list is resolved in one dedup-and-sort pass.
	var candidates []candidate
	candidates = append(candidates, s.detect(lines, s.numbered)...)
	candidates = append(candidates, s.detect(lines, s.keyword)...)
	candidates = append(candidates, s.detect(lines, s.appendix)...)

	accepted := resolveOverlaps(candidates, s.config.OverlapWindow)
	if len(accepted) == 0 {
		return []Section{{
			Key:      ImplicitKey,
			Heading:  ImplicitHeading,
			Content:  text,
			Detector: DetectorImplicit,
			Category: CategoryGeneral,
		}}
	}

	sections := make([]Section, 0, len(accepted)+1)
	if lead := text[:accepted[0].offset]; strings.TrimSpace(lead) != "" {
		sections = append(sections, Section{
			Key:      PreambleKey,
			Heading:  PreambleHeading,
			Content:  lead,
			Detector: DetectorImplicit,
			Category: CategoryGeneral,
		})
	}
	for i, c := range accepted {
		end := len(text)
		if i+1 < len(accepted) {
			end = accepted[i+1].offset
		}
		sec := c.section
		sec.StartOffset = c.offset
		sec.Content = text[c.offset:end]
		sections = append(sections, sec)
	}

	uniquifyKeys(sections)
	return sections
}

// IsHeading reports whether a single line would be detected as a heading.
func (s *Segmenter) IsHeading(text string) bool {
	stripped := stripLinePrefix(text)
	if stripped == "" {
		return false
	}
	for _, detector := range []func(string) (Section, bool){s.numbered, s.keyword, s.appendix} {
		if _, ok := detector(stripped); ok {
			return true
		}
	}
	return false
}

// detect runs one detector over every line.
func (s *Segmenter) detect(lines []line, detector func(string) (Section, bool)) []candidate {
	var out []candidate
	for _, ln := range lines {
		stripped := stripLinePrefix(ln.text)
		if stripped == "" {
			continue
		}
		if sec, ok := detector(stripped); ok {
			out = append(out, candidate{offset: ln.offset, section: sec})
		}
	}
	return out
}

// numbered detects "3.1 Training" style headings.
func (s *Segmenter) numbered(text string) (Section, bool) {
	m := numberedRe.FindStringSubmatch(text)
	if m == nil {
		return Section{}, false
	}
	heading := cleanHeading(m[2])
	if !s.plausibleHeading(heading) {
		return Section{}, false
	}
	fp := fingerprint(heading, keyFingerprintLen)
	if fp == "" {
		return Section{}, false
	}
	return Section{
		Key:      "num_" + fp,
		Number:   m[1],
		Heading:  heading,
		Detector: DetectorNumbered,
		Category: Categorize(heading),
	}, true
}

// keyword detects controlled-vocabulary headings, optionally numbered.
func (s *Segmenter) keyword(text string) (Section, bool) {
	m := s.keywordRe.FindStringSubmatch(text)
	if m == nil {
		return Section{}, false
	}
	heading := strings.Join(strings.Fields(m[2]), " ")
	canonical, ok := s.canonical[strings.ToLower(heading)]
	if !ok {
		return Section{}, false
	}
	return Section{
		Key:      "kw_" + strings.ReplaceAll(canonical, " ", "_"),
		Number:   m[1],
		Heading:  heading,
		Detector: DetectorKeyword,
		Category: Categorize(canonical),
	}, true
}

// appendix detects "Appendix A: Title" headings.
func (s *Segmenter) appendix(text string) (Section, bool) {
	m := appendixRe.FindStringSubmatch(text)
	if m == nil {
		return Section{}, false
	}
	id := m[1]
	heading := "Appendix " + id
	if title := cleanHeading(m[2]); title != "" {
		if !s.plausibleHeading(title) {
			return Section{}, false
		}
		heading += " " + title
	}
	return Section{
		Key:      "app_" + strings.ToLower(id),
		Heading:  heading,
		Detector: DetectorAppendix,
		Category: CategoryGeneral,
	}, true
}

// plausibleHeading rejects phrases that read like sentences or list steps.
func (s *Segmenter) plausibleHeading(heading string) bool {
	if heading == "" {
		return false
	}
	if utf8.RuneCountInString(heading) > s.config.MaxHeadingLength {
		return false
	}
	if len(strings.Fields(heading)) > s.config.MaxHeadingWords {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(heading)
	return last != '.' && last != ';' && last != ','
}

// resolveOverlaps keeps the first candidate detected near any offset; since
// candidates arrive in detector priority order, numbered beats keyword beats
// appendix. The survivors are returned in document order.
func resolveOverlaps(candidates []candidate, window int) []candidate {
	var accepted []candidate
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if abs(c.offset-a.offset) < window || c.offset == a.offset {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].offset < accepted[j].offset
	})
	return accepted
}

// uniquifyKeys suffixes repeated keys ("_2", "_3") in document order.
func uniquifyKeys(sections []Section) {
	seen := make(map[string]int, len(sections))
	for i := range sections {
		key := sections[i].Key
		seen[key]++
		if n := seen[key]; n > 1 {
			sections[i].Key = key + "_" + strconv.Itoa(n)
		}
	}
}

// splitLines splits text on '\n', recording the byte offset of each line.
func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		idx := strings.IndexByte(text[start:], '\n')
		if idx == -1 {
			lines = append(lines, line{offset: start, text: text[start:]})
			break
		}
		lines = append(lines, line{offset: start, text: text[start : start+idx]})
		start += idx + 1
	}
	return lines
}

// stripLinePrefix drops indentation, markdown heading markers, emphasis
// markers and trailing whitespace.
func stripLinePrefix(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**") && len(s) > 4 {
		s = strings.TrimSpace(s[2 : len(s)-2])
	}
	return s
}

// cleanHeading collapses whitespace and drops trailing colons and markers.
func cleanHeading(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ":#* ")
	return s
}

// fingerprint returns the first n lowercase letters and digits of s.
func fingerprint(s string, n int) string {
	var sb strings.Builder
	count := 0
	for _, r := range strings.ToLower(s) {
		if count >= n {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			count++
		}
	}
	return sb.String()
}

// compileKeywords builds the keyword heading pattern and a lookup from every
// accepted form (singular and plural) to its canonical keyword.
func compileKeywords(keywords []string) (*regexp.Regexp, map[string]string) {
	canonical := make(map[string]string)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.Join(strings.Fields(kw), " "))
		for _, form := range keywordForms(kw) {
			if _, exists := canonical[form]; !exists {
				canonical[form] = kw
			}
		}
	}

	forms := make([]string, 0, len(canonical))
	for form := range canonical {
		forms = append(forms, form)
	}
	// Longest first so "revision history" wins over a shorter prefix.
	sort.Slice(forms, func(i, j int) bool {
		if len(forms[i]) != len(forms[j]) {
			return len(forms[i]) > len(forms[j])
		}
		return forms[i] < forms[j]
	})

	alternatives := make([]string, len(forms))
	for i, form := range forms {
		parts := strings.Fields(form)
		for j, p := range parts {
			parts[j] = regexp.QuoteMeta(p)
		}
		alternatives[i] = strings.Join(parts, `\s+`)
	}

	pattern := `(?i)^(?:(\d{1,3}(?:\.\d{1,3})*)\.?\s+)?(` + strings.Join(alternatives, "|") + `)\s*(?::.*)?$`
	return regexp.MustCompile(pattern), canonical
}

// keywordForms returns the singular and plural spellings of a keyword.
func keywordForms(kw string) []string {
	forms := []string{kw}
	switch {
	case strings.HasSuffix(kw, "ies"):
		forms = append(forms, strings.TrimSuffix(kw, "ies")+"y")
	case strings.HasSuffix(kw, "y"):
		forms = append(forms, strings.TrimSuffix(kw, "y")+"ies")
	case strings.HasSuffix(kw, "s"):
		forms = append(forms, strings.TrimSuffix(kw, "s"))
	default:
		forms = append(forms, kw+"s")
	}
	return forms
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
