// Package classify turns matched section pairs into change records with a
// change type, a significance label and an audit trail of the decisions.
package classify

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/c360studio/semdiff/diff"
	"github.com/c360studio/semdiff/match"
	"github.com/c360studio/semdiff/normalize"
	"github.com/c360studio/semdiff/section"
)

// ChangeType is the kind of change a section underwent.
type ChangeType string

// Change types.
const (
	Added     ChangeType = "added"
	Removed   ChangeType = "removed"
	Modified  ChangeType = "modified"
	Unchanged ChangeType = "unchanged"
)

// Significance separates wording fixes from changes in meaning.
type Significance string

// Significance labels. Unchanged sections carry none.
const (
	Editorial   Significance = "editorial"
	Substantive Significance = "substantive"
)

// KeywordDelta records which vocabulary classes differ inside the changes.
type KeywordDelta struct {
	ObligationChanged bool `json:"obligation_changed"`
	RoleChanged       bool `json:"role_changed"`
	TimingChanged     bool `json:"timing_changed"`
	ThresholdChanged  bool `json:"threshold_changed"`
	RecordsChanged    bool `json:"records_changed"`
}

// Any reports whether any class changed.
func (k KeywordDelta) Any() bool {
	return k.ObligationChanged || k.RoleChanged || k.TimingChanged ||
		k.ThresholdChanged || k.RecordsChanged
}

// ChangeRecord describes the change to one section.
type ChangeRecord struct {
	SectionID       string           `json:"section_id"`
	SectionTitle    string           `json:"section_title"`
	ChangeType      ChangeType       `json:"change_type"`
	Significance    Significance     `json:"significance,omitempty"`
	Category        section.Category `json:"category"`
	OldContent      string           `json:"old_content,omitempty"`
	NewContent      string           `json:"new_content,omitempty"`
	DiffSpans       []diff.Span      `json:"diff_spans,omitempty"`
	MatchConfidence float64          `json:"match_confidence"`
	MatchTier       match.Tier       `json:"match_tier"`
	ManualReview    bool             `json:"manual_review"`
	KeywordDelta    KeywordDelta     `json:"keyword_delta"`
	Rationale       []string         `json:"rationale"`
}

// Config holds classifier configuration.
//
// The change ratio alone cannot tell "Applies to Y" -> "Applies to Y and Z"
// (an addition, ratio 0.14) from "in the freezer" -> "in the incubator" (a
// one-word swap, ratio 0.07). ReplacementsSubstantive closes that gap at the
// cost of labelling spelling fixes substantive; turn it off for documents
// where typo churn outweighs the risk of a missed content swap.
type Config struct {
	// EditorialMaxChangeRatio is the largest share of changed words a change
	// without keyword deltas or replacements may have and still be editorial.
	EditorialMaxChangeRatio float64 `yaml:"editorial_max_change_ratio" json:"editorial_max_change_ratio"`

	// ReplacementsSubstantive labels a change substantive when any word is
	// replaced by a different one, regardless of the change ratio.
	ReplacementsSubstantive bool `yaml:"replacements_substantive" json:"replacements_substantive"`

	// Vocabulary drives keyword-delta detection. Empty classes use defaults.
	Vocabulary Vocabulary `yaml:"vocabulary" json:"vocabulary"`
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		EditorialMaxChangeRatio: 0.3,
		ReplacementsSubstantive: true,
		Vocabulary:              DefaultVocabulary(),
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.EditorialMaxChangeRatio < 0 || c.EditorialMaxChangeRatio > 1 {
		return fmt.Errorf("EditorialMaxChangeRatio must be in [0, 1], got %v", c.EditorialMaxChangeRatio)
	}
	return nil
}

// Classifier labels matched section pairs.
type Classifier struct {
	config Config
	vocab  *compiledVocabulary
	differ *diff.Differ
}

// New creates a Classifier. A nil differ uses the default diff configuration.
func New(cfg Config, differ *diff.Differ) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vocab, err := cfg.Vocabulary.compile()
	if err != nil {
		return nil, fmt.Errorf("compile vocabulary: %w", err)
	}
	if differ == nil {
		differ = diff.NewDefault()
	}
	return &Classifier{config: cfg, vocab: vocab, differ: differ}, nil
}

// MustNew creates a Classifier, panicking on invalid config.
func MustNew(cfg Config, differ *diff.Differ) *Classifier {
	c, err := New(cfg, differ)
	if err != nil {
		panic(err)
	}
	return c
}

// NewDefault creates a Classifier with default configuration.
func NewDefault() *Classifier {
	return MustNew(DefaultConfig(), nil)
}

// Classify builds the change record for one match result. previous is nil
// for added sections, current is nil for removed ones.
func (c *Classifier) Classify(result match.Result, previous, current *section.Section) ChangeRecord {
	switch {
	case previous == nil && current == nil:
		return ChangeRecord{ChangeType: Unchanged, MatchTier: result.Tier}
	case previous == nil:
		return ChangeRecord{
			SectionID:    sectionID(current),
			SectionTitle: current.Title(),
			ChangeType:   Added,
			Significance: Substantive,
			Category:     current.Category,
			NewContent:   current.Content,
			DiffSpans:    c.differ.Diff("", current.Content),
			MatchTier:    match.TierUnmatched,
			ManualReview: result.ManualReview,
			Rationale:    unmatchedRationale("no previous section matched", result),
		}
	case current == nil:
		return ChangeRecord{
			SectionID:    sectionID(previous),
			SectionTitle: previous.Title(),
			ChangeType:   Removed,
			Significance: Substantive,
			Category:     previous.Category,
			OldContent:   previous.Content,
			DiffSpans:    c.differ.Diff(previous.Content, ""),
			MatchTier:    match.TierUnmatched,
			ManualReview: result.ManualReview,
			Rationale:    unmatchedRationale("no current section matched", result),
		}
	}

	rec := ChangeRecord{
		SectionID:       sectionID(current),
		SectionTitle:    current.Title(),
		Category:        current.Category,
		OldContent:      previous.Content,
		NewContent:      current.Content,
		MatchConfidence: result.Confidence,
		MatchTier:       result.Tier,
		ManualReview:    result.ManualReview,
	}
	rec.Rationale = append(rec.Rationale,
		fmt.Sprintf("matched %s to %s by %s at confidence %.2f", previous.Key, current.Key, result.Tier, result.Confidence))
	if result.ManualReview {
		rec.Rationale = append(rec.Rationale, fmt.Sprintf("match flagged for manual review: %s", result.ReviewReason))
	}

	if normalize.NormalizeAlnum(previous.Comparable()) == normalize.NormalizeAlnum(current.Comparable()) {
		rec.ChangeType = Unchanged
		if previous.Number != current.Number {
			rec.Rationale = append(rec.Rationale,
				fmt.Sprintf("renumbered from %q to %q; normalized content identical", previous.Number, current.Number))
		} else {
			rec.Rationale = append(rec.Rationale, "normalized content identical")
		}
		return rec
	}

	rec.ChangeType = Modified
	rec.DiffSpans = c.differ.Diff(previous.Content, current.Content)
	removedText, addedText := changeWindows(rec.DiffSpans)

	delta, notes := c.keywordDelta(removedText, addedText)
	rec.KeywordDelta = delta
	rec.Rationale = append(rec.Rationale, notes...)

	changed, total := changedWords(rec.DiffSpans)
	ratio := 0.0
	if total > 0 {
		ratio = float64(changed) / float64(total)
	}
	var swaps []string
	if c.config.ReplacementsSubstantive {
		swaps = replacements(rec.DiffSpans)
	}

	switch {
	case delta.Any():
		rec.Significance = Substantive
		rec.Rationale = append(rec.Rationale, "keyword delta present: substantive")
	case changed == 0:
		rec.Significance = Editorial
		rec.Rationale = append(rec.Rationale, "only whitespace, punctuation or case changed: editorial")
	case len(swaps) > 0:
		rec.Significance = Substantive
		rec.Rationale = append(rec.Rationale,
			fmt.Sprintf("words replaced: %s: substantive", strings.Join(swaps, "; ")))
	case ratio <= c.config.EditorialMaxChangeRatio:
		rec.Significance = Editorial
		rec.Rationale = append(rec.Rationale,
			fmt.Sprintf("changed-word ratio %.2f <= %.2f with no keyword delta: editorial", ratio, c.config.EditorialMaxChangeRatio))
	default:
		rec.Significance = Substantive
		rec.Rationale = append(rec.Rationale,
			fmt.Sprintf("changed-word ratio %.2f > %.2f: substantive", ratio, c.config.EditorialMaxChangeRatio))
	}
	return rec
}

// keywordDelta compares vocabulary terms on the removed and added sides.
func (c *Classifier) keywordDelta(removedText, addedText string) (KeywordDelta, []string) {
	var notes []string
	check := func(name string, class termClass) bool {
		before := class.find(removedText)
		after := class.find(addedText)
		if sameTerms(before, after) {
			return false
		}
		notes = append(notes, fmt.Sprintf("%s terms changed: [%s] -> [%s]", name,
			strings.Join(sortedTerms(before), ", "), strings.Join(sortedTerms(after), ", ")))
		return true
	}

	delta := KeywordDelta{
		ObligationChanged: check("obligation", c.vocab.obligation),
		RoleChanged:       check("role", c.vocab.roles),
		TimingChanged:     check("timing", c.vocab.timing),
		ThresholdChanged:  check("threshold", c.vocab.threshold),
		RecordsChanged:    check("records", c.vocab.records),
	}
	return delta, notes
}

func sameTerms(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if _, ok := b[t]; !ok {
			return false
		}
	}
	return true
}

// changeWindows collects the removed-side and added-side text of every
// change run, each extended by one context word on either side. Runs split
// only by punctuation inside one word ("2-8" to "15-25") are treated as one.
func changeWindows(spans []diff.Span) (removed, added string) {
	var rb, ab strings.Builder
	for i := 0; i < len(spans); i++ {
		if spans[i].Kind == diff.Unchanged {
			continue
		}
		end := i
		for end+1 < len(spans) {
			next := spans[end+1]
			if next.Kind != diff.Unchanged {
				end++
				continue
			}
			if end+2 < len(spans) && !strings.ContainsFunc(next.Text, unicode.IsSpace) {
				end += 2
				continue
			}
			break
		}

		before, after := "", ""
		if i > 0 {
			before = leadingContext(spans[i-1].Text)
		}
		if end+1 < len(spans) {
			after = trailingContext(spans[end+1].Text)
		}

		var r, a strings.Builder
		for _, s := range spans[i : end+1] {
			if s.Kind != diff.Added {
				r.WriteString(s.Text)
			}
			if s.Kind != diff.Removed {
				a.WriteString(s.Text)
			}
		}
		rb.WriteString(before + r.String() + after + "\n")
		ab.WriteString(before + a.String() + after + "\n")
		i = end
	}
	return rb.String(), ab.String()
}

// leadingContext returns the end of the unchanged text before a change: the
// partial word glued to the change, if any, plus one whole word.
func leadingContext(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return text
	}
	take := 1
	last, _ := lastRune(text)
	glued := !unicode.IsSpace(last)
	if glued {
		take = 2
	}
	if take > len(fields) {
		take = len(fields)
	}
	ctx := strings.Join(fields[len(fields)-take:], " ")
	if !glued {
		ctx += " "
	}
	return ctx
}

// trailingContext mirrors leadingContext for the text after a change.
func trailingContext(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return text
	}
	take := 1
	first := []rune(text)[0]
	glued := !unicode.IsSpace(first)
	if glued {
		take = 2
	}
	if take > len(fields) {
		take = len(fields)
	}
	ctx := strings.Join(fields[:take], " ")
	if !glued {
		ctx = " " + ctx
	}
	return ctx
}

func lastRune(s string) (rune, bool) {
	r := []rune(s)
	if len(r) == 0 {
		return 0, false
	}
	return r[len(r)-1], true
}

// replacements describes every change run that swaps words for different
// ones, as "old -> new". Runs separated only by whitespace or punctuation
// count as one; pure additions, pure removals and case-only edits are not
// replacements.
func replacements(spans []diff.Span) []string {
	var out []string
	var removed, added []string
	flush := func() {
		if len(removed) > 0 && len(added) > 0 && !sameTerms(normalize.WordSet(removed), normalize.WordSet(added)) {
			out = append(out, strings.Join(removed, " ")+" -> "+strings.Join(added, " "))
		}
		removed, added = nil, nil
	}
	for _, s := range spans {
		words := normalize.Words(s.Text)
		switch s.Kind {
		case diff.Removed:
			removed = append(removed, words...)
		case diff.Added:
			added = append(added, words...)
		default:
			if len(words) > 0 {
				flush()
			}
		}
	}
	flush()
	return out
}

// changedWords counts words inside removed and added spans against all words
// on both sides.
func changedWords(spans []diff.Span) (changed, total int) {
	for _, s := range spans {
		n := len(normalize.Words(s.Text))
		switch s.Kind {
		case diff.Unchanged:
			total += 2 * n
		default:
			changed += n
			total += n
		}
	}
	return changed, total
}

// sectionID is the section number, or the key for unnumbered sections.
func sectionID(s *section.Section) string {
	if s.Number != "" {
		return s.Number
	}
	return s.Key
}

func unmatchedRationale(lead string, result match.Result) []string {
	notes := []string{lead}
	if result.ManualReview {
		notes = append(notes, fmt.Sprintf("flagged for manual review: %s (closest: %s)",
			result.ReviewReason, strings.Join(result.Candidates, ", ")))
	}
	return notes
}
