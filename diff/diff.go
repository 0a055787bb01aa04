// Package diff computes word-level differences between two texts using the
// Myers O(ND) algorithm. Whitespace runs are kept as their own tokens, so the
// spans always reconstruct both inputs exactly.
package diff

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind labels a span of text.
type Kind string

// Span kinds.
const (
	Unchanged Kind = "unchanged"
	Removed   Kind = "removed"
	Added     Kind = "added"
)

// Span is a contiguous run of text with one kind.
type Span struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Config holds diff limits.
type Config struct {
	// MaxEdits caps the Myers search. Beyond it the differing middle region
	// is reported as one removed and one added span.
	MaxEdits int `yaml:"max_edits" json:"max_edits"`
}

// DefaultConfig returns the diff defaults.
func DefaultConfig() Config {
	return Config{MaxEdits: 2000}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxEdits <= 0 {
		return fmt.Errorf("MaxEdits must be positive, got %d", c.MaxEdits)
	}
	return nil
}

// Differ computes word-level diffs.
type Differ struct {
	config Config
}

// New creates a Differ with the given configuration.
func New(cfg Config) (*Differ, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Differ{config: cfg}, nil
}

// MustNew creates a Differ, panicking on invalid config.
func MustNew(cfg Config) *Differ {
	d, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDefault creates a Differ with default configuration.
func NewDefault() *Differ {
	return MustNew(DefaultConfig())
}

var defaultDiffer = NewDefault()

// Words diffs oldText against newText with the default configuration.
func Words(oldText, newText string) []Span {
	return defaultDiffer.Diff(oldText, newText)
}

// Diff returns the spans turning oldText into newText. Unchanged and Removed
// spans concatenate to oldText; Unchanged and Added spans concatenate to newText.
func (d *Differ) Diff(oldText, newText string) []Span {
	a := Tokenize(oldText)
	b := Tokenize(newText)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	var spans []Span
	spans = appendSpan(spans, Unchanged, strings.Join(a[:prefix], ""))

	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]
	if ops, ok := myers(midA, midB, d.config.MaxEdits); ok {
		spans = appendOps(spans, ops, midA, midB)
	} else {
		spans = appendSpan(spans, Removed, strings.Join(midA, ""))
		spans = appendSpan(spans, Added, strings.Join(midB, ""))
	}

	spans = appendSpan(spans, Unchanged, strings.Join(a[len(a)-suffix:], ""))
	return spans
}

// Tokenize splits text into word runs, whitespace runs and single
// punctuation characters. Joining the tokens yields text.
func Tokenize(text string) []string {
	var tokens []string
	start := -1
	prevClass := classNone
	for i, r := range text {
		class := classify(r)
		if class != prevClass || class == classPunct {
			if start >= 0 {
				tokens = append(tokens, text[start:i])
			}
			start = i
		}
		prevClass = class
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

type runeClass int

const (
	classNone runeClass = iota
	classWord
	classSpace
	classPunct
)

func classify(r rune) runeClass {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
		return classWord
	default:
		return classPunct
	}
}

// OldText reconstructs the old side from spans.
func OldText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Kind != Added {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// NewText reconstructs the new side from spans.
func NewText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Kind != Removed {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// op is one edit script step over token indexes.
type op struct {
	kind Kind
	idx  int // index into a for Unchanged/Removed, into b for Added
}

// myers returns the shortest edit script from a to b, or false when it
// needs more than maxEdits insertions and deletions.
func myers(a, b []string, maxEdits int) ([]op, bool) {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil, true
	}
	limit := n + m
	if limit > maxEdits {
		limit = maxEdits
	}

	offset := limit + 1
	v := make([]int, 2*offset+1)
	// trace[d] holds v[-d..d] as it stood before step d.
	var trace [][]int

	for d := 0; d <= limit; d++ {
		snap := make([]int, 2*d+1)
		copy(snap, v[offset-d:offset+d+1])
		trace = append(trace, snap)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				return backtrack(trace, n, m), true
			}
		}
	}
	return nil, false
}

func backtrack(trace [][]int, n, m int) []op {
	var ops []op
	x, y := n, m
	for d := len(trace) - 1; d >= 0; d-- {
		snap := trace[d]
		get := func(k int) int {
			if k < -d || k > d {
				return 0
			}
			return snap[k+d]
		}

		k := x - y
		var prevK int
		if k == -d || (k != d && get(k-1) < get(k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := get(prevK)
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			ops = append(ops, op{kind: Unchanged, idx: x - 1})
			x--
			y--
		}
		if d > 0 {
			if x == prevX {
				ops = append(ops, op{kind: Added, idx: y - 1})
			} else {
				ops = append(ops, op{kind: Removed, idx: x - 1})
			}
		}
		x, y = prevX, prevY
	}

	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops
}

// appendOps converts an edit script into spans. Each run of edits between
// unchanged tokens becomes its removed text followed by its added text.
func appendOps(spans []Span, ops []op, a, b []string) []Span {
	var removed, added strings.Builder
	flush := func() {
		spans = appendSpan(spans, Removed, removed.String())
		spans = appendSpan(spans, Added, added.String())
		removed.Reset()
		added.Reset()
	}
	for _, o := range ops {
		switch o.kind {
		case Unchanged:
			flush()
			spans = appendSpan(spans, Unchanged, a[o.idx])
		case Removed:
			removed.WriteString(a[o.idx])
		case Added:
			added.WriteString(b[o.idx])
		}
	}
	flush()
	return spans
}

// appendSpan appends text, merging with the last span when kinds match.
func appendSpan(spans []Span, kind Kind, text string) []Span {
	if text == "" {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].Kind == kind {
		spans[n-1].Text += text
		return spans
	}
	return append(spans, Span{Text: text, Kind: kind})
}
