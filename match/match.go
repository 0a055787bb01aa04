// Package match pairs the sections of two document revisions. Pairs are
// scored in three tiers (exact key, Jaccard word overlap, TF-IDF cosine) and
// claimed greedily by confidence, so every section is used at most once.
package match

import (
	"fmt"
	"sort"

	"github.com/c360studio/semdiff/normalize"
	"github.com/c360studio/semdiff/section"
)

// Tier names the matching strategy that produced a result.
type Tier string

// Matching tiers, strongest first.
const (
	TierExactKey  Tier = "exact_key"
	TierJaccard   Tier = "jaccard"
	TierTfIdf     Tier = "tfidf"
	TierUnmatched Tier = "unmatched"
)

func (t Tier) rank() int {
	switch t {
	case TierExactKey:
		return 0
	case TierJaccard:
		return 1
	case TierTfIdf:
		return 2
	default:
		return 3
	}
}

// ReviewReason explains why a result needs manual review.
type ReviewReason string

// Review reasons.
const (
	ReviewNone          ReviewReason = ""
	ReviewAmbiguous     ReviewReason = "ambiguous"
	ReviewNearThreshold ReviewReason = "near_threshold"
)

// Result is one matched pair, or one unmatched section from either side.
type Result struct {
	PreviousKey   string       `json:"previous_key,omitempty"`
	CurrentKey    string       `json:"current_key,omitempty"`
	PreviousIndex int          `json:"previous_index"`
	CurrentIndex  int          `json:"current_index"`
	Tier          Tier         `json:"tier"`
	Confidence    float64      `json:"confidence"`
	JaccardScore  *float64     `json:"jaccard_score,omitempty"`
	TfIdfScore    *float64     `json:"tfidf_score,omitempty"`
	ManualReview  bool         `json:"manual_review"`
	ReviewReason  ReviewReason `json:"review_reason,omitempty"`
	Candidates    []string     `json:"candidates,omitempty"`
}

// Added reports whether the result is a current section with no predecessor.
func (r Result) Added() bool {
	return r.PreviousIndex < 0 && r.CurrentIndex >= 0
}

// Removed reports whether the result is a previous section with no successor.
func (r Result) Removed() bool {
	return r.CurrentIndex < 0 && r.PreviousIndex >= 0
}

// Matched reports whether the result pairs two sections.
func (r Result) Matched() bool {
	return r.PreviousIndex >= 0 && r.CurrentIndex >= 0
}

// Config holds matcher thresholds.
type Config struct {
	// JaccardThreshold is the word-overlap score a pair must exceed.
	JaccardThreshold float64 `yaml:"jaccard_threshold" json:"jaccard_threshold"`

	// TfIdfThreshold is the cosine score a pair must exceed.
	TfIdfThreshold float64 `yaml:"tfidf_threshold" json:"tfidf_threshold"`

	// ReviewMargin flags leftovers scoring this close under a threshold.
	ReviewMargin float64 `yaml:"review_margin" json:"review_margin"`

	// AmbiguityMargin flags picks with a competitor this close in confidence.
	AmbiguityMargin float64 `yaml:"ambiguity_margin" json:"ambiguity_margin"`
}

// DefaultConfig returns the matcher defaults.
func DefaultConfig() Config {
	return Config{
		JaccardThreshold: 0.6,
		TfIdfThreshold:   0.5,
		ReviewMargin:     0.1,
		AmbiguityMargin:  0.05,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.JaccardThreshold <= 0 || c.JaccardThreshold > 1 {
		return fmt.Errorf("JaccardThreshold must be in (0, 1], got %v", c.JaccardThreshold)
	}
	if c.TfIdfThreshold <= 0 || c.TfIdfThreshold > 1 {
		return fmt.Errorf("TfIdfThreshold must be in (0, 1], got %v", c.TfIdfThreshold)
	}
	if c.ReviewMargin < 0 {
		return fmt.Errorf("ReviewMargin must not be negative, got %v", c.ReviewMargin)
	}
	if c.AmbiguityMargin < 0 {
		return fmt.Errorf("AmbiguityMargin must not be negative, got %v", c.AmbiguityMargin)
	}
	return nil
}

// Matcher pairs sections across revisions.
type Matcher struct {
	config Config
}

// New creates a Matcher with the given configuration.
func New(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{config: cfg}, nil
}

// MustNew creates a Matcher, panicking on invalid config.
func MustNew(cfg Config) *Matcher {
	m, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// NewDefault creates a Matcher with default configuration.
func NewDefault() *Matcher {
	return MustNew(DefaultConfig())
}

// candidate is a qualifying (previous, current) pair.
type candidate struct {
	prev, cur  int
	tier       Tier
	confidence float64
	jaccard    *float64
	tfidf      *float64
}

// scores holds every pairwise similarity for one Match call.
type scores struct {
	jaccard [][]float64
	tfidf   [][]float64
}

// Match pairs previous and current sections. The returned results follow
// current document order, with removed sections placed after the result
// whose previous section precedes them.
func (m *Matcher) Match(previous, current []section.Section) []Result {
	sc := m.score(previous, current)

	var pool []candidate
	for i := range previous {
		for j := range current {
			if c, ok := m.qualify(previous, current, sc, i, j); ok {
				pool = append(pool, c)
			}
		}
	}
	sort.SliceStable(pool, func(a, b int) bool {
		ca, cb := pool[a], pool[b]
		if ca.confidence != cb.confidence {
			return ca.confidence > cb.confidence
		}
		if ca.tier.rank() != cb.tier.rank() {
			return ca.tier.rank() < cb.tier.rank()
		}
		if ca.cur != cb.cur {
			return ca.cur < cb.cur
		}
		return ca.prev < cb.prev
	})

	byCurrent := make(map[int]Result)
	matchedPrev := make(map[int]bool)

	for len(pool) > 0 {
		pick := pool[0]
		res := Result{
			PreviousKey:   previous[pick.prev].Key,
			CurrentKey:    current[pick.cur].Key,
			PreviousIndex: pick.prev,
			CurrentIndex:  pick.cur,
			Tier:          pick.tier,
			Confidence:    pick.confidence,
			JaccardScore:  pick.jaccard,
			TfIdfScore:    pick.tfidf,
		}
		if pick.tier != TierExactKey {
			if rivals := m.rivals(pick, pool[1:], previous, current); len(rivals) > 0 {
				res.ManualReview = true
				res.ReviewReason = ReviewAmbiguous
				res.Candidates = rivals
			}
		}
		byCurrent[pick.cur] = res
		matchedPrev[pick.prev] = true
		pool = remaining(pool, pick.prev, pick.cur)
	}

	var leftPrev, leftCur []int
	for i := range previous {
		if !matchedPrev[i] {
			leftPrev = append(leftPrev, i)
		}
	}
	for j := range current {
		if _, ok := byCurrent[j]; !ok {
			leftCur = append(leftCur, j)
		}
	}

	results := make([]Result, 0, len(current)+len(leftPrev))
	for j := range current {
		if res, ok := byCurrent[j]; ok {
			results = append(results, res)
			continue
		}
		res := Result{
			CurrentKey:    current[j].Key,
			PreviousIndex: -1,
			CurrentIndex:  j,
			Tier:          TierUnmatched,
		}
		m.flagNearThreshold(&res, leftPrev, func(i int) (float64, float64, string) {
			return sc.jaccard[i][j], sc.tfidf[i][j], previous[i].Key
		})
		results = append(results, res)
	}

	for _, i := range leftPrev {
		res := Result{
			PreviousKey:   previous[i].Key,
			PreviousIndex: i,
			CurrentIndex:  -1,
			Tier:          TierUnmatched,
		}
		m.flagNearThreshold(&res, leftCur, func(j int) (float64, float64, string) {
			return sc.jaccard[i][j], sc.tfidf[i][j], current[j].Key
		})
		results = insertRemoved(results, res)
	}

	return results
}

// score computes Jaccard and TF-IDF similarity for every pair. The TF-IDF
// vocabulary spans all sections of both revisions.
func (m *Matcher) score(previous, current []section.Section) scores {
	words := make([][]string, 0, len(previous)+len(current))
	for _, s := range previous {
		words = append(words, normalize.Words(s.Comparable()))
	}
	for _, s := range current {
		words = append(words, normalize.Words(s.Comparable()))
	}
	sets := make([]map[string]struct{}, len(words))
	for i, ws := range words {
		sets[i] = normalize.WordSet(ws)
	}
	idx := buildTFIDFIndex(words)

	offset := len(previous)
	sc := scores{
		jaccard: make([][]float64, len(previous)),
		tfidf:   make([][]float64, len(previous)),
	}
	for i := range previous {
		sc.jaccard[i] = make([]float64, len(current))
		sc.tfidf[i] = make([]float64, len(current))
		for j := range current {
			sc.jaccard[i][j] = Jaccard(sets[i], sets[offset+j])
			sc.tfidf[i][j] = idx.similarity(i, offset+j)
		}
	}
	return sc
}

// qualify returns the strongest tier a pair reaches, if any.
func (m *Matcher) qualify(previous, current []section.Section, sc scores, i, j int) (candidate, bool) {
	if previous[i].Key == current[j].Key {
		return candidate{prev: i, cur: j, tier: TierExactKey, confidence: 1.0}, true
	}
	jac := sc.jaccard[i][j]
	if jac > m.config.JaccardThreshold {
		return candidate{prev: i, cur: j, tier: TierJaccard, confidence: jac, jaccard: ptr(jac)}, true
	}
	cos := sc.tfidf[i][j]
	if cos > m.config.TfIdfThreshold {
		return candidate{prev: i, cur: j, tier: TierTfIdf, confidence: cos, jaccard: ptr(jac), tfidf: ptr(cos)}, true
	}
	return candidate{}, false
}

// rivals returns the keys of still-available candidates competing with pick
// for either of its sections within AmbiguityMargin.
func (m *Matcher) rivals(pick candidate, pool []candidate, previous, current []section.Section) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, c := range pool {
		if pick.confidence-c.confidence > m.config.AmbiguityMargin {
			break
		}
		var key string
		switch {
		case c.cur == pick.cur && c.prev != pick.prev:
			key = previous[c.prev].Key
		case c.prev == pick.prev && c.cur != pick.cur:
			key = current[c.cur].Key
		default:
			continue
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// flagNearThreshold marks a leftover whose best score against the other
// side's leftovers falls just short of a threshold.
func (m *Matcher) flagNearThreshold(res *Result, others []int, scoreOf func(int) (float64, float64, string)) {
	bestJac, bestCos := -1.0, -1.0
	var bestJacKey, bestCosKey string
	for _, o := range others {
		jac, cos, key := scoreOf(o)
		if jac > bestJac {
			bestJac, bestJacKey = jac, key
		}
		if cos > bestCos {
			bestCos, bestCosKey = cos, key
		}
	}
	if len(others) == 0 {
		return
	}

	res.JaccardScore = ptr(bestJac)
	res.TfIdfScore = ptr(bestCos)

	near := func(score, threshold float64) bool {
		return score > 0 && score <= threshold && threshold-score <= m.config.ReviewMargin
	}
	switch {
	case near(bestJac, m.config.JaccardThreshold):
		res.Candidates = []string{bestJacKey}
	case near(bestCos, m.config.TfIdfThreshold):
		res.Candidates = []string{bestCosKey}
	default:
		return
	}
	res.ManualReview = true
	res.ReviewReason = ReviewNearThreshold
}

// remaining re-derives the pool without candidates touching either claimed section.
func remaining(pool []candidate, prev, cur int) []candidate {
	out := make([]candidate, 0, len(pool))
	for _, c := range pool {
		if c.prev == prev || c.cur == cur {
			continue
		}
		out = append(out, c)
	}
	return out
}

// insertRemoved places a removed result right after the last result whose
// previous index precedes it.
func insertRemoved(results []Result, removed Result) []Result {
	pos := 0
	for k, r := range results {
		if r.PreviousIndex >= 0 && r.PreviousIndex < removed.PreviousIndex {
			pos = k + 1
		}
	}
	results = append(results, Result{})
	copy(results[pos+1:], results[pos:])
	results[pos] = removed
	return results
}

func ptr(f float64) *float64 {
	return &f
}
