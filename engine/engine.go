// Package engine ties segmentation, matching, diffing, classification and
// verification together behind the four document operations: Segment,
// CompareRevisions, VerifyCompleteness and DiffWords.
//
// Every operation accepts any string input and never fails. Degraded inputs
// (a blank side, a document without headings, uncertain matches) are folded
// into the result as Issues.
package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/semdiff/classify"
	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/diff"
	"github.com/c360studio/semdiff/match"
	"github.com/c360studio/semdiff/metrics"
	"github.com/c360studio/semdiff/section"
	"github.com/c360studio/semdiff/verify"
)

// IssueCode classifies a degraded-input condition.
type IssueCode string

// Issue codes.
const (
	IssueEmptyInput     IssueCode = "empty_input"
	IssueNoSections     IssueCode = "no_sections_detected"
	IssueAmbiguousMatch IssueCode = "ambiguous_match"
	IssueNearThreshold  IssueCode = "near_threshold"
)

// Document sides named in issues.
const (
	SidePrevious = "previous"
	SideCurrent  = "current"
	SideSource   = "source"
)

// Issue is a non-fatal condition found while processing.
type Issue struct {
	Code    IssueCode `json:"code"`
	Side    string    `json:"side,omitempty"`
	Key     string    `json:"key,omitempty"`
	Message string    `json:"message"`
}

// Summary counts change records by type and significance.
type Summary struct {
	Added       int `json:"added"`
	Removed     int `json:"removed"`
	Modified    int `json:"modified"`
	Unchanged   int `json:"unchanged"`
	Substantive int `json:"substantive"`
	Editorial   int `json:"editorial"`
}

// Comparison is the result of comparing two revisions.
type Comparison struct {
	Changes []classify.ChangeRecord `json:"changes"`
	Summary Summary                 `json:"summary"`
	Matches []match.Result          `json:"matches"`
	Issues  []Issue                 `json:"issues,omitempty"`
}

// Engine runs document operations with one configuration.
type Engine struct {
	segmenter  *section.Segmenter
	matcher    *match.Matcher
	differ     *diff.Differ
	classifier *classify.Classifier
	verifier   *verify.Verifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records operations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine from configuration. A nil cfg uses config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	segmenter, err := section.New(cfg.Segment)
	if err != nil {
		return nil, fmt.Errorf("segment config: %w", err)
	}
	matcher, err := match.New(cfg.Match)
	if err != nil {
		return nil, fmt.Errorf("match config: %w", err)
	}
	differ, err := diff.New(cfg.Diff)
	if err != nil {
		return nil, fmt.Errorf("diff config: %w", err)
	}
	classifyCfg, err := cfg.ClassifierConfig()
	if err != nil {
		return nil, fmt.Errorf("classify config: %w", err)
	}
	classifier, err := classify.New(classifyCfg, differ)
	if err != nil {
		return nil, fmt.Errorf("classify config: %w", err)
	}
	verifier, err := verify.New(cfg.Verify, segmenter)
	if err != nil {
		return nil, fmt.Errorf("verify config: %w", err)
	}

	e := &Engine{
		segmenter:  segmenter,
		matcher:    matcher,
		differ:     differ,
		classifier: classifier,
		verifier:   verifier,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewDefault creates an Engine with default configuration.
func NewDefault() *Engine {
	e, err := New(nil)
	if err != nil {
		panic(err)
	}
	return e
}

// Segment splits text into sections.
func (e *Engine) Segment(text string) []section.Section {
	start := time.Now()
	sections := e.segment(text)
	e.metrics.ObserveOperation("segment", time.Since(start))
	return sections
}

func (e *Engine) segment(text string) []section.Section {
	sections := e.segmenter.Segment(text)
	for _, s := range sections {
		e.metrics.AddSection(string(s.Detector))
	}
	return sections
}

// DiffWords returns the word-level diff of two texts.
func (e *Engine) DiffWords(oldText, newText string) []diff.Span {
	start := time.Now()
	spans := e.differ.Diff(oldText, newText)
	e.metrics.ObserveOperation("diff", time.Since(start))
	return spans
}

// VerifyCompleteness checks that derivedText carries the headings and key
// terms of sourceText.
func (e *Engine) VerifyCompleteness(sourceText, derivedText string) *verify.Result {
	start := time.Now()
	if strings.TrimSpace(sourceText) == "" {
		e.logger.Warn("Verifying against an empty source document")
	}

	result := e.verifier.Verify(sourceText, derivedText)

	e.metrics.ObserveOperation("verify", time.Since(start))
	e.metrics.ObserveCoverage(result.CoveragePercent)
	e.logger.Info("Verification complete",
		slog.Int("headings", len(result.SourceHeadings)),
		slog.Int("missing_headings", len(result.MissingHeadings)),
		slog.Int("key_terms", len(result.KeyTerms)),
		slog.Int("missing_key_terms", len(result.MissingKeyTerms)),
		slog.Float64("coverage_percent", result.CoveragePercent),
		slog.Bool("complete", result.IsComplete))
	return result
}

// CompareRevisions matches the sections of two revisions and classifies
// every change. Both sides are segmented afresh on every call.
func (e *Engine) CompareRevisions(previousText, currentText string) *Comparison {
	start := time.Now()
	cmp := &Comparison{
		Changes: []classify.ChangeRecord{},
		Matches: []match.Result{},
	}

	previous := e.segmentSide(cmp, SidePrevious, previousText)
	current := e.segmentSide(cmp, SideCurrent, currentText)

	cmp.Matches = e.matcher.Match(previous, current)
	if cmp.Matches == nil {
		cmp.Matches = []match.Result{}
	}

	for _, res := range cmp.Matches {
		var prev, cur *section.Section
		if res.PreviousIndex >= 0 {
			prev = &previous[res.PreviousIndex]
		}
		if res.CurrentIndex >= 0 {
			cur = &current[res.CurrentIndex]
		}

		rec := e.classifier.Classify(res, prev, cur)
		cmp.Changes = append(cmp.Changes, rec)
		cmp.Summary.add(rec)
		e.foldReview(cmp, res)

		e.metrics.AddMatch(string(res.Tier), res.ManualReview)
		e.metrics.AddChange(string(rec.ChangeType), string(rec.Significance))
		e.logger.Debug("Section classified",
			slog.String("section", rec.SectionID),
			slog.String("tier", string(res.Tier)),
			slog.Float64("confidence", res.Confidence),
			slog.String("change", string(rec.ChangeType)),
			slog.String("significance", string(rec.Significance)))
	}

	for _, issue := range cmp.Issues {
		e.metrics.AddIssue(string(issue.Code))
	}
	e.metrics.ObserveOperation("compare", time.Since(start))
	e.logger.Info("Comparison complete",
		slog.Int("previous_sections", len(previous)),
		slog.Int("current_sections", len(current)),
		slog.Int("added", cmp.Summary.Added),
		slog.Int("removed", cmp.Summary.Removed),
		slog.Int("modified", cmp.Summary.Modified),
		slog.Int("unchanged", cmp.Summary.Unchanged),
		slog.Int("substantive", cmp.Summary.Substantive),
		slog.Int("issues", len(cmp.Issues)))
	return cmp
}

// segmentSide segments one revision and records input issues for it.
func (e *Engine) segmentSide(cmp *Comparison, side, text string) []section.Section {
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("Empty document", slog.String("side", side))
		cmp.Issues = append(cmp.Issues, Issue{
			Code:    IssueEmptyInput,
			Side:    side,
			Message: fmt.Sprintf("%s document is empty; every section on the other side is reported as added or removed", side),
		})
		return nil
	}

	sections := e.segment(text)
	if len(sections) == 1 && sections[0].Detector == section.DetectorImplicit {
		e.logger.Warn("No section headings detected", slog.String("side", side))
		cmp.Issues = append(cmp.Issues, Issue{
			Code:    IssueNoSections,
			Side:    side,
			Key:     section.ImplicitKey,
			Message: fmt.Sprintf("no section headings detected in %s document; compared as a single %q section", side, section.ImplicitHeading),
		})
	}
	return sections
}

// foldReview turns a manual-review flag into an issue.
func (e *Engine) foldReview(cmp *Comparison, res match.Result) {
	if !res.ManualReview {
		return
	}
	side, key := SideCurrent, res.CurrentKey
	if key == "" {
		side, key = SidePrevious, res.PreviousKey
	}
	others := strings.Join(res.Candidates, ", ")

	switch res.ReviewReason {
	case match.ReviewAmbiguous:
		cmp.Issues = append(cmp.Issues, Issue{
			Code:    IssueAmbiguousMatch,
			Side:    side,
			Key:     key,
			Message: fmt.Sprintf("matched %s to %s at %.2f; competing candidates within margin: %s", res.PreviousKey, res.CurrentKey, res.Confidence, others),
		})
	case match.ReviewNearThreshold:
		cmp.Issues = append(cmp.Issues, Issue{
			Code:    IssueNearThreshold,
			Side:    side,
			Key:     key,
			Message: fmt.Sprintf("%s left unmatched but scored just below threshold against %s", key, others),
		})
	}
}

func (s *Summary) add(rec classify.ChangeRecord) {
	switch rec.ChangeType {
	case classify.Added:
		s.Added++
	case classify.Removed:
		s.Removed++
	case classify.Modified:
		s.Modified++
	case classify.Unchanged:
		s.Unchanged++
	}
	switch rec.Significance {
	case classify.Substantive:
		s.Substantive++
	case classify.Editorial:
		s.Editorial++
	}
}

// HasSubstantive reports whether any change is substantive.
func (c *Comparison) HasSubstantive() bool {
	return c.Summary.Substantive > 0
}
