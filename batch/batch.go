// Package batch compares or verifies every document pair found under two
// directory trees. Files are paired by their path relative to each root.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/report"
	"github.com/c360studio/semdiff/source/parser"
	"github.com/c360studio/semdiff/verify"
)

// ErrNoInputs is returned when the pattern matches no files in either tree.
var ErrNoInputs = errors.New("no input documents matched")

// Pair is a document present in at least one of the two trees. A missing
// side has an empty path and is treated as an empty document.
type Pair struct {
	Path  string `json:"path"`
	Left  string `json:"left,omitempty"`
	Right string `json:"right,omitempty"`
}

// Item is the outcome for one pair.
type Item struct {
	Pair
	Envelope *report.Envelope `json:"envelope,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Totals aggregates a run.
type Totals struct {
	Pairs       int `json:"pairs"`
	Failed      int `json:"failed"`
	LeftOnly    int `json:"left_only"`
	RightOnly   int `json:"right_only"`
	Substantive int `json:"substantive"`
	Incomplete  int `json:"incomplete"`
}

// Result is the outcome of a batch run. Items are ordered by path.
type Result struct {
	Kind   report.Kind `json:"kind"`
	Left   string      `json:"left"`
	Right  string      `json:"right"`
	Items  []Item      `json:"items"`
	Totals Totals      `json:"totals"`
}

// Runner evaluates pairs with bounded parallelism.
type Runner struct {
	engine   *engine.Engine
	registry *parser.Registry
	logger   *slog.Logger
	workers  int
	pattern  string
}

// New creates a Runner. A nil logger uses slog.Default().
func New(eng *engine.Engine, cfg config.BatchConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = config.DefaultConfig().Batch.Pattern
	}
	return &Runner{
		engine:   eng,
		registry: parser.DefaultRegistry,
		logger:   logger,
		workers:  workers,
		pattern:  pattern,
	}
}

// Pairs lists the documents matching the pattern under either root, paired
// by relative path.
func (r *Runner) Pairs(leftDir, rightDir string) ([]Pair, error) {
	if !doublestar.ValidatePattern(r.pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", r.pattern, doublestar.ErrBadPattern)
	}

	left, err := r.glob(leftDir)
	if err != nil {
		return nil, err
	}
	right, err := r.glob(rightDir)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*Pair)
	for rel, abs := range left {
		byPath[rel] = &Pair{Path: rel, Left: abs}
	}
	for rel, abs := range right {
		if p, ok := byPath[rel]; ok {
			p.Right = abs
			continue
		}
		byPath[rel] = &Pair{Path: rel, Right: abs}
	}
	if len(byPath) == 0 {
		return nil, fmt.Errorf("%w: %q under %s and %s", ErrNoInputs, r.pattern, leftDir, rightDir)
	}

	pairs := make([]Pair, 0, len(byPath))
	for _, p := range byPath {
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Path < pairs[j].Path })
	return pairs, nil
}

// Run evaluates every pair. kind is report.KindCompare (left = previous,
// right = current) or report.KindVerify (left = source, right = derived).
//
// Load failures are recorded on the item and do not stop the run; only
// cancellation of ctx does.
func (r *Runner) Run(ctx context.Context, kind report.Kind, leftDir, rightDir string) (*Result, error) {
	if kind != report.KindCompare && kind != report.KindVerify {
		return nil, fmt.Errorf("unsupported batch kind %q", kind)
	}

	pairs, err := r.Pairs(leftDir, rightDir)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Starting batch run",
		slog.String("kind", string(kind)),
		slog.Int("pairs", len(pairs)),
		slog.Int("workers", r.workers))

	items := make([]Item, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, pair := range pairs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = r.evaluate(kind, pair)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Kind: kind, Left: leftDir, Right: rightDir, Items: items}
	res.tally()

	r.logger.Info("Batch run complete",
		slog.String("kind", string(kind)),
		slog.Int("pairs", res.Totals.Pairs),
		slog.Int("failed", res.Totals.Failed),
		slog.Int("substantive", res.Totals.Substantive),
		slog.Int("incomplete", res.Totals.Incomplete))
	return res, nil
}

func (r *Runner) evaluate(kind report.Kind, pair Pair) Item {
	item := Item{Pair: pair}

	leftText, err := r.load(pair.Left)
	if err != nil {
		return r.failed(item, err)
	}
	rightText, err := r.load(pair.Right)
	if err != nil {
		return r.failed(item, err)
	}

	var result any
	if kind == report.KindVerify {
		result = r.engine.VerifyCompleteness(leftText, rightText)
	} else {
		result = r.engine.CompareRevisions(leftText, rightText)
	}
	item.Envelope = report.NewEnvelope(kind, result, pair.Left, pair.Right)

	r.logger.Debug("Evaluated pair", slog.String("path", pair.Path))
	return item
}

func (r *Runner) failed(item Item, err error) Item {
	r.logger.Warn("Failed to load pair",
		slog.String("path", item.Path),
		slog.String("error", err.Error()))
	item.Error = err.Error()
	return item
}

// load returns the text of path, or "" for a missing side.
func (r *Runner) load(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	doc, err := r.registry.ParseFile(path)
	if err != nil {
		return "", err
	}
	return doc.Text(), nil
}

// glob maps slash-separated relative paths to absolute file paths.
func (r *Runner) glob(root string) (map[string]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), r.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", root, err)
	}

	files := make(map[string]string, len(matches))
	for _, rel := range matches {
		if hidden(rel) {
			continue
		}
		files[rel] = filepath.Join(root, filepath.FromSlash(rel))
	}
	return files, nil
}

func (res *Result) tally() {
	t := Totals{Pairs: len(res.Items)}
	for _, item := range res.Items {
		switch {
		case item.Error != "":
			t.Failed++
			continue
		case item.Left == "":
			t.RightOnly++
		case item.Right == "":
			t.LeftOnly++
		}
		switch r := item.Envelope.Result.(type) {
		case *engine.Comparison:
			if r.HasSubstantive() {
				t.Substantive++
			}
		case *verify.Result:
			if !r.IsComplete {
				t.Incomplete++
			}
		}
	}
	res.Totals = t
}

// Markdown renders a summary table followed by each pair's report.
func (res *Result) Markdown() string {
	var sb strings.Builder

	title := "Revision Comparison"
	if res.Kind == report.KindVerify {
		title = "Completeness Verification"
	}
	fmt.Fprintf(&sb, "# Batch %s\n\n", title)
	fmt.Fprintf(&sb, "**Left:** %s\n**Right:** %s\n\n", res.Left, res.Right)

	t := res.Totals
	sb.WriteString("| Pairs | Failed | Left only | Right only | Substantive | Incomplete |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %d | %d |\n", t.Pairs, t.Failed, t.LeftOnly, t.RightOnly, t.Substantive, t.Incomplete)

	for _, item := range res.Items {
		fmt.Fprintf(&sb, "\n---\n\n## %s\n\n", item.Path)
		if item.Error != "" {
			fmt.Fprintf(&sb, "**Error:** %s\n", item.Error)
			continue
		}
		md, err := report.Markdown(item.Envelope)
		if err != nil {
			fmt.Fprintf(&sb, "**Error:** %s\n", err)
			continue
		}
		// Demote the per-pair title under the pair heading.
		sb.WriteString(strings.Replace(md, "# ", "### ", 1))
	}
	return sb.String()
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
