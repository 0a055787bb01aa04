// Package watch re-runs a comparison or completeness check whenever one of
// its two input files changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/report"
	"github.com/c360studio/semdiff/source"
	"github.com/c360studio/semdiff/source/parser"
)

// Watch modes.
const (
	ModeCompare = "compare"
	ModeVerify  = "verify"
)

// defaultDebounce applies when the configured debounce is not positive.
const defaultDebounce = 500 * time.Millisecond

// Handler receives the envelope produced by each run. A returned error stops
// the watcher.
type Handler func(ctx context.Context, env *report.Envelope) error

// Watcher watches a pair of files. In compare mode the pair is
// (previous, current); in verify mode it is (source, derived).
type Watcher struct {
	engine   *engine.Engine
	registry *parser.Registry
	handler  Handler
	logger   *slog.Logger
	mode     string
	debounce time.Duration

	left  string
	right string

	// Fingerprints of the inputs at the last run.
	hashes map[string]string
}

// New creates a Watcher for the two files. Paths are resolved to absolute
// paths so events can be matched regardless of the working directory.
func New(eng *engine.Engine, cfg config.WatchConfig, left, right string, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.Mode != ModeCompare && cfg.Mode != ModeVerify {
		return nil, fmt.Errorf("invalid watch mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	absLeft, err := filepath.Abs(left)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", left, err)
	}
	absRight, err := filepath.Abs(right)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", right, err)
	}
	if absLeft == absRight {
		return nil, fmt.Errorf("cannot watch %s against itself", left)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Watcher{
		engine:   eng,
		registry: parser.DefaultRegistry,
		handler:  handler,
		logger:   logger,
		mode:     cfg.Mode,
		debounce: debounce,
		left:     absLeft,
		right:    absRight,
		hashes:   make(map[string]string),
	}, nil
}

// Run evaluates the pair once, then again after each debounced burst of
// changes, until ctx is cancelled or the handler fails.
//
// The parent directories are watched rather than the files themselves, since
// many editors save by writing a new file and renaming it into place.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.dirs() {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	if _, err := w.evaluate(ctx, true); err != nil {
		return err
	}

	w.logger.Info("Watching documents",
		slog.String("mode", w.mode),
		slog.String("left", w.left),
		slog.String("right", w.right),
		slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Document change detected",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if _, err := w.evaluate(ctx, false); err != nil {
				return err
			}
		}
	}
}

// RunOnce loads both inputs and returns the result envelope without
// invoking the handler.
func (w *Watcher) RunOnce() (*report.Envelope, error) {
	left, right, err := w.load()
	if err != nil {
		return nil, err
	}
	return w.run(left, right), nil
}

// evaluate reloads the inputs and delivers a new envelope when their content
// changed since the last run. Load failures after the first run are logged
// and skipped; a file that is mid-save usually recovers on the next event.
func (w *Watcher) evaluate(ctx context.Context, initial bool) (bool, error) {
	left, right, err := w.load()
	if err != nil {
		if initial {
			return false, err
		}
		w.logger.Warn("Skipping run, input not readable", slog.String("error", err.Error()))
		return false, nil
	}

	if !initial && !w.changed(left, right) {
		w.logger.Debug("Content unchanged, skipping run")
		return false, nil
	}
	w.hashes[w.left] = left.Hash
	w.hashes[w.right] = right.Hash

	env := w.run(left, right)
	if err := w.handler(ctx, env); err != nil {
		return false, fmt.Errorf("handle %s result: %w", env.Kind, err)
	}
	return true, nil
}

func (w *Watcher) run(left, right *source.Document) *report.Envelope {
	if w.mode == ModeVerify {
		res := w.engine.VerifyCompleteness(left.Text(), right.Text())
		return report.NewEnvelope(report.KindVerify, res, left.Location, right.Location)
	}
	cmp := w.engine.CompareRevisions(left.Text(), right.Text())
	return report.NewEnvelope(report.KindCompare, cmp, left.Location, right.Location)
}

func (w *Watcher) load() (*source.Document, *source.Document, error) {
	left, err := w.registry.ParseFile(w.left)
	if err != nil {
		return nil, nil, err
	}
	right, err := w.registry.ParseFile(w.right)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (w *Watcher) changed(left, right *source.Document) bool {
	return w.hashes[w.left] != left.Hash || w.hashes[w.right] != right.Hash
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.left || name == w.right
}

func (w *Watcher) dirs() []string {
	l, r := filepath.Dir(w.left), filepath.Dir(w.right)
	if l == r {
		return []string{l}
	}
	return []string{l, r}
}
