package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/semdiff/batch"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/metrics"
	"github.com/c360studio/semdiff/publish"
	"github.com/c360studio/semdiff/report"
	"github.com/c360studio/semdiff/server"
	"github.com/c360studio/semdiff/watch"
)

var errIncomplete = errors.New("derived document is incomplete")

func (a *app) newEngine(opts ...engine.Option) (*engine.Engine, error) {
	opts = append([]engine.Option{engine.WithLogger(a.logger)}, opts...)
	return engine.New(a.cfg, opts...)
}

func (a *app) write(w io.Writer, env *report.Envelope) error {
	return report.Write(w, a.format, env)
}

// publisher connects to NATS. It fails when publishing was requested but no
// server is configured.
func (a *app) publisher() (*publish.Publisher, error) {
	p, err := publish.Connect(a.cfg.NATS, a.logger)
	if errors.Is(err, publish.ErrDisabled) {
		return nil, fmt.Errorf("--publish needs --nats-url, nats.url or SEMDIFF_NATS_URL: %w", err)
	}
	return p, err
}

func (a *app) publish(ctx context.Context, env *report.Envelope) error {
	p, err := a.publisher()
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.Publish(ctx, env); err != nil {
		return err
	}
	a.logger.Info("Published result", "subject", p.Subject(env.Kind), "id", env.ID)
	return nil
}

func segmentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "segment FILE",
		Short: "List the sections detected in a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.load(cmd.Context(), cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			eng, err := a.newEngine()
			if err != nil {
				return err
			}
			env := report.NewEnvelope(report.KindSegment, eng.Segment(doc.Text()), doc.Location)
			return a.write(cmd.OutOrStdout(), env)
		},
	}
}

func compareCmd(a *app) *cobra.Command {
	var publishResult bool

	cmd := &cobra.Command{
		Use:   "compare PREVIOUS CURRENT",
		Short: "Compare two revisions of a document section by section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prev, cur, err := a.loadPair(ctx, cmd.InOrStdin(), args[0], args[1])
			if err != nil {
				return err
			}
			eng, err := a.newEngine()
			if err != nil {
				return err
			}

			cmp := eng.CompareRevisions(prev.Text(), cur.Text())
			env := report.NewEnvelope(report.KindCompare, cmp, prev.Location, cur.Location)
			if err := a.write(cmd.OutOrStdout(), env); err != nil {
				return err
			}
			if publishResult {
				return a.publish(ctx, env)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&publishResult, "publish", false, "Publish the result to NATS")
	return cmd
}

func diffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Show a word-level diff of two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldDoc, newDoc, err := a.loadPair(cmd.Context(), cmd.InOrStdin(), args[0], args[1])
			if err != nil {
				return err
			}
			eng, err := a.newEngine()
			if err != nil {
				return err
			}
			spans := eng.DiffWords(oldDoc.Text(), newDoc.Text())
			return a.write(cmd.OutOrStdout(), report.NewEnvelope(report.KindDiff, spans, oldDoc.Location, newDoc.Location))
		},
	}
}

func verifyCmd(a *app) *cobra.Command {
	var (
		strict        bool
		publishResult bool
	)

	cmd := &cobra.Command{
		Use:   "verify SOURCE DERIVED",
		Short: "Check a derived document covers its source",
		Long: `Verify checks that a derived document (training material, a summary, a
translation) still carries every heading and key term of its source.

With --strict the command exits with status 3 when the derived document is
incomplete.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, derived, err := a.loadPair(ctx, cmd.InOrStdin(), args[0], args[1])
			if err != nil {
				return err
			}
			eng, err := a.newEngine()
			if err != nil {
				return err
			}

			res := eng.VerifyCompleteness(src.Text(), derived.Text())
			env := report.NewEnvelope(report.KindVerify, res, src.Location, derived.Location)
			if err := a.write(cmd.OutOrStdout(), env); err != nil {
				return err
			}
			if publishResult {
				if err := a.publish(ctx, env); err != nil {
					return err
				}
			}
			if strict && !res.IsComplete {
				return &exitError{code: exitIncomplete, err: errIncomplete}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with status 3 when incomplete")
	cmd.Flags().BoolVar(&publishResult, "publish", false, "Publish the result to NATS")
	return cmd
}

func batchCmd(a *app) *cobra.Command {
	var left, right string

	cmd := &cobra.Command{
		Use:   "batch compare|verify",
		Short: "Compare or verify every document pair under two directories",
		Long: `Batch pairs documents under --left and --right by relative path and runs
compare (left = previous, right = current) or verify (left = source,
right = derived) on each pair.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(report.KindCompare), string(report.KindVerify)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := report.Kind(args[0])
			if kind != report.KindCompare && kind != report.KindVerify {
				return fmt.Errorf("unknown batch mode %q (want compare or verify)", args[0])
			}
			if left == "" || right == "" {
				return errors.New("--left and --right are required")
			}

			eng, err := a.newEngine()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := batch.New(eng, a.cfg.Batch, a.logger).Run(ctx, kind, left, right)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), report.NewEnvelope(report.KindBatch, res, left, right))
		},
	}

	cmd.Flags().StringVar(&left, "left", "", "Previous (compare) or source (verify) directory")
	cmd.Flags().StringVar(&right, "right", "", "Current (compare) or derived (verify) directory")
	cmd.Flags().StringVar(&a.overrides.Batch.Pattern, "pattern", "", "Glob selecting documents (default from config)")
	cmd.Flags().IntVar(&a.overrides.Batch.Workers, "workers", 0, "Parallel pairs (default from config)")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch PREVIOUS CURRENT",
		Short: "Re-run compare or verify whenever either file changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.newEngine()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			handler := func(_ context.Context, env *report.Envelope) error {
				return a.write(out, env)
			}
			w, err := watch.New(eng, a.cfg.Watch, args[0], args[1], handler, a.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&a.overrides.Watch.Mode, "mode", "", "compare or verify (default from config)")
	cmd.Flags().DurationVar(&a.overrides.Watch.Debounce, "debounce", 0, "Quiet period before re-running (default from config)")
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			scfg := a.cfg.Server
			m := metrics.New()
			eng, err := a.newEngine(engine.WithMetrics(m))
			if err != nil {
				return err
			}
			opts := []server.Option{server.WithLogger(a.logger), server.WithMetrics(m)}

			if a.cfg.NATS.URL != "" {
				p, err := publish.Connect(a.cfg.NATS, a.logger)
				if err != nil {
					return err
				}
				defer p.Close()
				opts = append(opts, server.WithPublisher(p))
				a.logger.Info("Publishing results", "url", a.cfg.NATS.URL, "prefix", a.cfg.NATS.SubjectPrefix)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("Semdiff ready", "version", Version, "addr", scfg.Addr)
			return server.New(eng, scfg, opts...).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&a.overrides.Server.Addr, "addr", "", "Listen address (default from config)")
	return cmd
}
