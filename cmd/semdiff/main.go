// Package main provides the semdiff binary entry point.
// Semdiff compares revisions of structured documents section by section and
// checks derived documents for completeness against their source.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/report"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semdiff"
)

// Exit codes beyond the usual 0 and 1.
const (
	exitPanic      = 2
	exitIncomplete = 3
)

// exitError carries a specific exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitPanic)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// app is the state shared by all subcommands, built once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	format report.Format

	// overrides collects flag values; set fields win over loaded config.
	overrides config.Config
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		format     string
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Section-level revision comparison for structured documents",
		Long: `Semdiff compares two revisions of a structured document (SOPs, work
instructions, policies) section by section.

It provides:
- Section segmentation of numbered, keyword and markdown headings
- Tiered section matching that survives renumbering and retitling
- Word-level diffs with editorial/substantive classification
- Completeness checks of derived documents against their source

Inputs may be local files (markdown, text, HTML, PDF, DOCX) or https URLs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("log-level") {
				a.overrides.LogLevel = logLevel
			}
			return a.setup(cmd.ErrOrStderr(), configPath, logLevel, format)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&format, "format", "markdown", "Output format (markdown, json)")
	cmd.PersistentFlags().StringVar(&a.overrides.NATS.URL, "nats-url", "", "NATS server URL for --publish and serve (default from config)")

	cmd.AddCommand(
		segmentCmd(a),
		compareCmd(a),
		diffCmd(a),
		verifyCmd(a),
		batchCmd(a),
		watchCmd(a),
		serveCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return nil
			},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// setup configures logging and loads configuration. Flags given on the
// command line are merged over the loaded configuration.
func (a *app) setup(stderr io.Writer, configPath, logLevel, format string) error {
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	a.format = f

	level, err := config.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.NewLoader(bootstrap).Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Merge(&a.overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	a.cfg = cfg

	if level, err = config.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}
