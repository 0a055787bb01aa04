package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/c360studio/semdiff/source"
	"github.com/c360studio/semdiff/source/fetch"
	"github.com/c360studio/semdiff/source/parser"
)

// stdinArg reads the document from standard input as plain text.
const stdinArg = "-"

// load resolves a command argument to a document: "-" is stdin, https URLs
// are fetched, anything else is a local path.
func (a *app) load(ctx context.Context, stdin io.Reader, arg string) (*source.Document, error) {
	switch {
	case arg == stdinArg:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		doc, err := parser.DefaultRegistry.Parse("stdin.txt", data)
		if err != nil {
			return nil, err
		}
		doc.Location = "stdin"
		return doc, nil

	case fetch.IsURL(arg):
		f := fetch.NewFetcher(a.cfg.Fetch.Timeout, a.cfg.Fetch.UserAgent, a.cfg.Fetch.MaxBytes, a.logger)
		return f.Load(ctx, arg)

	default:
		if _, err := os.Stat(arg); err != nil {
			return nil, fmt.Errorf("open %s: %w", arg, err)
		}
		return parser.DefaultRegistry.ParseFile(arg)
	}
}

// loadPair loads two arguments. At most one of them may be stdin.
func (a *app) loadPair(ctx context.Context, stdin io.Reader, left, right string) (*source.Document, *source.Document, error) {
	if left == stdinArg && right == stdinArg {
		return nil, nil, fmt.Errorf("only one input can be read from stdin")
	}
	l, err := a.load(ctx, stdin, left)
	if err != nil {
		return nil, nil, err
	}
	r, err := a.load(ctx, stdin, right)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}
