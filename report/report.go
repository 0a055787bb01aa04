// Package report renders engine results as markdown or as JSON envelopes.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semdiff/classify"
	"github.com/c360studio/semdiff/diff"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/section"
	"github.com/c360studio/semdiff/verify"
)

// Kind names the operation that produced a result.
type Kind string

// Result kinds.
const (
	KindSegment Kind = "segment"
	KindCompare Kind = "compare"
	KindVerify  Kind = "verify"
	KindDiff    Kind = "diff"
	KindBatch   Kind = "batch"
)

// Format selects the output encoding.
type Format string

// Output formats.
const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat validates a format name. Empty means markdown.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want markdown or json)", name)
	}
}

// Envelope wraps a result with an ID and timestamp for transport.
type Envelope struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	GeneratedAt time.Time `json:"generated_at"`
	Inputs      []string  `json:"inputs,omitempty"`
	Result      any       `json:"result"`
}

// NewEnvelope wraps result. inputs name the documents involved.
func NewEnvelope(kind Kind, result any, inputs ...string) *Envelope {
	return &Envelope{
		ID:          uuid.NewString(),
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		Inputs:      inputs,
		Result:      result,
	}
}

// Write renders env to w in the given format.
func Write(w io.Writer, format Format, env *Envelope) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encode %s result: %w", env.Kind, err)
		}
		return nil
	case FormatMarkdown, "":
		md, err := Markdown(env)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, md)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Markdowner is implemented by results that render themselves.
type Markdowner interface {
	Markdown() string
}

// Markdown renders the envelope's result as a markdown document.
func Markdown(env *Envelope) (string, error) {
	switch r := env.Result.(type) {
	case *engine.Comparison:
		return Comparison(r, env.Inputs...), nil
	case *verify.Result:
		return Verification(r, env.Inputs...), nil
	case []section.Section:
		return Sections(r, env.Inputs...), nil
	case []diff.Span:
		return "# Word Diff\n\n" + InlineDiff(r) + "\n", nil
	case Markdowner:
		return r.Markdown(), nil
	default:
		return "", fmt.Errorf("no markdown rendering for %T", env.Result)
	}
}

// Comparison renders a revision comparison.
func Comparison(cmp *engine.Comparison, inputs ...string) string {
	var sb strings.Builder

	sb.WriteString("# Revision Comparison\n\n")
	writeInputs(&sb, inputs, "Previous", "Current")

	s := cmp.Summary
	sb.WriteString("| Added | Removed | Modified | Unchanged | Substantive | Editorial |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %d | %d |\n\n",
		s.Added, s.Removed, s.Modified, s.Unchanged, s.Substantive, s.Editorial)

	if len(cmp.Issues) > 0 {
		sb.WriteString("## Issues\n\n")
		for _, issue := range cmp.Issues {
			fmt.Fprintf(&sb, "- **%s**: %s\n", issue.Code, issue.Message)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Changes\n\n")
	for _, rec := range cmp.Changes {
		label := string(rec.ChangeType)
		if rec.Significance != "" {
			label += ", " + string(rec.Significance)
		}
		fmt.Fprintf(&sb, "### %s (%s)\n\n", rec.SectionTitle, label)

		if rec.ManualReview {
			sb.WriteString("> Flagged for manual review.\n\n")
		}
		if len(rec.DiffSpans) > 0 && rec.ChangeType != classify.Unchanged {
			sb.WriteString(InlineDiff(rec.DiffSpans))
			sb.WriteString("\n\n")
		}
		for _, line := range rec.Rationale {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// Verification renders a completeness check.
func Verification(res *verify.Result, inputs ...string) string {
	var sb strings.Builder

	sb.WriteString("# Completeness Check\n\n")
	writeInputs(&sb, inputs, "Source", "Derived")

	status := "complete"
	if !res.IsComplete {
		status = "incomplete"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)
	fmt.Fprintf(&sb, "- Headings: %d of %d present\n",
		len(res.SourceHeadings)-len(res.MissingHeadings), len(res.SourceHeadings))
	fmt.Fprintf(&sb, "- Key terms: %d of %d present\n",
		len(res.KeyTerms)-len(res.MissingKeyTerms), len(res.KeyTerms))
	fmt.Fprintf(&sb, "- Coverage: %.1f%% (%d of %d characters)\n\n",
		res.CoveragePercent, res.OutputCharCount, res.SourceCharCount)

	if feedback := res.FormatFeedback(); feedback != "" {
		sb.WriteString(feedback)
		if !strings.HasSuffix(feedback, "\n") {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Sections renders a segmentation as a table.
func Sections(sections []section.Section, inputs ...string) string {
	var sb strings.Builder

	sb.WriteString("# Sections\n\n")
	writeInputs(&sb, inputs, "Document")

	sb.WriteString("| # | Key | Title | Detector | Category | Offset |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for i, s := range sections {
		fmt.Fprintf(&sb, "| %d | `%s` | %s | %s | %s | %d |\n",
			i+1, s.Key, escapeCell(s.Title()), s.Detector, s.Category, s.StartOffset)
	}

	return sb.String()
}

// InlineDiff renders spans with [-removed-] and {+added+} markers.
func InlineDiff(spans []diff.Span) string {
	var sb strings.Builder
	for _, sp := range spans {
		switch sp.Kind {
		case diff.Removed:
			sb.WriteString("[-")
			sb.WriteString(sp.Text)
			sb.WriteString("-]")
		case diff.Added:
			sb.WriteString("{+")
			sb.WriteString(sp.Text)
			sb.WriteString("+}")
		default:
			sb.WriteString(sp.Text)
		}
	}
	return sb.String()
}

func writeInputs(sb *strings.Builder, inputs []string, labels ...string) {
	if len(inputs) == 0 {
		return
	}
	for i, in := range inputs {
		label := "Input"
		if i < len(labels) {
			label = labels[i]
		}
		if in == "" {
			in = "(none)"
		}
		fmt.Fprintf(sb, "**%s:** %s  \n", label, in)
	}
	sb.WriteString("\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
