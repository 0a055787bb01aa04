package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/report"
	"github.com/c360studio/semdiff/verify"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// fixture builds two revision trees:
//
//	a.md       obligation change (substantive)
//	sub/b.txt  identical
//	old.md     left only
//	new.md     right only
//	bad.pdf    unparseable on both sides
func fixture(t *testing.T) (string, string) {
	t.Helper()
	left := filepath.Join(t.TempDir(), "v1")
	right := filepath.Join(t.TempDir(), "v2")

	writeTree(t, left, map[string]string{
		"a.md":       "1 Review\nRecords may be reviewed.\n",
		"sub/b.txt":  "1.0 Purpose\nDo X.\n",
		"old.md":     "1 Retired\nNo longer used.\n",
		"bad.pdf":    "not a pdf",
		".git/x.md":  "ignored",
		"sheet.xlsx": "ignored",
	})
	writeTree(t, right, map[string]string{
		"a.md":      "1 Review\nRecords must be reviewed.\n",
		"sub/b.txt": "1.0 Purpose\nDo X.\n",
		"new.md":    "1 Intake\nNew procedure.\n",
		"bad.pdf":   "not a pdf",
	})
	return left, right
}

func TestPairs(t *testing.T) {
	left, right := fixture(t)
	r := New(engine.NewDefault(), config.DefaultConfig().Batch, nil)

	pairs, err := r.Pairs(left, right)
	require.NoError(t, err)

	want := []Pair{
		{Path: "a.md", Left: filepath.Join(left, "a.md"), Right: filepath.Join(right, "a.md")},
		{Path: "bad.pdf", Left: filepath.Join(left, "bad.pdf"), Right: filepath.Join(right, "bad.pdf")},
		{Path: "new.md", Right: filepath.Join(right, "new.md")},
		{Path: "old.md", Left: filepath.Join(left, "old.md")},
		{Path: "sub/b.txt", Left: filepath.Join(left, "sub", "b.txt"), Right: filepath.Join(right, "sub", "b.txt")},
	}
	assert.Equal(t, want, pairs)
}

func TestPairs_Errors(t *testing.T) {
	left, right := fixture(t)

	t.Run("no matches", func(t *testing.T) {
		r := New(engine.NewDefault(), config.BatchConfig{Workers: 1, Pattern: "**/*.rst"}, nil)
		_, err := r.Pairs(left, right)
		assert.ErrorIs(t, err, ErrNoInputs)
	})

	t.Run("bad pattern", func(t *testing.T) {
		r := New(engine.NewDefault(), config.BatchConfig{Workers: 1, Pattern: "[a-"}, nil)
		_, err := r.Pairs(left, right)
		assert.ErrorIs(t, err, doublestar.ErrBadPattern)
	})

	t.Run("missing root", func(t *testing.T) {
		r := New(engine.NewDefault(), config.DefaultConfig().Batch, nil)
		_, err := r.Pairs(filepath.Join(left, "nope"), right)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file as root", func(t *testing.T) {
		r := New(engine.NewDefault(), config.DefaultConfig().Batch, nil)
		_, err := r.Pairs(filepath.Join(left, "a.md"), right)
		assert.Error(t, err)
	})
}

func TestRun_Compare(t *testing.T) {
	left, right := fixture(t)
	r := New(engine.NewDefault(), config.BatchConfig{Workers: 3, Pattern: "**/*.{md,txt,pdf}"}, nil)

	res, err := r.Run(context.Background(), report.KindCompare, left, right)
	require.NoError(t, err)

	assert.Equal(t, Totals{Pairs: 5, Failed: 1, LeftOnly: 1, RightOnly: 1, Substantive: 3}, res.Totals)
	require.Len(t, res.Items, 5)

	byPath := make(map[string]Item)
	for _, item := range res.Items {
		byPath[item.Path] = item
	}

	assert.NotEmpty(t, byPath["bad.pdf"].Error)
	assert.Nil(t, byPath["bad.pdf"].Envelope)

	same := byPath["sub/b.txt"].Envelope.Result.(*engine.Comparison)
	assert.Equal(t, engine.Summary{Unchanged: 1}, same.Summary)

	removed := byPath["old.md"].Envelope.Result.(*engine.Comparison)
	assert.Equal(t, 1, removed.Summary.Removed)

	added := byPath["new.md"].Envelope.Result.(*engine.Comparison)
	assert.Equal(t, 1, added.Summary.Added)
}

func TestRun_Verify(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sops")
	derived := filepath.Join(t.TempDir(), "training")
	writeTree(t, src, map[string]string{
		"cleaning.md": "1.0 Purpose\nDo X.\n2.0 Scope\nApplies to Y.\n",
		"intake.md":   "1.0 Purpose\nDo Z.\n",
	})
	writeTree(t, derived, map[string]string{
		"cleaning.md": "Purpose only.\n",
		"intake.md":   "Purpose: do Z.\n",
	})

	r := New(engine.NewDefault(), config.BatchConfig{Workers: 2}, nil)
	res, err := r.Run(context.Background(), report.KindVerify, src, derived)
	require.NoError(t, err)

	assert.Equal(t, Totals{Pairs: 2, Incomplete: 1}, res.Totals)
	assert.Equal(t, "cleaning.md", res.Items[0].Path)
	cleaning := res.Items[0].Envelope.Result.(*verify.Result)
	assert.Equal(t, []string{"2.0 Scope"}, cleaning.MissingHeadings)
}

func TestRun_Errors(t *testing.T) {
	left, right := fixture(t)
	r := New(engine.NewDefault(), config.DefaultConfig().Batch, nil)

	_, err := r.Run(context.Background(), report.KindDiff, left, right)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, report.KindCompare, left, right)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_Markdown(t *testing.T) {
	left, right := fixture(t)
	r := New(engine.NewDefault(), config.DefaultConfig().Batch, nil)

	res, err := r.Run(context.Background(), report.KindCompare, left, right)
	require.NoError(t, err)

	md, err := report.Markdown(report.NewEnvelope(report.KindBatch, res))
	require.NoError(t, err)

	assert.Contains(t, md, "# Batch Revision Comparison")
	assert.Contains(t, md, "| 5 | 1 | 1 | 1 | 3 | 0 |")
	assert.Contains(t, md, "## a.md\n\n### Revision Comparison")
	assert.Contains(t, md, "[-may-]{+must+}")
	assert.Contains(t, md, "## bad.pdf\n\n**Error:**")
}

func TestNew_Defaults(t *testing.T) {
	r := New(engine.NewDefault(), config.BatchConfig{}, nil)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, config.DefaultConfig().Batch.Pattern, r.pattern)
}
