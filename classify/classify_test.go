package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdiff/diff"
	"github.com/c360studio/semdiff/match"
	"github.com/c360studio/semdiff/section"
)

// pair segments two single-section texts and classifies them as an exact-key match.
func pair(t *testing.T, c *Classifier, oldText, newText string) ChangeRecord {
	t.Helper()
	prev := section.Segment(oldText)
	cur := section.Segment(newText)
	require.Len(t, prev, 1)
	require.Len(t, cur, 1)
	res := match.Result{
		PreviousKey: prev[0].Key, CurrentKey: cur[0].Key,
		PreviousIndex: 0, CurrentIndex: 0,
		Tier: match.TierExactKey, Confidence: 1.0,
	}
	return c.Classify(res, &prev[0], &cur[0])
}

func TestClassify_ModifiedEditorial(t *testing.T) {
	rec := pair(t, NewDefault(), "2.0 Scope\nApplies to Y.", "2.0 Scope\nApplies to Y and Z.")

	assert.Equal(t, Modified, rec.ChangeType)
	assert.Equal(t, Editorial, rec.Significance)
	assert.False(t, rec.KeywordDelta.Any())
	assert.Equal(t, "2.0", rec.SectionID)
	assert.Equal(t, "2.0 Scope", rec.SectionTitle)
	assert.Equal(t, 1.0, rec.MatchConfidence)
	assert.Equal(t, match.TierExactKey, rec.MatchTier)
	assert.Equal(t, "2.0 Scope\nApplies to Y.", diff.OldText(rec.DiffSpans))
	assert.Equal(t, "2.0 Scope\nApplies to Y and Z.", diff.NewText(rec.DiffSpans))
	assert.NotEmpty(t, rec.Rationale)
}

func TestClassify_ObligationChangeIsSubstantive(t *testing.T) {
	rec := pair(t, NewDefault(),
		"4.1 Review\nBatch records may be reviewed by QA.",
		"4.1 Review\nBatch records must be reviewed by QA.")

	assert.Equal(t, Modified, rec.ChangeType)
	assert.True(t, rec.KeywordDelta.ObligationChanged)
	assert.False(t, rec.KeywordDelta.RoleChanged)
	assert.False(t, rec.KeywordDelta.RecordsChanged)
	assert.Equal(t, Substantive, rec.Significance)
	assert.Contains(t, rec.Rationale, "obligation terms changed: [may] -> [must]")
}

func TestClassify_KeywordDeltas(t *testing.T) {
	tests := []struct {
		name  string
		old   string
		new   string
		check func(KeywordDelta) bool
	}{
		{
			name:  "role",
			old:   "1 Setup\nThe operator checks the seal.",
			new:   "1 Setup\nThe supervisor checks the seal.",
			check: func(k KeywordDelta) bool { return k.RoleChanged },
		},
		{
			name:  "timing duration",
			old:   "1 Setup\nLet stand for 30 minutes before use.",
			new:   "1 Setup\nLet stand for 45 minutes before use.",
			check: func(k KeywordDelta) bool { return k.TimingChanged },
		},
		{
			name:  "timing frequency",
			old:   "1 Setup\nClean the hood weekly using wipes.",
			new:   "1 Setup\nClean the hood daily using wipes.",
			check: func(k KeywordDelta) bool { return k.TimingChanged },
		},
		{
			name:  "temperature range",
			old:   "1 Storage\nStore at 2-8 °C away from light.",
			new:   "1 Storage\nStore at 15-25 °C away from light.",
			check: func(k KeywordDelta) bool { return k.ThresholdChanged },
		},
		{
			name:  "percentage",
			old:   "1 Acceptance\nYield of 95% is acceptable.",
			new:   "1 Acceptance\nYield of 90% is acceptable.",
			check: func(k KeywordDelta) bool { return k.ThresholdChanged },
		},
		{
			name:  "records",
			old:   "1 Completion\nNotify the lead when finished.",
			new:   "1 Completion\nSign the logbook when finished.",
			check: func(k KeywordDelta) bool { return k.RecordsChanged },
		},
	}

	c := NewDefault()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := pair(t, c, tt.old, tt.new)
			assert.Equal(t, Modified, rec.ChangeType)
			assert.True(t, tt.check(rec.KeywordDelta), "delta: %+v rationale: %v", rec.KeywordDelta, rec.Rationale)
			assert.Equal(t, Substantive, rec.Significance)
		})
	}
}

func TestClassify_RenumberedIsUnchanged(t *testing.T) {
	rec := pair(t, NewDefault(), "3.1 Training\nAll staff train yearly.", "4.2 Training\nAll staff train yearly.")

	assert.Equal(t, Unchanged, rec.ChangeType)
	assert.Empty(t, rec.Significance)
	assert.Equal(t, "4.2", rec.SectionID)
	assert.Empty(t, rec.DiffSpans)
}

func TestClassify_FormattingOnlyIsUnchanged(t *testing.T) {
	rec := pair(t, NewDefault(), "1 Setup\nCheck   the seal.", "1 Setup\ncheck the seal")

	assert.Equal(t, Unchanged, rec.ChangeType)
}

func TestClassify_LargeRewriteIsSubstantive(t *testing.T) {
	rec := pair(t, NewDefault(),
		"1 Cleaning\nWipe bench with cloth.",
		"1 Cleaning\nSpray disinfectant across every exposed surface thoroughly.")

	assert.Equal(t, Modified, rec.ChangeType)
	assert.False(t, rec.KeywordDelta.Any())
	assert.Equal(t, Substantive, rec.Significance)
}

func TestClassify_WordReplacement(t *testing.T) {
	oldText := "1 Storage\nStore samples in the freezer until the end of the working day."
	newText := "1 Storage\nStore samples in the incubator until the end of the working day."

	t.Run("substantive by default", func(t *testing.T) {
		rec := pair(t, NewDefault(), oldText, newText)
		assert.False(t, rec.KeywordDelta.Any())
		assert.Equal(t, Substantive, rec.Significance)
		assert.Contains(t, rec.Rationale, "words replaced: freezer -> incubator: substantive")
	})

	t.Run("ratio decides when disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ReplacementsSubstantive = false
		rec := pair(t, MustNew(cfg, nil), oldText, newText)
		assert.Equal(t, Editorial, rec.Significance)
	})
}

func TestReplacements(t *testing.T) {
	tests := []struct {
		name  string
		spans []diff.Span
		want  []string
	}{
		{"pure addition", []diff.Span{{Kind: diff.Unchanged, Text: "Y"}, {Kind: diff.Added, Text: " and Z"}}, nil},
		{"pure removal", []diff.Span{{Kind: diff.Removed, Text: "old "}, {Kind: diff.Unchanged, Text: "text"}}, nil},
		{"case only", []diff.Span{{Kind: diff.Removed, Text: "Check"}, {Kind: diff.Added, Text: "check"}}, nil},
		{"swap", []diff.Span{{Kind: diff.Removed, Text: "freezer"}, {Kind: diff.Added, Text: "incubator"}}, []string{"freezer -> incubator"}},
		{
			"runs split by a space are joined",
			[]diff.Span{{Kind: diff.Removed, Text: "red"}, {Kind: diff.Unchanged, Text: " "}, {Kind: diff.Added, Text: "blue"}},
			[]string{"red -> blue"},
		},
		{
			"runs split by a word stay apart",
			[]diff.Span{{Kind: diff.Removed, Text: "red"}, {Kind: diff.Unchanged, Text: " cap "}, {Kind: diff.Added, Text: "blue"}},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, replacements(tt.spans))
		})
	}
}

func TestClassify_AddedAndRemoved(t *testing.T) {
	c := NewDefault()
	secs := section.Segment("5 Disposal\nDiscard waste.")
	require.Len(t, secs, 1)

	added := c.Classify(match.Result{CurrentKey: secs[0].Key, PreviousIndex: -1, CurrentIndex: 0, Tier: match.TierUnmatched}, nil, &secs[0])
	assert.Equal(t, Added, added.ChangeType)
	assert.Equal(t, Substantive, added.Significance)
	assert.Equal(t, 0.0, added.MatchConfidence)
	assert.Equal(t, secs[0].Content, added.NewContent)
	assert.Equal(t, "5", added.SectionID)

	removed := c.Classify(match.Result{PreviousKey: secs[0].Key, PreviousIndex: 0, CurrentIndex: -1, Tier: match.TierUnmatched}, &secs[0], nil)
	assert.Equal(t, Removed, removed.ChangeType)
	assert.Equal(t, Substantive, removed.Significance)
	assert.Equal(t, secs[0].Content, removed.OldContent)
}

func TestClassify_UnnumberedSectionIDIsKey(t *testing.T) {
	rec := pair(t, NewDefault(), "Scope\nAll sites.", "Scope\nAll sites and vendors.")

	assert.Equal(t, "kw_scope", rec.SectionID)
}

func TestClassify_CustomVocabulary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vocabulary = Vocabulary{Roles: []string{"pilot"}}
	c := MustNew(cfg, nil)

	rec := pair(t, c, "1 Crew\nThe pilot signs off.", "1 Crew\nThe navigator signs off.")

	assert.True(t, rec.KeywordDelta.RoleChanged)
}

func TestParseVocabulary(t *testing.T) {
	v, err := ParseVocabulary([]byte("roles:\n  - pilot\n  - navigator\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"pilot", "navigator"}, v.Roles)
	assert.Equal(t, DefaultVocabulary().Obligation, v.Obligation)

	_, err = ParseVocabulary([]byte("roles: [unterminated"))
	assert.Error(t, err)
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("obligation:\n  - must\n"), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"must"}, v.Obligation)

	_, err = LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNew_InvalidPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vocabulary.TimingPatterns = []string{"("}

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{EditorialMaxChangeRatio: 1.5}.Validate())
	assert.Error(t, Config{EditorialMaxChangeRatio: -0.1}.Validate())
}
