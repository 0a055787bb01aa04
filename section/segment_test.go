package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_NumberedSections(t *testing.T) {
	text := "1.0 Purpose\nDo X.\n2.0 Scope\nApplies to Y."

	sections := Segment(text)

	require.Len(t, sections, 2)
	assert.Equal(t, "num_purpose", sections[0].Key)
	assert.Equal(t, "1.0", sections[0].Number)
	assert.Equal(t, "Purpose", sections[0].Heading)
	assert.Equal(t, "1.0 Purpose\nDo X.\n", sections[0].Content)
	assert.Equal(t, 0, sections[0].StartOffset)
	assert.Equal(t, DetectorNumbered, sections[0].Detector)

	assert.Equal(t, "num_scope", sections[1].Key)
	assert.Equal(t, "2.0 Scope\nApplies to Y.", sections[1].Content)
	assert.Equal(t, len("1.0 Purpose\nDo X.\n"), sections[1].StartOffset)
	assert.Equal(t, "Applies to Y.", sections[1].Body())
}

func TestSegment_RenumberedKeysAreStable(t *testing.T) {
	prev := Segment("3.1 Training\nAll staff complete training.")
	cur := Segment("4.2 Training\nAll staff complete training.")

	require.Len(t, prev, 1)
	require.Len(t, cur, 1)
	assert.Equal(t, prev[0].Key, cur[0].Key)
	assert.Equal(t, prev[0].Comparable(), cur[0].Comparable())
	assert.NotEqual(t, prev[0].Title(), cur[0].Title())
}

func TestSegment_KeywordHeadings(t *testing.T) {
	text := "PURPOSE\nDefine the process.\nResponsibilities:\nOperators run it.\nDefinition: A term."

	sections := Segment(text)

	require.Len(t, sections, 3)
	assert.Equal(t, "kw_purpose", sections[0].Key)
	assert.Equal(t, "PURPOSE", sections[0].Heading)
	assert.Equal(t, "kw_responsibilities", sections[1].Key)
	assert.Equal(t, "kw_definitions", sections[2].Key)
	assert.Equal(t, CategoryDefinitions, sections[2].Category)
	assert.Equal(t, "A term.", sections[2].Body())
}

func TestSegment_MultiWordKeyword(t *testing.T) {
	sections := Segment("Revision History\nv1 initial.")

	require.Len(t, sections, 1)
	assert.Equal(t, "kw_revision_history", sections[0].Key)
}

func TestSegment_AppendixHeadings(t *testing.T) {
	text := "1.0 Procedure\nFollow steps.\nAppendix A: Sample Forms\nForm 1.\nAPPENDIX B\nForm 2."

	sections := Segment(text)

	require.Len(t, sections, 3)
	assert.Equal(t, "app_a", sections[1].Key)
	assert.Equal(t, "Appendix A Sample Forms", sections[1].Heading)
	assert.Equal(t, DetectorAppendix, sections[1].Detector)
	assert.Equal(t, "app_b", sections[2].Key)
}

func TestSegment_NumberedBeatsKeywordOnSameLine(t *testing.T) {
	sections := Segment("1.0 Scope\nApplies to Y.")

	require.Len(t, sections, 1)
	assert.Equal(t, DetectorNumbered, sections[0].Detector)
	assert.Equal(t, "num_scope", sections[0].Key)
}

func TestSegment_RejectsSentences(t *testing.T) {
	text := "1.0 Procedure\n1. Remove the cap from the bottle.\n2. Record the reading in the log;\nDone"

	sections := Segment(text)

	require.Len(t, sections, 1)
	assert.Equal(t, "num_procedure", sections[0].Key)
}

func TestSegment_MarkdownHeadings(t *testing.T) {
	sections := Segment("# 1 Overview\nText.\n## 1.1 Details\nMore.")

	require.Len(t, sections, 2)
	assert.Equal(t, "num_overview", sections[0].Key)
	assert.Equal(t, "1.1", sections[1].Number)
}

func TestSegment_DuplicateKeysAreSuffixed(t *testing.T) {
	sections := Segment("1 Notes\na\n2 Notes\nb\n3 Notes\nc")

	require.Len(t, sections, 3)
	assert.Equal(t, "num_notes", sections[0].Key)
	assert.Equal(t, "num_notes_2", sections[1].Key)
	assert.Equal(t, "num_notes_3", sections[2].Key)
}

func TestSegment_Preamble(t *testing.T) {
	text := "ACME Corp\nAll operators wear gloves.\n1.0 Purpose\nDo X."

	sections := Segment(text)

	require.Len(t, sections, 2)
	assert.Equal(t, PreambleKey, sections[0].Key)
	assert.Equal(t, PreambleHeading, sections[0].Heading)
	assert.Equal(t, DetectorImplicit, sections[0].Detector)
	assert.Equal(t, 0, sections[0].StartOffset)
	assert.Equal(t, "ACME Corp\nAll operators wear gloves.\n", sections[0].Body())
	assert.Equal(t, sections[0].End(), sections[1].StartOffset)
	assert.Equal(t, "num_purpose", sections[1].Key)
}

func TestSegment_BlankLeadIsNotPreamble(t *testing.T) {
	sections := Segment("\n  \n1.0 Purpose\nDo X.")

	require.Len(t, sections, 1)
	assert.Equal(t, "num_purpose", sections[0].Key)
}

func TestSegment_DegenerateInputs(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Segment(""))
	})

	t.Run("whitespace only", func(t *testing.T) {
		assert.Empty(t, Segment(" \n\t\n"))
	})

	t.Run("no headings", func(t *testing.T) {
		text := "just some prose\nwith no headings at all"
		sections := Segment(text)

		require.Len(t, sections, 1)
		assert.Equal(t, ImplicitKey, sections[0].Key)
		assert.Equal(t, ImplicitHeading, sections[0].Heading)
		assert.Equal(t, text, sections[0].Content)
		assert.Equal(t, text, sections[0].Body())
		assert.Equal(t, DetectorImplicit, sections[0].Detector)
	})
}

func TestSegment_Idempotent(t *testing.T) {
	text := "1.0 Purpose\nDo X.\nScope\nAll sites.\nAppendix A\nForms."

	assert.Equal(t, Segment(text), Segment(text))
}

func TestSegment_ContiguousAndOrdered(t *testing.T) {
	text := "1 Intro Part\nalpha\n2 Body Part\nbeta\n3 Final Part\ngamma"

	sections := Segment(text)

	require.Len(t, sections, 3)
	for i := 1; i < len(sections); i++ {
		assert.Equal(t, sections[i-1].End(), sections[i].StartOffset)
	}
	assert.Equal(t, len(text), sections[2].End())
}

func TestSegmenter_OverlapWindow(t *testing.T) {
	// Two short heading lines closer than the window collapse to the first.
	text := "1 A\n2 B\nbody"

	wide := MustNew(Config{OverlapWindow: 10, MaxHeadingLength: 80, MaxHeadingWords: 12})
	narrow := MustNew(Config{OverlapWindow: 2, MaxHeadingLength: 80, MaxHeadingWords: 12})

	assert.Len(t, wide.Segment(text), 1)
	assert.Len(t, narrow.Segment(text), 2)
}

func TestSegmenter_CustomKeywords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keywords = []string{"hazard"}
	s := MustNew(cfg)

	sections := s.Segment("Hazards\nHot surfaces.\nPurpose\nignored")

	require.Len(t, sections, 1)
	assert.Equal(t, "kw_hazard", sections[0].Key)
	assert.Equal(t, CategorySafety, sections[0].Category)
}

func TestSegmenter_IsHeading(t *testing.T) {
	s := NewDefault()

	assert.True(t, s.IsHeading("2.0 Scope"))
	assert.True(t, s.IsHeading("  ## References"))
	assert.True(t, s.IsHeading("Appendix C"))
	assert.False(t, s.IsHeading("The operator shall sign."))
	assert.False(t, s.IsHeading(""))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"negative window", func(c *Config) { c.OverlapWindow = -1 }, true},
		{"zero heading length", func(c *Config) { c.MaxHeadingLength = 0 }, true},
		{"zero heading words", func(c *Config) { c.MaxHeadingWords = 0 }, true},
		{"blank keyword", func(c *Config) { c.Keywords = []string{" "} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		heading string
		want    Category
	}{
		{"Safety Precautions", CategorySafety},
		{"Definitions and Abbreviations", CategoryDefinitions},
		{"Cleaning Procedure", CategoryProcedure},
		{"Scope", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.heading))
		})
	}
}
