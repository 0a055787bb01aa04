package classify

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semdiff/normalize"
)

// Vocabulary lists the terms whose appearance or disappearance inside a
// change marks it as substantive. Terms are matched as whole normalized
// words; patterns are regular expressions over normalized text.
type Vocabulary struct {
	Obligation        []string `yaml:"obligation" json:"obligation"`
	Roles             []string `yaml:"roles" json:"roles"`
	Timing            []string `yaml:"timing" json:"timing"`
	TimingPatterns    []string `yaml:"timing_patterns,omitempty" json:"timing_patterns,omitempty"`
	Threshold         []string `yaml:"threshold" json:"threshold"`
	ThresholdPatterns []string `yaml:"threshold_patterns,omitempty" json:"threshold_patterns,omitempty"`
	Records           []string `yaml:"records" json:"records"`
}

// DefaultVocabulary returns the built-in vocabulary for regulated procedures.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Obligation: []string{
			"must", "shall", "required", "require", "mandatory", "should", "may",
			"will", "need", "prohibited", "forbidden", "not", "never", "only",
			"optional", "recommended", "cannot",
		},
		Roles: []string{
			"operator", "supervisor", "manager", "technician", "analyst", "inspector",
			"auditor", "qa", "quality assurance", "qc", "quality control", "director",
			"engineer", "staff", "employee", "personnel", "trainee", "trainer",
			"reviewer", "approver", "owner", "designee", "contractor", "pharmacist",
			"nurse", "physician", "administrator", "lead",
		},
		Timing: []string{
			"daily", "weekly", "biweekly", "monthly", "quarterly", "annually", "annual",
			"yearly", "hourly", "immediately", "promptly", "shift",
		},
		TimingPatterns: []string{
			`\d+(?:\.\d+)?(?:\s*(?:-|to)\s*\d+(?:\.\d+)?)?\s*(?:seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\b`,
		},
		Threshold: []string{
			"minimum", "maximum", "min", "max", "exceed", "below", "above",
			"less than", "greater than", "at least", "at most", "limit", "tolerance",
		},
		ThresholdPatterns: []string{
			`-?\d+(?:\.\d+)?(?:\s*-\s*-?\d+(?:\.\d+)?)?\s*°\s*[cfk]\b`,
			`\d+(?:\.\d+)?\s*%`,
			`\d+(?:\.\d+)?\s*(?:mg|[µμ]g|g|kg|ml|[µμ]l|l|mm|cm|m|ppm|ppb|psi|bar|kpa|rpm|lux|mmhg)\b`,
		},
		Records: []string{
			"record", "log", "logbook", "document", "documented", "documentation",
			"retain", "retained", "retention", "archive", "signature", "sign",
			"signed", "initial", "form", "checklist", "audit trail", "attach",
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Classes left empty in the
// file keep their defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary parses YAML vocabulary data over the defaults.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	return v.withDefaults(), nil
}

// withDefaults fills empty classes from DefaultVocabulary.
func (v Vocabulary) withDefaults() Vocabulary {
	d := DefaultVocabulary()
	if len(v.Obligation) == 0 {
		v.Obligation = d.Obligation
	}
	if len(v.Roles) == 0 {
		v.Roles = d.Roles
	}
	if len(v.Timing) == 0 && len(v.TimingPatterns) == 0 {
		v.Timing = d.Timing
		v.TimingPatterns = d.TimingPatterns
	}
	if len(v.Threshold) == 0 && len(v.ThresholdPatterns) == 0 {
		v.Threshold = d.Threshold
		v.ThresholdPatterns = d.ThresholdPatterns
	}
	if len(v.Records) == 0 {
		v.Records = d.Records
	}
	return v
}

// termClass matches one vocabulary class against text.
type termClass struct {
	terms    []string // normalized, space-joined words
	patterns []*regexp.Regexp
}

func compileClass(terms, patterns []string) (termClass, error) {
	c := termClass{}
	for _, t := range terms {
		words := normalize.Words(t)
		if len(words) == 0 {
			continue
		}
		c.terms = append(c.terms, strings.Join(words, " "))
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return termClass{}, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

// find returns the class terms present in text. A term also matches its
// simple plural ("operators", "witnesses").
func (c termClass) find(text string) map[string]struct{} {
	found := make(map[string]struct{})
	padded := " " + strings.Join(normalize.Words(text), " ") + " "
	for _, t := range c.terms {
		if strings.Contains(padded, " "+t+" ") ||
			strings.Contains(padded, " "+t+"s ") ||
			strings.Contains(padded, " "+t+"es ") {
			found[t] = struct{}{}
		}
	}
	if len(c.patterns) > 0 {
		norm := normalize.Normalize(text)
		for _, re := range c.patterns {
			for _, m := range re.FindAllString(norm, -1) {
				found[strings.Join(strings.Fields(m), " ")] = struct{}{}
			}
		}
	}
	return found
}

// compiledVocabulary is a Vocabulary ready for matching.
type compiledVocabulary struct {
	obligation termClass
	roles      termClass
	timing     termClass
	threshold  termClass
	records    termClass
}

func (v Vocabulary) compile() (*compiledVocabulary, error) {
	v = v.withDefaults()
	var cv compiledVocabulary
	var err error
	if cv.obligation, err = compileClass(v.Obligation, nil); err != nil {
		return nil, fmt.Errorf("obligation: %w", err)
	}
	if cv.roles, err = compileClass(v.Roles, nil); err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}
	if cv.timing, err = compileClass(v.Timing, v.TimingPatterns); err != nil {
		return nil, fmt.Errorf("timing: %w", err)
	}
	if cv.threshold, err = compileClass(v.Threshold, v.ThresholdPatterns); err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	if cv.records, err = compileClass(v.Records, nil); err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	return &cv, nil
}

// sortedTerms returns the keys of a term set in order.
func sortedTerms(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
