// Package lexicon loads the bilingual (Spanish/English) keyword tables that
// drive every deterministic classification path: section detection, the
// intent fallback, and off-topic category scoring.
//
// The tables live in embedded YAML files, not in code. Adding a language or
// a keyword is a data change; the scoring logic never needs to know which
// languages exist.
package lexicon

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Keyword is a single weighted term. Phrases (multi-word terms) carry
// higher weights than single words in the shipped data.
type Keyword struct {
	Term   string `yaml:"term"`
	Weight int    `yaml:"weight"`
}

// Category labels an off-topic lexicon.
type Category string

const (
	CategoryEntertainment Category = "entertainment"
	CategoryPersonal      Category = "personal"
	CategorySmallTalk     Category = "small_talk"
	CategoryUnrelatedWork Category = "unrelated_work"
	CategoryGeneralTech   Category = "general_tech"
)

// Lexicon holds every loaded keyword table.
type Lexicon struct {
	// Sections maps each canvas section to its weighted detection keywords.
	Sections map[canvas.Section][]Keyword

	// ModificationVerbs are verbs that signal an explicit change request.
	ModificationVerbs []string

	// VaguePhrases signal dissatisfaction without a concrete change.
	VaguePhrases []string

	// QuestionCues signal an informational question.
	QuestionCues []string

	// DomainTerms are QA/ticket-domain words that anchor a message on-topic.
	DomainTerms []string

	// OffTopic maps each category to its lexicon.
	OffTopic map[Category][]string
}

// sectionsFile mirrors data/sections.yaml.
type sectionsFile map[string][]Keyword

// intentsFile mirrors data/intents.yaml.
type intentsFile struct {
	ModificationVerbs []string `yaml:"modification_verbs"`
	VaguePhrases      []string `yaml:"vague_phrases"`
	QuestionCues      []string `yaml:"question_cues"`
}

// offtopicFile mirrors data/offtopic.yaml.
type offtopicFile struct {
	DomainTerms []string            `yaml:"domain_terms"`
	Categories  map[string][]string `yaml:"categories"`
}

// Load parses the embedded YAML tables into a Lexicon. It validates that
// every section key maps to a known canvas section so a typo in the data
// file fails loudly instead of silently never matching.
func Load() (*Lexicon, error) {
	lex := &Lexicon{
		Sections: make(map[canvas.Section][]Keyword),
		OffTopic: make(map[Category][]string),
	}

	var sf sectionsFile
	if err := parseFile("data/sections.yaml", &sf); err != nil {
		return nil, err
	}
	for raw, keywords := range sf {
		section, ok := canvas.ParseSection(raw)
		if !ok {
			return nil, fmt.Errorf("lexicon: sections.yaml references unknown section %q", raw)
		}
		for i, kw := range keywords {
			if strings.TrimSpace(kw.Term) == "" {
				return nil, fmt.Errorf("lexicon: sections.yaml %s[%d]: empty term", raw, i)
			}
			if kw.Weight <= 0 {
				return nil, fmt.Errorf("lexicon: sections.yaml %s[%d] (%q): weight must be positive", raw, i, kw.Term)
			}
		}
		lex.Sections[section] = keywords
	}

	var inf intentsFile
	if err := parseFile("data/intents.yaml", &inf); err != nil {
		return nil, err
	}
	lex.ModificationVerbs = inf.ModificationVerbs
	lex.VaguePhrases = inf.VaguePhrases
	lex.QuestionCues = inf.QuestionCues

	var of offtopicFile
	if err := parseFile("data/offtopic.yaml", &of); err != nil {
		return nil, err
	}
	lex.DomainTerms = of.DomainTerms
	for name, terms := range of.Categories {
		lex.OffTopic[Category(name)] = terms
	}

	return lex, nil
}

// parseFile reads one embedded YAML file into out.
func parseFile(name string, out any) error {
	data, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("lexicon: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("lexicon: parse %s: %w", name, err)
	}
	return nil
}

var defaultOnce = sync.OnceValues(Load)

// Default returns the lexicon built from the embedded data files, loading
// it on first use. All callers share one immutable instance.
func Default() (*Lexicon, error) {
	return defaultOnce()
}

// MustDefault is Default for wiring paths where the embedded data is known
// good (it is validated by tests); it panics on load failure.
func MustDefault() *Lexicon {
	lex, err := Default()
	if err != nil {
		panic(err)
	}
	return lex
}
