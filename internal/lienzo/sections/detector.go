// Package sections identifies which canvas sections a message refers to.
//
// Keyword scoring over the bilingual section lexicon runs on every call;
// long or many-section messages additionally get an AI refinement pass
// whose result supersedes the keyword verdict but is still clamped to the
// same caps and filters.
package sections

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
)

// Caps on the result lists.
const (
	MaxPrimaryTargets   = 3
	MaxSecondaryTargets = 2
)

// Thresholds for the keyword path.
const (
	primaryScoreThreshold   = 2
	secondaryScoreThreshold = 1

	// aiRefineLength is the message length past which the AI pass runs.
	aiRefineLength = 120
	// aiRefineSections is the scored-section count past which it runs.
	aiRefineSections = 3
)

// Method identifies which path produced a detection result.
type Method string

const (
	MethodKeyword    Method = "keyword"
	MethodAIAnalysis Method = "ai_analysis"
	MethodHybrid     Method = "hybrid"
)

// Result is one detection outcome. Primary and Secondary are disjoint.
type Result struct {
	Primary   []canvas.Section
	Secondary []canvas.Section
	Method    Method
}

// AllTargets returns primary followed by secondary targets.
func (r Result) AllTargets() []canvas.Section {
	out := make([]canvas.Section, 0, len(r.Primary)+len(r.Secondary))
	out = append(out, r.Primary...)
	out = append(out, r.Secondary...)
	return out
}

// Detector scores messages against the section lexicon.
type Detector struct {
	lex  *lexicon.Lexicon
	port completion.Port
}

// New returns a Detector. port may be nil to disable AI refinement.
func New(lex *lexicon.Lexicon, port completion.Port) *Detector {
	return &Detector{lex: lex, port: port}
}

// Detect identifies the sections message refers to. doc provides the
// summary embedded in the refinement prompt and drives the
// configuration-warnings filter; it may be nil.
func (d *Detector) Detect(ctx context.Context, message string, doc *canvas.Document) Result {
	scores := d.score(message)
	result := resultFromScores(scores)

	if d.port != nil && (len(message) > aiRefineLength || len(scores) >= aiRefineSections) {
		if refined, ok := d.refineAI(ctx, message, doc); ok {
			if len(scores) > 0 {
				refined.Method = MethodHybrid
			} else {
				refined.Method = MethodAIAnalysis
			}
			result = refined
		}
	}

	result.Primary = ValidateSections(result.Primary, doc)
	result.Secondary = ValidateSections(result.Secondary, doc)
	return result
}

// score sums lexicon keyword weights per section for the lowercased
// message. Sections with no matches are absent from the map.
func (d *Detector) score(message string) map[canvas.Section]int {
	lower := strings.ToLower(message)
	scores := make(map[canvas.Section]int)
	for section, keywords := range d.lex.Sections {
		total := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw.Term) {
				total += kw.Weight
			}
		}
		if total > 0 {
			scores[section] = total
		}
	}
	return scores
}

// resultFromScores orders scored sections and splits them into primary
// (score ≥ 2, capped at 3) and secondary (next best, capped at 2).
func resultFromScores(scores map[canvas.Section]int) Result {
	type scored struct {
		section canvas.Section
		score   int
	}
	ranked := make([]scored, 0, len(scores))
	for s, v := range scores {
		ranked = append(ranked, scored{s, v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].section < ranked[j].section
	})

	result := Result{Method: MethodKeyword}
	for _, r := range ranked {
		if r.score >= primaryScoreThreshold && len(result.Primary) < MaxPrimaryTargets {
			result.Primary = append(result.Primary, r.section)
			continue
		}
		if r.score >= secondaryScoreThreshold && len(result.Secondary) < MaxSecondaryTargets {
			result.Secondary = append(result.Secondary, r.section)
		}
	}
	return result
}

var refineSchema = completion.MustSchema("sections.json", `{
	"type": "object",
	"required": ["primary"],
	"properties": {
		"primary":   {"type": "array", "items": {"type": "string"}},
		"secondary": {"type": "array", "items": {"type": "string"}}
	}
}`)

const refineSystemPrompt = `You identify which sections of a QA ticket document a chat message refers to.

Sections: ticket_summary, acceptance_criteria, test_cases, configuration_warnings, metadata.

Current document: %s

Respond ONLY with JSON:
{"primary": ["<section>", ...], "secondary": ["<section>", ...]}

Primary sections are the explicit subject of the message; secondary sections are referenced in passing. Messages may be in Spanish or English.`

type refineAIResult struct {
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary"`
}

// refineAI runs the AI pass. The bool result reports whether the AI
// verdict is usable.
func (d *Detector) refineAI(ctx context.Context, message string, doc *canvas.Document) (Result, bool) {
	raw, err := d.port.Classify(ctx, completion.ClassifyRequest{
		System: strings.Replace(refineSystemPrompt, "%s", canvas.Summarize(doc).String(), 1),
		User:   message,
		Schema: refineSchema,
	})
	if err != nil {
		slog.Debug("sections: AI refinement failed, keeping keyword result", "err", err)
		return Result{}, false
	}
	var parsed refineAIResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Debug("sections: decode AI result", "err", err)
		return Result{}, false
	}

	primary := parseSections(parsed.Primary, MaxPrimaryTargets, nil)
	secondary := parseSections(parsed.Secondary, MaxSecondaryTargets, primary)
	return Result{Primary: primary, Secondary: secondary}, true
}

// parseSections converts raw section names, dropping unknowns and
// duplicates (including anything already present in exclude) and clamping
// to limit.
func parseSections(raw []string, limit int, exclude []canvas.Section) []canvas.Section {
	seen := make(map[canvas.Section]bool, len(exclude))
	for _, s := range exclude {
		seen[s] = true
	}
	var out []canvas.Section
	for _, r := range raw {
		section, ok := canvas.ParseSection(r)
		if !ok || seen[section] {
			continue
		}
		seen[section] = true
		out = append(out, section)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ValidateSections filters a target list down to user-editable sections:
// metadata never survives, and configuration_warnings survives only when
// the document actually carries at least one warning.
func ValidateSections(targets []canvas.Section, doc *canvas.Document) []canvas.Section {
	var out []canvas.Section
	for _, s := range targets {
		switch s {
		case canvas.SectionMetadata:
			continue
		case canvas.SectionConfigurationWarnings:
			if doc == nil || len(doc.ConfigurationWarnings) == 0 {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
