package depend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
)

// complexityRiskThreshold is the combined criteria+test-case count at
// which any change is graded high-risk regardless of cascade analysis.
const complexityRiskThreshold = 15

// Analyzer performs dependency analysis and validation. A nil port
// disables AI refinement; every method still returns the static result.
type Analyzer struct {
	port completion.Port
}

// NewAnalyzer returns an Analyzer backed by port (may be nil).
func NewAnalyzer(port completion.Port) *Analyzer {
	return &Analyzer{port: port}
}

var analyzeSchema = completion.MustSchema("depend-analyze.json", `{
	"type": "object",
	"required": ["affected_sections", "cascade_required", "impact_assessment", "conflict_risk"],
	"properties": {
		"affected_sections": {"type": "array", "items": {"type": "string"}},
		"dependencies": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from", "to", "relationship", "strength"],
				"properties": {
					"from":         {"type": "string"},
					"to":           {"type": "string"},
					"relationship": {"type": "string", "enum": ["derives_from", "validates", "implements", "references"]},
					"strength":     {"type": "string", "enum": ["strong", "medium", "weak"]},
					"description":  {"type": "string"}
				}
			}
		},
		"cascade_required":  {"type": "boolean"},
		"impact_assessment": {"type": "string"},
		"conflict_risk":     {"type": "string", "enum": ["low", "medium", "high"]}
	}
}`)

const analyzeSystemTmpl = `You analyze how a proposed change to a QA ticket document affects its other sections.

Sections: ticket_summary, acceptance_criteria, test_cases, configuration_warnings, metadata.
Known relationships:
%s
Current document: %s

Respond ONLY with JSON:
{
  "affected_sections": ["<section>", ...],
  "dependencies": [{"from": "<section>", "to": "<section>", "relationship": "derives_from"|"validates"|"implements"|"references", "strength": "strong"|"medium"|"weak", "description": "<one sentence>"}],
  "cascade_required": true|false,
  "impact_assessment": "<two sentences at most>",
  "conflict_risk": "low"|"medium"|"high"
}`

type aiAnalysis struct {
	AffectedSections []string `json:"affected_sections"`
	Dependencies     []struct {
		From         string `json:"from"`
		To           string `json:"to"`
		Relationship string `json:"relationship"`
		Strength     string `json:"strength"`
		Description  string `json:"description"`
	} `json:"dependencies"`
	CascadeRequired  bool   `json:"cascade_required"`
	ImpactAssessment string `json:"impact_assessment"`
	ConflictRisk     string `json:"conflict_risk"`
}

// AnalyzeDependencies determines which sections a proposed change to
// targets would affect. It starts from the static table restricted to
// edges leaving the targets, asks the AI capability to refine the result,
// and falls back to the static-only result on any AI failure.
func (a *Analyzer) AnalyzeDependencies(ctx context.Context, targets []canvas.Section, doc *canvas.Document, proposedChange string) AnalysisResult {
	result := a.staticAnalysis(targets, doc)

	if a.port != nil && proposedChange != "" {
		if refined, ok := a.refineAI(ctx, targets, doc, proposedChange, result); ok {
			result = refined
		}
	}

	result.AffectedSections = ensureAffectedSuperset(result.AffectedSections, targets, result.Dependencies)
	result.ConflictRisk = escalateRisk(result, canvas.Summarize(doc))
	return result
}

// staticAnalysis builds the deterministic floor result.
func (a *Analyzer) staticAnalysis(targets []canvas.Section, doc *canvas.Document) AnalysisResult {
	edges := staticEdgesFrom(targets)
	cascade := false
	for _, e := range edges {
		if e.Strength == StrengthStrong {
			cascade = true
			break
		}
	}

	affected := ensureAffectedSuperset(nil, targets, edges)

	risk := RiskLow
	if cascade {
		risk = RiskMedium
	}

	return AnalysisResult{
		AffectedSections: affected,
		Dependencies:     edges,
		CascadeRequired:  cascade,
		ImpactAssessment: staticImpactText(targets, edges),
		ConflictRisk:     risk,
	}
}

// refineAI asks the model to extend the static analysis. The static edges
// are always retained; AI edges are appended (deduplicated by from/to
// pair, AI wins on conflicts for relationship and strength).
func (a *Analyzer) refineAI(ctx context.Context, targets []canvas.Section, doc *canvas.Document, proposedChange string, static AnalysisResult) (AnalysisResult, bool) {
	raw, err := a.port.Classify(ctx, completion.ClassifyRequest{
		System: fmt.Sprintf(analyzeSystemTmpl, describeEdges(static.Dependencies), canvas.Summarize(doc).String()),
		User: fmt.Sprintf("Proposed change to %s: %s",
			joinSections(targets), proposedChange),
		Schema: analyzeSchema,
	})
	if err != nil {
		slog.Warn("depend: AI analysis failed, using static table only", "err", err)
		return AnalysisResult{}, false
	}
	var parsed aiAnalysis
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("depend: decode AI analysis", "err", err)
		return AnalysisResult{}, false
	}

	merged := static
	merged.CascadeRequired = static.CascadeRequired || parsed.CascadeRequired
	if parsed.ImpactAssessment != "" {
		merged.ImpactAssessment = parsed.ImpactAssessment
	}
	switch Risk(parsed.ConflictRisk) {
	case RiskLow, RiskMedium, RiskHigh:
		merged.ConflictRisk = maxRisk(static.ConflictRisk, Risk(parsed.ConflictRisk))
	}

	type key struct{ from, to canvas.Section }
	byPair := make(map[key]int, len(merged.Dependencies))
	for i, d := range merged.Dependencies {
		byPair[key{d.From, d.To}] = i
	}
	for _, d := range parsed.Dependencies {
		from, ok1 := canvas.ParseSection(d.From)
		to, ok2 := canvas.ParseSection(d.To)
		if !ok1 || !ok2 || from == to {
			continue
		}
		edge := Dependency{
			From:         from,
			To:           to,
			Relationship: Relationship(d.Relationship),
			Strength:     Strength(d.Strength),
			Description:  d.Description,
		}
		if i, exists := byPair[key{from, to}]; exists {
			merged.Dependencies[i] = edge
		} else {
			byPair[key{from, to}] = len(merged.Dependencies)
			merged.Dependencies = append(merged.Dependencies, edge)
		}
	}

	for _, raw := range parsed.AffectedSections {
		if s, ok := canvas.ParseSection(raw); ok {
			merged.AffectedSections = append(merged.AffectedSections, s)
		}
	}
	return merged, true
}

// ensureAffectedSuperset enforces the result invariant: affected sections
// cover the targets and every dependency's To endpoint. The output is
// deduplicated and sorted for stable comparison.
func ensureAffectedSuperset(affected, targets []canvas.Section, deps []Dependency) []canvas.Section {
	set := sectionSet(affected)
	for _, t := range targets {
		set[t] = true
	}
	for _, d := range deps {
		set[d.To] = true
	}
	out := make([]canvas.Section, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// escalateRisk applies the deterministic escalation rules on top of
// whatever the analysis produced: a complex document (≥15 combined items)
// is always high risk, as is a required cascade over a strong edge.
func escalateRisk(r AnalysisResult, summary canvas.Summary) Risk {
	if summary.TotalItems() >= complexityRiskThreshold {
		return RiskHigh
	}
	if r.CascadeRequired {
		for _, d := range r.Dependencies {
			if d.Strength == StrengthStrong {
				return RiskHigh
			}
		}
	}
	return r.ConflictRisk
}

func maxRisk(a, b Risk) Risk {
	rank := map[Risk]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func staticImpactText(targets []canvas.Section, edges []Dependency) string {
	if len(edges) == 0 {
		return fmt.Sprintf("changes to %s do not propagate to other sections", joinSections(targets))
	}
	var tos []string
	for _, e := range edges {
		tos = append(tos, e.To.DisplayName())
	}
	return fmt.Sprintf("changes to %s may require updates to %s",
		joinSections(targets), strings.Join(tos, ", "))
}

func describeEdges(edges []Dependency) string {
	if len(edges) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, e := range edges {
		fmt.Fprintf(&sb, "- %s %s %s (%s)\n", e.From, e.Relationship, e.To, e.Strength)
	}
	return sb.String()
}

func joinSections(sections []canvas.Section) string {
	if len(sections) == 0 {
		return "the document"
	}
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.DisplayName()
	}
	return strings.Join(names, ", ")
}
