package depend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
)

// Score penalties per conflict severity.
const (
	penaltyMinor    = 10
	penaltyMajor    = 25
	penaltyCritical = 40
)

// testToCriteriaWarnRatio is the test-case-to-criterion ratio past which a
// warning (not a conflict) is raised.
const testToCriteriaWarnRatio = 5

// ValidateDependencies checks the current document for cross-section
// inconsistencies. The deterministic structural checks always run; when
// proposedChange and targets are both supplied, AI semantic conflict
// detection runs as well and its conflicts are merged in. The final score
// is the unweighted average of the static score and the AI score, or the
// static score alone when the AI call fails.
func (a *Analyzer) ValidateDependencies(ctx context.Context, doc *canvas.Document, proposedChange string, targets []canvas.Section) ValidationResult {
	result := validateStructure(doc)
	staticScore := scoreConflicts(result.Conflicts)
	result.Score = staticScore

	if a.port != nil && proposedChange != "" && len(targets) > 0 {
		if conflicts, aiScore, ok := a.detectSemanticConflicts(ctx, doc, proposedChange, targets); ok {
			result.Conflicts = append(result.Conflicts, conflicts...)
			result.Score = (staticScore + aiScore) / 2
		}
	}

	result.Suggestions = buildSuggestions(result.Conflicts)
	result.IsValid = computeIsValid(result.Conflicts)
	return result
}

// validateStructure runs the pure structural checks, in a fixed order so
// conflict lists are stable:
//
//  1. Acceptance criteria without test cases, a gap that can be filled
//     automatically by deriving cases from the criteria.
//  2. Test cases without acceptance criteria, orphaned content that needs
//     a human to decide what the cases were meant to verify.
//  3. A populated document whose ticket summary has no problem statement.
//  4. A test-to-criteria ratio suggesting the criteria lag far behind.
func validateStructure(doc *canvas.Document) ValidationResult {
	var result ValidationResult
	if doc == nil {
		result.IsValid = true
		result.Score = 100
		return result
	}

	criteria := len(doc.AcceptanceCriteria)
	tests := len(doc.TestCases)

	if criteria > 0 && tests == 0 {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:                ConflictMissingDependency,
			Severity:            SeverityMajor,
			AffectedSections:    []canvas.Section{canvas.SectionAcceptanceCriteria, canvas.SectionTestCases},
			Description:         "acceptance criteria exist but no test cases cover them",
			CurrentState:        fmt.Sprintf("%d acceptance criteria, 0 test cases", criteria),
			ExpectedState:       "at least one test case per acceptance criterion",
			SuggestedResolution: "derive test cases from the existing acceptance criteria",
			AutoResolvable:      true,
		})
	}

	if tests > 0 && criteria == 0 {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:                ConflictOrphanedContent,
			Severity:            SeverityMinor,
			AffectedSections:    []canvas.Section{canvas.SectionTestCases, canvas.SectionAcceptanceCriteria},
			Description:         "test cases exist without acceptance criteria to anchor them",
			CurrentState:        fmt.Sprintf("%d test cases, 0 acceptance criteria", tests),
			ExpectedState:       "every test case traces back to an acceptance criterion",
			SuggestedResolution: "write the acceptance criteria the existing test cases verify",
			AutoResolvable:      false,
		})
	}

	hasOtherContent := criteria > 0 || tests > 0 || len(doc.ConfigurationWarnings) > 0
	if emptyProblem(doc) && hasOtherContent {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:                ConflictMissingDependency,
			Severity:            SeverityMajor,
			AffectedSections:    []canvas.Section{canvas.SectionTicketSummary},
			Description:         "the ticket summary has no problem statement while other sections have content",
			CurrentState:        "empty problem statement",
			ExpectedState:       "a problem statement the other sections derive from",
			SuggestedResolution: "describe the problem the ticket addresses",
			AutoResolvable:      false,
		})
	}

	if criteria > 0 && tests > criteria*testToCriteriaWarnRatio {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"unusually many test cases per acceptance criterion (%d:%d); the criteria may be under-specified",
			tests, criteria))
	}

	return result
}

func emptyProblem(doc *canvas.Document) bool {
	return len(doc.TicketSummary.Problem) == 0
}

// scoreConflicts computes the deterministic validation score: 100 minus a
// per-conflict severity penalty, floored at 0.
func scoreConflicts(conflicts []Conflict) int {
	score := 100
	for _, c := range conflicts {
		switch c.Severity {
		case SeverityCritical:
			score -= penaltyCritical
		case SeverityMajor:
			score -= penaltyMajor
		default:
			score -= penaltyMinor
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// computeIsValid applies the validity rule: a document stays valid through
// minor and orphaned-content conflicts; it becomes invalid on any critical
// conflict, and on major conflicts that are missing dependencies or that
// cannot be resolved automatically.
func computeIsValid(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			return false
		}
		if c.Severity == SeverityMajor && (c.Type == ConflictMissingDependency || !c.AutoResolvable) {
			return false
		}
	}
	return true
}

// buildSuggestions maps conflicts onto concrete resolution steps.
func buildSuggestions(conflicts []Conflict) []Suggestion {
	var out []Suggestion
	for _, c := range conflicts {
		if c.SuggestedResolution == "" || len(c.AffectedSections) == 0 {
			continue
		}
		out = append(out, Suggestion{
			ConflictType:  c.Type,
			TargetSection: c.AffectedSections[len(c.AffectedSections)-1],
			Action:        c.SuggestedResolution,
		})
	}
	return out
}

var semanticSchema = completion.MustSchema("depend-validate.json", `{
	"type": "object",
	"required": ["conflicts", "validation_score"],
	"properties": {
		"conflicts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "severity", "description"],
				"properties": {
					"type":                 {"type": "string", "enum": ["missing_dependency", "orphaned_content", "inconsistent_content", "version_mismatch"]},
					"severity":             {"type": "string", "enum": ["minor", "major", "critical"]},
					"affected_sections":    {"type": "array", "items": {"type": "string"}},
					"description":          {"type": "string"},
					"current_state":        {"type": "string"},
					"expected_state":       {"type": "string"},
					"suggested_resolution": {"type": "string"},
					"auto_resolvable":      {"type": "boolean"}
				}
			}
		},
		"validation_score": {"type": "number", "minimum": 0, "maximum": 100}
	}
}`)

const semanticSystemTmpl = `You review a proposed change to a QA ticket document for semantic conflicts with the rest of the document: mismatched content, inconsistent terminology, criteria and tests that would no longer agree.

Current document: %s

Respond ONLY with JSON:
{
  "conflicts": [{"type": "missing_dependency"|"orphaned_content"|"inconsistent_content"|"version_mismatch", "severity": "minor"|"major"|"critical", "affected_sections": ["<section>", ...], "description": "...", "current_state": "...", "expected_state": "...", "suggested_resolution": "...", "auto_resolvable": true|false}],
  "validation_score": 0-100
}

Report an empty conflicts array and a high score when the change is consistent.`

type aiValidation struct {
	Conflicts []struct {
		Type                string   `json:"type"`
		Severity            string   `json:"severity"`
		AffectedSections    []string `json:"affected_sections"`
		Description         string   `json:"description"`
		CurrentState        string   `json:"current_state"`
		ExpectedState       string   `json:"expected_state"`
		SuggestedResolution string   `json:"suggested_resolution"`
		AutoResolvable      bool     `json:"auto_resolvable"`
	} `json:"conflicts"`
	ValidationScore float64 `json:"validation_score"`
}

// detectSemanticConflicts runs the AI conflict pass. The bool result
// reports whether the AI output is usable.
func (a *Analyzer) detectSemanticConflicts(ctx context.Context, doc *canvas.Document, proposedChange string, targets []canvas.Section) ([]Conflict, int, bool) {
	raw, err := a.port.Classify(ctx, completion.ClassifyRequest{
		System: fmt.Sprintf(semanticSystemTmpl, canvas.Summarize(doc).String()),
		User:   fmt.Sprintf("Proposed change to %s: %s", joinSections(targets), proposedChange),
		Schema: semanticSchema,
	})
	if err != nil {
		slog.Warn("depend: AI conflict detection failed, static score stands", "err", err)
		return nil, 0, false
	}
	var parsed aiValidation
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("depend: decode AI validation", "err", err)
		return nil, 0, false
	}

	var conflicts []Conflict
	for _, c := range parsed.Conflicts {
		var affected []canvas.Section
		for _, raw := range c.AffectedSections {
			if s, ok := canvas.ParseSection(raw); ok {
				affected = append(affected, s)
			}
		}
		conflicts = append(conflicts, Conflict{
			Type:                ConflictType(c.Type),
			Severity:            Severity(c.Severity),
			AffectedSections:    affected,
			Description:         c.Description,
			CurrentState:        c.CurrentState,
			ExpectedState:       c.ExpectedState,
			SuggestedResolution: c.SuggestedResolution,
			AutoResolvable:      c.AutoResolvable,
		})
	}
	return conflicts, int(parsed.ValidationScore), true
}

// WouldCreateConflicts runs a hypothetical validation of the proposed
// change and reports whether any conflict would result.
func (a *Analyzer) WouldCreateConflicts(ctx context.Context, doc *canvas.Document, proposedChange string, targets []canvas.Section) bool {
	result := a.ValidateDependencies(ctx, doc, proposedChange, targets)
	return len(result.Conflicts) > 0
}
