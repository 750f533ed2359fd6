// Package clarify produces targeted clarification questions when the
// user's intent or scope is ambiguous. Questions come from the AI
// completion capability when it cooperates and from static per-section
// templates when it does not.
package clarify

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

// MaxQuestions is the hard cap on questions returned per turn.
const MaxQuestions = 4

// Category classifies what a question is trying to pin down.
type Category string

const (
	CategorySpecification Category = "specification"
	CategoryScope         Category = "scope"
	CategoryPriority      Category = "priority"
	CategoryFormat        Category = "format"
	CategoryDependency    Category = "dependency"
)

// Priority orders questions within a set.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Question is one clarification question.
type Question struct {
	Question      string         `json:"question"`
	Category      Category       `json:"category"`
	TargetSection canvas.Section `json:"target_section,omitempty"`
	Examples      []string       `json:"examples,omitempty"`
	Priority      Priority       `json:"priority"`
}

// Set is the full clarification output for one turn.
type Set struct {
	Questions        []Question `json:"questions"`
	Context          string     `json:"context"`
	SuggestedActions []string   `json:"suggested_actions,omitempty"`
	EstimatedTime    string     `json:"estimated_clarification_time,omitempty"`
}

// Generator produces clarification sets. A nil port forces the template
// fallback on every call.
type Generator struct {
	port completion.Port
}

// NewGenerator returns a Generator backed by port (may be nil).
func NewGenerator(port completion.Port) *Generator {
	return &Generator{port: port}
}

var questionSchema = completion.MustSchema("clarify.json", `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["question", "category", "priority"],
				"properties": {
					"question":       {"type": "string"},
					"category":       {"type": "string", "enum": ["specification", "scope", "priority", "format", "dependency"]},
					"target_section": {"type": "string"},
					"examples":       {"type": "array", "items": {"type": "string"}},
					"priority":       {"type": "string", "enum": ["high", "medium", "low"]}
				}
			}
		},
		"context":                      {"type": "string"},
		"suggested_actions":            {"type": "array", "items": {"type": "string"}},
		"estimated_clarification_time": {"type": "string"}
	}
}`)

const questionSystemTmpl = `The user is dissatisfied with part of a QA ticket document but has not said exactly what to change. Compose clarification questions that pin down what they want.

Sections: ticket_summary, acceptance_criteria, test_cases, configuration_warnings, metadata.
Current document: %s
Sections under discussion: %s

Respond ONLY with JSON:
{
  "questions": [{"question": "<question in the user's language>", "category": "specification"|"scope"|"priority"|"format"|"dependency", "target_section": "<section>", "examples": ["<concrete example answer>", ...], "priority": "high"|"medium"|"low"}],
  "context": "<one sentence on why clarification is needed>",
  "suggested_actions": ["<action>", ...],
  "estimated_clarification_time": "<e.g. 1-2 minutes>"
}

At most 4 questions. Ask about specifics, not preferences.`

type aiQuestionSet struct {
	Questions []struct {
		Question      string   `json:"question"`
		Category      string   `json:"category"`
		TargetSection string   `json:"target_section"`
		Examples      []string `json:"examples"`
		Priority      string   `json:"priority"`
	} `json:"questions"`
	Context          string   `json:"context"`
	SuggestedActions []string `json:"suggested_actions"`
	EstimatedTime    string   `json:"estimated_clarification_time"`
}

// Generate produces a clarification set for the message. targets may be
// empty, in which case the fallback asks a generic scope question. The
// output never exceeds MaxQuestions and is ordered by PrioritizeQuestions.
func (g *Generator) Generate(ctx context.Context, message string, targets []canvas.Section, doc *canvas.Document) Set {
	var set Set
	ok := false
	if g.port != nil {
		set, ok = g.generateAI(ctx, message, targets, doc)
	}
	if !ok {
		set = templateSet(targets)
	}

	set.Questions = PrioritizeQuestions(set.Questions)
	if len(set.Questions) > MaxQuestions {
		set.Questions = set.Questions[:MaxQuestions]
	}
	return set
}

// generateAI requests a question set from the model. The bool result
// reports whether the output is usable.
func (g *Generator) generateAI(ctx context.Context, message string, targets []canvas.Section, doc *canvas.Document) (Set, bool) {
	targetNames := "(not detected)"
	if len(targets) > 0 {
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = string(t)
		}
		targetNames = strings.Join(names, ", ")
	}

	raw, err := g.port.Classify(ctx, completion.ClassifyRequest{
		System: fmt.Sprintf(questionSystemTmpl, canvas.Summarize(doc).String(), targetNames),
		User:   message,
		Schema: questionSchema,
	})
	if err != nil {
		slog.Warn("clarify: AI generation failed, using templates", "err", err)
		return Set{}, false
	}
	var parsed aiQuestionSet
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("clarify: decode question set", "err", err)
		return Set{}, false
	}
	if len(parsed.Questions) == 0 {
		return Set{}, false
	}

	set := Set{
		Context:          parsed.Context,
		SuggestedActions: parsed.SuggestedActions,
		EstimatedTime:    parsed.EstimatedTime,
	}
	for _, q := range parsed.Questions {
		question := Question{
			Question: q.Question,
			Category: Category(q.Category),
			Examples: q.Examples,
			Priority: Priority(q.Priority),
		}
		if s, ok := canvas.ParseSection(q.TargetSection); ok {
			question.TargetSection = s
		}
		set.Questions = append(set.Questions, question)
	}
	return set, true
}

// templateSet is the static fallback: one dedicated question per known
// target section, or a generic scope question when no section was
// detected.
func templateSet(targets []canvas.Section) Set {
	set := Set{
		Context:       "the request was too vague to act on directly",
		EstimatedTime: "1-2 minutes",
	}

	for _, t := range targets {
		if q, ok := sectionTemplates[t]; ok {
			set.Questions = append(set.Questions, q)
		}
	}

	if len(set.Questions) == 0 {
		names := make([]string, 0, len(canvas.AllSections)-1)
		for _, s := range canvas.AllSections {
			if s == canvas.SectionMetadata {
				continue
			}
			names = append(names, s.DisplayName())
		}
		set.Questions = append(set.Questions, Question{
			Question: fmt.Sprintf(
				"¿Qué parte del documento quieres ajustar? / Which part of the document do you want to adjust? (%s)",
				strings.Join(names, ", ")),
			Category: CategoryScope,
			Priority: PriorityHigh,
		})
	}
	return set
}

// sectionTemplates holds the per-section fallback questions. Each question
// names its section so the user knows exactly what is being asked about.
var sectionTemplates = map[canvas.Section]Question{
	canvas.SectionAcceptanceCriteria: {
		Question: "¿Qué debería decir exactamente en los criterios de aceptación? / " +
			"What exactly should the acceptance criteria say?",
		Category:      CategorySpecification,
		TargetSection: canvas.SectionAcceptanceCriteria,
		Examples:      []string{"El criterio 2 debería cubrir el caso de sesión expirada", "Criterion 2 should cover the expired-session case"},
		Priority:      PriorityHigh,
	},
	canvas.SectionTestCases: {
		Question: "¿Qué escenarios faltan o sobran en los casos de prueba? / " +
			"Which scenarios are missing from or extraneous in the test cases?",
		Category:      CategorySpecification,
		TargetSection: canvas.SectionTestCases,
		Examples:      []string{"Falta un caso negativo para credenciales inválidas", "A negative case for invalid credentials is missing"},
		Priority:      PriorityHigh,
	},
	canvas.SectionTicketSummary: {
		Question: "¿Qué parte del resumen del ticket es incorrecta: el problema, el objetivo o el alcance? / " +
			"Which part of the ticket summary is wrong: the problem, the objective, or the scope?",
		Category:      CategoryScope,
		TargetSection: canvas.SectionTicketSummary,
		Priority:      PriorityHigh,
	},
}

// categoryRank orders tie-broken questions: what to build beats how it
// relates, which beats where it applies, and formatting comes last.
var categoryRank = map[Category]int{
	CategorySpecification: 0,
	CategoryDependency:    1,
	CategoryScope:         2,
	CategoryPriority:      3,
	CategoryFormat:        4,
}

var priorityRank = map[Priority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// PrioritizeQuestions orders questions by priority (high first), breaking
// ties by category rank. The sort is stable so equal questions keep their
// generation order.
func PrioritizeQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank[out[i].Priority], priorityRank[out[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return categoryRank[out[i].Category] < categoryRank[out[j].Category]
	})
	return out
}

// minQuestionLength is the length below which a question is flagged vague.
const minQuestionLength = 10

// ValidateQuestions reports descriptive issues with a question set: too
// many questions, vague (very short) questions, or none at all.
func ValidateQuestions(questions []Question) []string {
	var issues []string
	if len(questions) > 5 {
		issues = append(issues, fmt.Sprintf("too many questions (%d); users rarely answer more than a handful", len(questions)))
	}
	for i, q := range questions {
		if len(strings.TrimSpace(q.Question)) < minQuestionLength {
			issues = append(issues, fmt.Sprintf("question %d is too vague: %q", i+1, q.Question))
		}
	}
	if len(questions) == 0 {
		issues = append(issues, "no questions generated; the user gets no path forward")
	}
	return issues
}
