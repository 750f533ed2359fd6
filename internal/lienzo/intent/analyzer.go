package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
	"github.com/pcastillo/lienzo/internal/lienzo/sections"
)

// historyWindow is the number of most recent conversation turns embedded
// in the classification prompt.
const historyWindow = 6

// fallbackConfidence is the fixed moderate confidence reported by the
// deterministic keyword path when it finds a signal.
const fallbackConfidence = 0.5

// noSignalConfidence is reported when the fallback path matches nothing.
const noSignalConfidence = 0.3

// Analyzer classifies messages, reusing section detection as a signal and
// falling back to pure keyword heuristics when the AI call fails.
type Analyzer struct {
	port     completion.Port
	lex      *lexicon.Lexicon
	detector *sections.Detector
}

// NewAnalyzer returns an Analyzer. port may be nil, which forces every
// call onto the keyword fallback.
func NewAnalyzer(port completion.Port, lex *lexicon.Lexicon, detector *sections.Detector) *Analyzer {
	return &Analyzer{port: port, lex: lex, detector: detector}
}

var classifySchema = completion.MustSchema("intent.json", `{
	"type": "object",
	"required": ["intent", "confidence", "reasoning"],
	"properties": {
		"intent":                 {"type": "string", "enum": ["modify_canvas", "ask_clarification", "provide_information", "request_explanation", "off_topic"]},
		"confidence":             {"type": "number"},
		"target_sections":        {"type": "array", "items": {"type": "string"}},
		"reasoning":              {"type": "string", "minLength": 1},
		"keywords":               {"type": "array", "items": {"type": "string"}},
		"should_modify_canvas":   {"type": "boolean"},
		"requires_clarification": {"type": "boolean"}
	}
}`)

const classifySystemTmpl = `You classify messages in a conversation about a QA ticket document (canvas). The canvas has these sections: ticket_summary, acceptance_criteria, test_cases, configuration_warnings, metadata.

Current canvas: %s

Classify the user's latest message into exactly one intent:
- modify_canvas: the user asks for a concrete change to the document.
- ask_clarification: the user is dissatisfied or vague; a clarifying question is needed before changing anything.
- provide_information: the user asks a question answerable from the document.
- request_explanation: the user asks why the document says what it says or how it was derived.
- off_topic: the message is not about the document at all.

Messages may be in Spanish or English.

Respond ONLY with JSON:
{
  "intent": "<one of the five>",
  "confidence": 0.0-1.0,
  "target_sections": ["<section>", ...],
  "reasoning": "<one sentence>",
  "keywords": ["<decisive word or phrase>", ...],
  "should_modify_canvas": true|false,
  "requires_clarification": true|false
}`

// aiClassification mirrors the classify schema.
type aiClassification struct {
	Intent                string   `json:"intent"`
	Confidence            float64  `json:"confidence"`
	TargetSections        []string `json:"target_sections"`
	Reasoning             string   `json:"reasoning"`
	Keywords              []string `json:"keywords"`
	ShouldModifyCanvas    bool     `json:"should_modify_canvas"`
	RequiresClarification bool     `json:"requires_clarification"`
}

// Analyze classifies message. history is the bounded conversation so far,
// oldest first; doc may be nil. The returned Result always has confidence
// in [0,1] and a non-empty reasoning, whether or not the AI call succeeds.
func (a *Analyzer) Analyze(ctx context.Context, message string, history []completion.Message, doc *canvas.Document) Result {
	ictx := buildContext(history, doc)

	if a.port != nil {
		if result, ok := a.analyzeAI(ctx, message, history, doc, ictx); ok {
			return result
		}
	}
	return a.analyzeKeywords(ctx, message, doc, ictx)
}

// analyzeAI runs the structured classification call. The bool result
// reports whether the AI result is usable.
func (a *Analyzer) analyzeAI(ctx context.Context, message string, history []completion.Message, doc *canvas.Document, ictx Context) (Result, bool) {
	raw, err := a.port.Classify(ctx, completion.ClassifyRequest{
		System:  fmt.Sprintf(classifySystemTmpl, canvas.Summarize(doc).String()),
		History: boundHistory(history),
		User:    message,
		Schema:  classifySchema,
	})
	if err != nil {
		slog.Warn("intent: AI classification failed, using keyword fallback", "err", err)
		return Result{}, false
	}

	var parsed aiClassification
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("intent: decode classification", "err", err)
		return Result{}, false
	}
	if !Type(parsed.Intent).Known() {
		slog.Warn("intent: model produced unknown intent", "intent", parsed.Intent)
		return Result{}, false
	}

	targets := make([]canvas.Section, 0, len(parsed.TargetSections))
	for _, raw := range parsed.TargetSections {
		if s, ok := canvas.ParseSection(raw); ok {
			targets = append(targets, s)
		}
	}

	reasoning := strings.TrimSpace(parsed.Reasoning)
	if reasoning == "" {
		reasoning = "model classification without stated reasoning"
	}

	return Result{
		Intent:                Type(parsed.Intent),
		Confidence:            clamp01(parsed.Confidence),
		TargetSections:        sections.ValidateSections(targets, doc),
		Context:               ictx,
		Reasoning:             reasoning,
		Keywords:              parsed.Keywords,
		ShouldModifyCanvas:    parsed.ShouldModifyCanvas,
		RequiresClarification: parsed.RequiresClarification,
	}, true
}

// analyzeKeywords is the deterministic fallback: bilingual modification
// verbs force modify_canvas, vague/negative phrases force
// ask_clarification, and anything else is treated as informational. Zero
// matched keywords yields provide_information at low confidence.
func (a *Analyzer) analyzeKeywords(ctx context.Context, message string, doc *canvas.Document, ictx Context) Result {
	lower := strings.ToLower(message)

	var keywords []string
	matched := func(terms []string) bool {
		found := false
		for _, t := range terms {
			if strings.Contains(lower, t) {
				keywords = append(keywords, t)
				found = true
			}
		}
		return found
	}

	hasVerb := matched(a.lex.ModificationVerbs)
	hasVague := matched(a.lex.VaguePhrases)
	hasQuestion := matched(a.lex.QuestionCues)

	detected := a.detector.Detect(ctx, message, doc)
	targets := detected.AllTargets()

	result := Result{
		Context:        ictx,
		TargetSections: targets,
		Keywords:       keywords,
	}

	switch {
	case hasVerb:
		result.Intent = TypeModifyCanvas
		result.Confidence = fallbackConfidence
		result.ShouldModifyCanvas = true
		result.Reasoning = "keyword fallback: modification verb detected"
	case hasVague:
		result.Intent = TypeAskClarification
		result.Confidence = fallbackConfidence
		result.RequiresClarification = true
		result.Reasoning = "keyword fallback: vague or negative phrasing without a concrete change"
	case hasQuestion:
		result.Intent = TypeProvideInformation
		result.Confidence = fallbackConfidence
		result.Reasoning = "keyword fallback: informational question cue detected"
	default:
		result.Intent = TypeProvideInformation
		result.Confidence = noSignalConfidence
		result.Reasoning = "keyword fallback: no intent keywords matched"
	}
	return result
}

// buildContext derives the classification context from the inputs.
func buildContext(history []completion.Message, doc *canvas.Document) Context {
	summary := canvas.Summarize(doc)
	ictx := Context{
		HasCanvas:          doc != nil,
		CanvasComplexity:   summary.Complexity(),
		ConversationLength: len(history),
	}
	if doc != nil {
		ictx.AvailableSections = availableSections(summary)
	}
	return ictx
}

// availableSections lists the sections that currently hold content.
func availableSections(s canvas.Summary) []canvas.Section {
	var out []canvas.Section
	if s.HasTicketSummary {
		out = append(out, canvas.SectionTicketSummary)
	}
	if s.CriteriaCount > 0 {
		out = append(out, canvas.SectionAcceptanceCriteria)
	}
	if s.TestCaseCount > 0 {
		out = append(out, canvas.SectionTestCases)
	}
	if s.WarningCount > 0 {
		out = append(out, canvas.SectionConfigurationWarnings)
	}
	if s.MetadataCount > 0 {
		out = append(out, canvas.SectionMetadata)
	}
	return out
}

// boundHistory keeps only the most recent turns for the prompt.
func boundHistory(history []completion.Message) []completion.Message {
	if len(history) <= historyWindow {
		return history
	}
	return history[len(history)-historyWindow:]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
