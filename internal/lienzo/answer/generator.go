// Package answer produces informational responses about the current
// canvas when no modification is required, with citations into the
// document that are verified against its literal content before being
// returned.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
	"github.com/pcastillo/lienzo/internal/lienzo/sections"
)

// fallbackConfidence is reported by the insights fallback path.
const fallbackConfidence = 0.6

// QuestionType buckets what kind of answer the user is after.
type QuestionType string

const (
	QuestionExplanation QuestionType = "explanation" // why does the document say X
	QuestionMethodology QuestionType = "methodology" // how was X produced / how should I verify it
	QuestionGeneral     QuestionType = "general"
)

// Topics is the topical focus of a question, used to steer the prompt.
type Topics struct {
	Sections     []canvas.Section
	QuestionType QuestionType
}

// Citation points at literal content in a document section.
type Citation struct {
	Section canvas.Section `json:"section"`
	Content string         `json:"content"`
}

// Response is an informational answer.
type Response struct {
	Response           string           `json:"response"`
	RelevantSections   []canvas.Section `json:"relevant_sections"`
	Citations          []Citation       `json:"citations,omitempty"`
	SuggestedFollowUps []string         `json:"suggested_follow_ups,omitempty"`
	Confidence         float64          `json:"confidence"`
}

// Generator produces contextual responses. A nil port forces the insights
// fallback on every call.
type Generator struct {
	port     completion.Port
	lex      *lexicon.Lexicon
	detector *sections.Detector
}

// NewGenerator returns a Generator. detector drives topic extraction and
// must not be nil; port may be.
func NewGenerator(port completion.Port, lex *lexicon.Lexicon, detector *sections.Detector) *Generator {
	return &Generator{port: port, lex: lex, detector: detector}
}

// ExtractTopics classifies the question's focus: which sections it
// references and whether it wants an explanation, a methodology, or a
// general answer.
func (g *Generator) ExtractTopics(ctx context.Context, message string, doc *canvas.Document) Topics {
	detected := g.detector.Detect(ctx, message, doc)
	topics := Topics{
		Sections:     detected.AllTargets(),
		QuestionType: QuestionGeneral,
	}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, []string{"por qué", "por que", "why", "qué significa", "que significa", "what does"}):
		topics.QuestionType = QuestionExplanation
	case containsAny(lower, []string{"cómo", "como ", "how ", "de qué manera", "methodology", "metodología"}):
		topics.QuestionType = QuestionMethodology
	}
	return topics
}

var answerSchema = completion.MustSchema("answer.json", `{
	"type": "object",
	"required": ["response", "confidence"],
	"properties": {
		"response":             {"type": "string", "minLength": 1},
		"relevant_sections":    {"type": "array", "items": {"type": "string"}},
		"citations":            {"type": "array", "items": {"type": "object", "required": ["section", "content"], "properties": {"section": {"type": "string"}, "content": {"type": "string"}}}},
		"suggested_follow_ups": {"type": "array", "items": {"type": "string"}},
		"confidence":           {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

const answerSystemTmpl = `You answer questions about a QA ticket document without changing it. Answer in the user's language (Spanish or English).

Question focus: %s
Document:
%s
%s
Respond ONLY with JSON:
{
  "response": "<the answer>",
  "relevant_sections": ["<section>", ...],
  "citations": [{"section": "<section>", "content": "<verbatim text from that section>"}],
  "suggested_follow_ups": ["<follow-up the user might ask next>", ...],
  "confidence": 0.0-1.0
}

Citations must quote the document verbatim; do not paraphrase inside citations.`

type aiAnswer struct {
	Response         string   `json:"response"`
	RelevantSections []string `json:"relevant_sections"`
	Citations        []struct {
		Section string `json:"section"`
		Content string `json:"content"`
	} `json:"citations"`
	SuggestedFollowUps []string `json:"suggested_follow_ups"`
	Confidence         float64  `json:"confidence"`
}

// Generate answers message from the document. originalTicket, when
// non-empty, is the raw ticket text the canvas was built from and is
// offered to the model as extra context. On AI failure the response is
// built from deterministic per-section insights.
func (g *Generator) Generate(ctx context.Context, message string, doc *canvas.Document, originalTicket string) Response {
	topics := g.ExtractTopics(ctx, message, doc)

	if g.port != nil {
		if resp, ok := g.generateAI(ctx, message, doc, originalTicket, topics); ok {
			return resp
		}
	}
	return insightsFallback(doc, topics)
}

// generateAI requests an answer and post-validates its citations: any
// citation whose content does not literally appear in the named section is
// discarded. The bool result reports whether the output is usable.
func (g *Generator) generateAI(ctx context.Context, message string, doc *canvas.Document, originalTicket string, topics Topics) (Response, bool) {
	ticketContext := ""
	if originalTicket != "" {
		ticketContext = "Original ticket:\n" + originalTicket + "\n"
	}

	raw, err := g.port.Classify(ctx, completion.ClassifyRequest{
		System: fmt.Sprintf(answerSystemTmpl, topics.QuestionType, documentText(doc), ticketContext),
		User:   message,
		Schema: answerSchema,
	})
	if err != nil {
		slog.Warn("answer: AI generation failed, using section insights", "err", err)
		return Response{}, false
	}
	var parsed aiAnswer
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("answer: decode response", "err", err)
		return Response{}, false
	}

	resp := Response{
		Response:           parsed.Response,
		SuggestedFollowUps: parsed.SuggestedFollowUps,
		Confidence:         clamp01(parsed.Confidence),
	}
	for _, raw := range parsed.RelevantSections {
		if s, ok := canvas.ParseSection(raw); ok {
			resp.RelevantSections = append(resp.RelevantSections, s)
		}
	}
	for _, c := range parsed.Citations {
		section, ok := canvas.ParseSection(c.Section)
		if !ok {
			continue
		}
		if !strings.Contains(doc.SectionContent(section), c.Content) {
			slog.Debug("answer: dropping citation not found in document", "section", section)
			continue
		}
		resp.Citations = append(resp.Citations, Citation{Section: section, Content: c.Content})
	}
	return resp, true
}

// insightsFallback composes a deterministic answer from per-section
// counts and characteristics.
func insightsFallback(doc *canvas.Document, topics Topics) Response {
	insights := SectionInsights(doc)

	relevant := topics.Sections
	if len(relevant) == 0 {
		for s := range insights {
			relevant = append(relevant, s)
		}
	}

	var sb strings.Builder
	sb.WriteString("Esto es lo que contiene el documento actualmente / Here is what the document currently contains:\n")
	for _, s := range relevant {
		if insight, ok := insights[s]; ok {
			sb.WriteString("- ")
			sb.WriteString(insight)
			sb.WriteString("\n")
		}
	}
	if len(insights) == 0 {
		sb.WriteString("El documento está vacío por ahora. / The document is empty so far.\n")
	}

	return Response{
		Response:         sb.String(),
		RelevantSections: relevant,
		Confidence:       fallbackConfidence,
	}
}

// SectionInsights produces a human-readable one-liner per non-empty
// section.
func SectionInsights(doc *canvas.Document) map[canvas.Section]string {
	insights := make(map[canvas.Section]string)
	if doc == nil {
		return insights
	}
	if !doc.TicketSummary.Empty() {
		insights[canvas.SectionTicketSummary] = fmt.Sprintf(
			"ticket summary: problem %q", firstLine(doc.TicketSummary.Problem))
	}
	if n := len(doc.AcceptanceCriteria); n > 0 {
		insights[canvas.SectionAcceptanceCriteria] = fmt.Sprintf("%d acceptance criteria", n)
	}
	if n := len(doc.TestCases); n > 0 {
		linked := 0
		for _, tc := range doc.TestCases {
			if tc.CriterionID != "" {
				linked++
			}
		}
		insights[canvas.SectionTestCases] = fmt.Sprintf("%d test cases, %d linked to a criterion", n, linked)
	}
	if n := len(doc.ConfigurationWarnings); n > 0 {
		insights[canvas.SectionConfigurationWarnings] = fmt.Sprintf("%d configuration warnings", n)
	}
	return insights
}

// documentText renders the canvas for the answer prompt, section by
// section.
func documentText(doc *canvas.Document) string {
	var sb strings.Builder
	for _, s := range canvas.AllSections {
		content := doc.SectionContent(s)
		if strings.TrimSpace(content) == "" {
			continue
		}
		sb.WriteString("## ")
		sb.WriteString(s.DisplayName())
		sb.WriteString("\n")
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "(empty document)"
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		cut := 80
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return s
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
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
