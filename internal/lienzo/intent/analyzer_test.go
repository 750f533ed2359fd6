package intent_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/intent"
	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
	"github.com/pcastillo/lienzo/internal/lienzo/sections"
)

type stubPort struct {
	raw      json.RawMessage
	err      error
	captured completion.ClassifyRequest
	calls    int
}

func (s *stubPort) Classify(_ context.Context, req completion.ClassifyRequest) (json.RawMessage, error) {
	s.calls++
	s.captured = req
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

func (s *stubPort) Generate(context.Context, completion.GenerateRequest) (string, error) {
	return "", errors.New("generate not stubbed")
}

func newAnalyzer(port completion.Port) *intent.Analyzer {
	lex := lexicon.MustDefault()
	return intent.NewAnalyzer(port, lex, sections.New(lex, nil))
}

func checkInvariants(t *testing.T, got intent.Result) {
	t.Helper()
	if got.Confidence < 0 || got.Confidence > 1 {
		t.Errorf("confidence %v outside [0,1]", got.Confidence)
	}
	if strings.TrimSpace(got.Reasoning) == "" {
		t.Error("empty reasoning")
	}
	if !got.Intent.Known() {
		t.Errorf("unknown intent %q", got.Intent)
	}
}

func TestAnalyze_AIClassification(t *testing.T) {
	stub := &stubPort{raw: json.RawMessage(`{
		"intent": "modify_canvas",
		"confidence": 0.92,
		"target_sections": ["acceptanceCriteria"],
		"reasoning": "explicit change request",
		"keywords": ["cambia"],
		"should_modify_canvas": true,
		"requires_clarification": false
	}`)}
	a := newAnalyzer(stub)

	got := a.Analyze(context.Background(), "Cambia el criterio 2", nil, nil)
	checkInvariants(t, got)
	if got.Intent != intent.TypeModifyCanvas {
		t.Errorf("intent = %q, want modify_canvas", got.Intent)
	}
	if !got.ShouldModifyCanvas {
		t.Error("ShouldModifyCanvas not carried through")
	}
	if len(got.TargetSections) != 1 || got.TargetSections[0] != canvas.SectionAcceptanceCriteria {
		t.Errorf("targets = %v, want [acceptance_criteria]", got.TargetSections)
	}
}

func TestAnalyze_ConfidenceIsClamped(t *testing.T) {
	stub := &stubPort{raw: json.RawMessage(
		`{"intent": "off_topic", "confidence": 3.5, "reasoning": "way off"}`)}
	a := newAnalyzer(stub)

	got := a.Analyze(context.Background(), "hola", nil, nil)
	if got.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", got.Confidence)
	}
}

func TestAnalyze_UnknownAIIntentFallsBack(t *testing.T) {
	stub := &stubPort{raw: json.RawMessage(
		`{"intent": "summon_reviewer", "confidence": 0.9, "reasoning": "made up"}`)}
	a := newAnalyzer(stub)

	got := a.Analyze(context.Background(), "Cambia el resumen del ticket", nil, nil)
	checkInvariants(t, got)
	if got.Intent != intent.TypeModifyCanvas {
		t.Errorf("fallback intent = %q, want modify_canvas from the verb", got.Intent)
	}
	if !strings.Contains(got.Reasoning, "keyword fallback") {
		t.Errorf("reasoning %q does not identify the fallback path", got.Reasoning)
	}
}

func TestAnalyze_FallbackVaguePhrase(t *testing.T) {
	stub := &stubPort{err: errors.New("upstream down")}
	a := newAnalyzer(stub)

	got := a.Analyze(context.Background(), "Los criterios de aceptación están mal definidos", nil, nil)
	checkInvariants(t, got)
	if got.Intent != intent.TypeAskClarification {
		t.Errorf("intent = %q, want ask_clarification", got.Intent)
	}
	if !got.RequiresClarification {
		t.Error("RequiresClarification not set on the vague path")
	}
	if got.Confidence != 0.5 {
		t.Errorf("confidence = %v, want the fixed fallback 0.5", got.Confidence)
	}
	found := false
	for _, s := range got.TargetSections {
		if s == canvas.SectionAcceptanceCriteria {
			found = true
		}
	}
	if !found {
		t.Errorf("targets = %v, want acceptance_criteria detected", got.TargetSections)
	}
}

func TestAnalyze_FallbackModificationVerb(t *testing.T) {
	a := newAnalyzer(nil)

	got := a.Analyze(context.Background(), "Agrega un caso de prueba para sesiones expiradas", nil, nil)
	checkInvariants(t, got)
	if got.Intent != intent.TypeModifyCanvas {
		t.Errorf("intent = %q, want modify_canvas", got.Intent)
	}
	if !got.ShouldModifyCanvas {
		t.Error("ShouldModifyCanvas not set")
	}
}

func TestAnalyze_FallbackQuestionCue(t *testing.T) {
	a := newAnalyzer(nil)

	got := a.Analyze(context.Background(), "¿Por qué el criterio 2 exige dos factores?", nil, nil)
	checkInvariants(t, got)
	if got.Intent != intent.TypeProvideInformation {
		t.Errorf("intent = %q, want provide_information", got.Intent)
	}
}

func TestAnalyze_FallbackNoSignal(t *testing.T) {
	a := newAnalyzer(nil)

	got := a.Analyze(context.Background(), "mmm ok", nil, nil)
	checkInvariants(t, got)
	if got.Intent != intent.TypeProvideInformation {
		t.Errorf("intent = %q, want provide_information", got.Intent)
	}
	if got.Confidence != 0.3 {
		t.Errorf("confidence = %v, want the no-signal 0.3", got.Confidence)
	}
}

func TestAnalyze_ContextReflectsInputs(t *testing.T) {
	a := newAnalyzer(nil)
	doc := &canvas.Document{
		AcceptanceCriteria: []canvas.Criterion{{ID: "AC-1", Description: "x"}},
	}
	history := []completion.Message{
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "hola, ¿en qué ayudo?"},
	}

	got := a.Analyze(context.Background(), "mmm", history, doc)
	if !got.Context.HasCanvas {
		t.Error("HasCanvas false with a document present")
	}
	if got.Context.ConversationLength != 2 {
		t.Errorf("ConversationLength = %d, want 2", got.Context.ConversationLength)
	}
	if got.Context.CanvasComplexity != canvas.ComplexitySimple {
		t.Errorf("CanvasComplexity = %q, want simple", got.Context.CanvasComplexity)
	}
	if len(got.Context.AvailableSections) != 1 || got.Context.AvailableSections[0] != canvas.SectionAcceptanceCriteria {
		t.Errorf("AvailableSections = %v, want [acceptance_criteria]", got.Context.AvailableSections)
	}
}

func TestAnalyze_HistoryIsBounded(t *testing.T) {
	stub := &stubPort{raw: json.RawMessage(
		`{"intent": "provide_information", "confidence": 0.8, "reasoning": "question"}`)}
	a := newAnalyzer(stub)

	history := make([]completion.Message, 12)
	for i := range history {
		history[i] = completion.Message{Role: "user", Content: "turn"}
	}
	a.Analyze(context.Background(), "¿qué es esto?", history, nil)
	if len(stub.captured.History) != 6 {
		t.Errorf("prompt carried %d history turns, want the most recent 6", len(stub.captured.History))
	}
}
