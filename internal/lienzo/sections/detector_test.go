package sections_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
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

func keywordDetector() *sections.Detector {
	return sections.New(lexicon.MustDefault(), nil)
}

func TestDetect_SpanishCriteriaPhrase(t *testing.T) {
	d := keywordDetector()

	got := d.Detect(context.Background(), "Los criterios de aceptación están mal definidos", nil)
	if len(got.Primary) != 1 || got.Primary[0] != canvas.SectionAcceptanceCriteria {
		t.Fatalf("primary = %v, want [acceptance_criteria]", got.Primary)
	}
	if got.Method != sections.MethodKeyword {
		t.Errorf("method = %q, want keyword", got.Method)
	}
}

func TestDetect_EnglishTestCasePhrase(t *testing.T) {
	d := keywordDetector()

	got := d.Detect(context.Background(), "add a test case for expired sessions", nil)
	if len(got.Primary) == 0 || got.Primary[0] != canvas.SectionTestCases {
		t.Fatalf("primary = %v, want test_cases first", got.Primary)
	}
}

func TestDetect_NoMatchesYieldsEmptyResult(t *testing.T) {
	d := keywordDetector()

	got := d.Detect(context.Background(), "hmm", nil)
	if len(got.Primary) != 0 || len(got.Secondary) != 0 {
		t.Errorf("got %v / %v targets for a matchless message", got.Primary, got.Secondary)
	}
}

func TestDetect_MetadataNeverSurvives(t *testing.T) {
	d := keywordDetector()

	got := d.Detect(context.Background(), "actualiza los metadatos", nil)
	for _, s := range got.AllTargets() {
		if s == canvas.SectionMetadata {
			t.Fatal("metadata returned as a target")
		}
	}
}

func TestDetect_WarningsRequireDocumentEvidence(t *testing.T) {
	d := keywordDetector()
	message := "revisa las advertencias de configuración"

	bare := d.Detect(context.Background(), message, nil)
	for _, s := range bare.AllTargets() {
		if s == canvas.SectionConfigurationWarnings {
			t.Fatal("configuration_warnings returned without any warnings in the document")
		}
	}

	doc := &canvas.Document{ConfigurationWarnings: []canvas.Warning{{Code: "CFG-1", Message: "stale cert"}}}
	withDoc := d.Detect(context.Background(), message, doc)
	found := false
	for _, s := range withDoc.AllTargets() {
		if s == canvas.SectionConfigurationWarnings {
			found = true
		}
	}
	if !found {
		t.Error("configuration_warnings dropped although the document has warnings")
	}
}

func TestDetect_AIRefinementOnLongMessage(t *testing.T) {
	stub := &stubPort{raw: json.RawMessage(`{"primary": ["testCases"], "secondary": ["acceptance_criteria"]}`)}
	d := sections.New(lexicon.MustDefault(), stub)

	long := strings.Repeat("necesito que revises esto con cuidado ", 4) + "en las pruebas"
	got := d.Detect(context.Background(), long, nil)
	if stub.calls != 1 {
		t.Fatalf("AI pass called %d times, want 1", stub.calls)
	}
	if len(got.Primary) != 1 || got.Primary[0] != canvas.SectionTestCases {
		t.Errorf("primary = %v, want [test_cases]", got.Primary)
	}
	if len(got.Secondary) != 1 || got.Secondary[0] != canvas.SectionAcceptanceCriteria {
		t.Errorf("secondary = %v, want [acceptance_criteria]", got.Secondary)
	}
	if got.Method != sections.MethodHybrid {
		t.Errorf("method = %q, want hybrid when keyword scores existed", got.Method)
	}
}

func TestDetect_AIFailureKeepsKeywordResult(t *testing.T) {
	stub := &stubPort{err: errors.New("upstream down")}
	d := sections.New(lexicon.MustDefault(), stub)

	long := strings.Repeat("los criterios de aceptación deben cubrir más casos de prueba ", 3)
	got := d.Detect(context.Background(), long, nil)
	if len(got.Primary) == 0 {
		t.Fatal("keyword result lost after AI failure")
	}
	if got.Method != sections.MethodKeyword {
		t.Errorf("method = %q, want keyword", got.Method)
	}
}

func TestDetect_CapsPrimaryTargets(t *testing.T) {
	stub := &stubPort{raw: json.RawMessage(
		`{"primary": ["ticket_summary", "acceptance_criteria", "test_cases", "configuration_warnings", "metadata"]}`)}
	d := sections.New(lexicon.MustDefault(), stub)

	long := strings.Repeat("revisa todo el documento completo por favor ", 4)
	got := d.Detect(context.Background(), long, nil)
	if len(got.Primary) > sections.MaxPrimaryTargets {
		t.Errorf("%d primary targets, cap is %d", len(got.Primary), sections.MaxPrimaryTargets)
	}
}

func TestValidateSections_Filters(t *testing.T) {
	targets := []canvas.Section{
		canvas.SectionAcceptanceCriteria,
		canvas.SectionMetadata,
		canvas.SectionConfigurationWarnings,
	}
	got := sections.ValidateSections(targets, nil)
	if len(got) != 1 || got[0] != canvas.SectionAcceptanceCriteria {
		t.Errorf("ValidateSections = %v, want [acceptance_criteria]", got)
	}
}
