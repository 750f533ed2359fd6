package canvas_test

import (
	"strings"
	"testing"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
)

func sampleDocument() *canvas.Document {
	return &canvas.Document{
		TicketSummary: canvas.TicketSummary{
			Problem:   "Login fails for SSO users",
			Objective: "Restore SSO login",
			Scope:     "Auth service only",
		},
		AcceptanceCriteria: []canvas.Criterion{
			{ID: "AC-1", Description: "SSO users can log in"},
			{ID: "AC-2", Description: "Session persists for 8 hours"},
		},
		TestCases: []canvas.TestCase{
			{ID: "TC-1", Title: "SSO happy path", Steps: []string{"open login", "click SSO"}, Expected: "user is logged in", CriterionID: "AC-1"},
		},
		ConfigurationWarnings: []canvas.Warning{
			{Code: "CFG-1", Message: "IDP certificate expires soon"},
		},
		Metadata: map[string]string{"team": "auth"},
	}
}

func TestParseSection_CanonicalAndCamelCase(t *testing.T) {
	cases := map[string]canvas.Section{
		"acceptance_criteria":   canvas.SectionAcceptanceCriteria,
		"acceptanceCriteria":    canvas.SectionAcceptanceCriteria,
		"test_cases":            canvas.SectionTestCases,
		"testCases":             canvas.SectionTestCases,
		"ticket_summary":        canvas.SectionTicketSummary,
		"ticketSummary":         canvas.SectionTicketSummary,
		"configurationWarnings": canvas.SectionConfigurationWarnings,
		"metadata":              canvas.SectionMetadata,
	}
	for raw, want := range cases {
		got, ok := canvas.ParseSection(raw)
		if !ok || got != want {
			t.Errorf("ParseSection(%q) = (%q, %v), want (%q, true)", raw, got, ok, want)
		}
	}

	if _, ok := canvas.ParseSection("release_notes"); ok {
		t.Error("ParseSection accepted an unknown section name")
	}
}

func TestSectionContent_CoversEverySection(t *testing.T) {
	doc := sampleDocument()

	if got := doc.SectionContent(canvas.SectionTicketSummary); !strings.Contains(got, "Restore SSO login") {
		t.Errorf("ticket summary content missing objective: %q", got)
	}
	if got := doc.SectionContent(canvas.SectionAcceptanceCriteria); !strings.Contains(got, "Session persists for 8 hours") {
		t.Errorf("criteria content missing description: %q", got)
	}
	if got := doc.SectionContent(canvas.SectionTestCases); !strings.Contains(got, "user is logged in") {
		t.Errorf("test case content missing expected outcome: %q", got)
	}
	if got := doc.SectionContent(canvas.SectionConfigurationWarnings); !strings.Contains(got, "IDP certificate") {
		t.Errorf("warnings content missing message: %q", got)
	}
	if got := doc.SectionContent(canvas.SectionMetadata); !strings.Contains(got, "team: auth") {
		t.Errorf("metadata content missing pair: %q", got)
	}
}

func TestSectionContent_NilDocument(t *testing.T) {
	var doc *canvas.Document
	if got := doc.SectionContent(canvas.SectionTestCases); got != "" {
		t.Errorf("nil document produced content %q", got)
	}
}

func TestSummarize_NilDocument(t *testing.T) {
	s := canvas.Summarize(nil)
	if s.HasTicketSummary || s.TotalItems() != 0 {
		t.Errorf("nil document summary is not empty: %+v", s)
	}
	if got := s.Complexity(); got != canvas.ComplexityEmpty {
		t.Errorf("nil document complexity = %q, want empty", got)
	}
}

func TestComplexity_Buckets(t *testing.T) {
	cases := []struct {
		criteria, tests int
		want            canvas.Complexity
	}{
		{0, 0, canvas.ComplexityEmpty},
		{2, 2, canvas.ComplexitySimple},
		{4, 0, canvas.ComplexitySimple},
		{5, 0, canvas.ComplexityMedium},
		{4, 6, canvas.ComplexityMedium},
		{5, 6, canvas.ComplexityComplex},
		{10, 10, canvas.ComplexityComplex},
	}
	for _, tc := range cases {
		s := canvas.Summary{CriteriaCount: tc.criteria, TestCaseCount: tc.tests}
		if got := s.Complexity(); got != tc.want {
			t.Errorf("Complexity(%d criteria, %d tests) = %q, want %q",
				tc.criteria, tc.tests, got, tc.want)
		}
	}
}

func TestComplexity_TicketSummaryAloneIsSimple(t *testing.T) {
	s := canvas.Summary{HasTicketSummary: true}
	if got := s.Complexity(); got != canvas.ComplexitySimple {
		t.Errorf("summary-only document complexity = %q, want simple", got)
	}
}

func TestSummaryString_NamesEveryCount(t *testing.T) {
	got := canvas.Summarize(sampleDocument()).String()
	for _, want := range []string{"summary: yes", "criteria: 2", "test cases: 1", "warnings: 1", "simple"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary.String() = %q, missing %q", got, want)
		}
	}
}
