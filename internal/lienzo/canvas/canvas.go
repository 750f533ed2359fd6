// Package canvas defines the structured QA document under discussion in a
// conversation: a ticket summary, acceptance criteria, test cases, and
// configuration warnings, plus free-form metadata.
//
// The document is a read-only value object within this subsystem. The
// analyzers inspect it to steer classification and validation; they never
// mutate it; the actual regeneration of canvas content belongs to an
// external collaborator.
package canvas

import (
	"fmt"
	"strings"
)

// Section identifies one of the fixed canvas sections.
type Section string

const (
	SectionTicketSummary         Section = "ticket_summary"
	SectionAcceptanceCriteria    Section = "acceptance_criteria"
	SectionTestCases             Section = "test_cases"
	SectionConfigurationWarnings Section = "configuration_warnings"
	SectionMetadata              Section = "metadata"
)

// AllSections lists every canvas section in display order.
var AllSections = []Section{
	SectionTicketSummary,
	SectionAcceptanceCriteria,
	SectionTestCases,
	SectionConfigurationWarnings,
	SectionMetadata,
}

// displayNames maps sections to the human-readable terms used in generated
// questions and notifications.
var displayNames = map[Section]string{
	SectionTicketSummary:         "ticket summary",
	SectionAcceptanceCriteria:    "acceptance criteria",
	SectionTestCases:             "test cases",
	SectionConfigurationWarnings: "configuration warnings",
	SectionMetadata:              "metadata",
}

// DisplayName returns the human-readable term for the section, falling back
// to the raw identifier for unknown values.
func (s Section) DisplayName() string {
	if name, ok := displayNames[s]; ok {
		return name
	}
	return string(s)
}

// Valid reports whether s is one of the known canvas sections.
func (s Section) Valid() bool {
	_, ok := displayNames[s]
	return ok
}

// ParseSection converts a raw string (as produced by an LLM or an API
// caller) into a Section. It tolerates camelCase aliases such as
// "acceptanceCriteria" alongside the canonical snake_case identifiers.
func ParseSection(raw string) (Section, bool) {
	s := Section(raw)
	if s.Valid() {
		return s, true
	}
	switch strings.TrimSpace(raw) {
	case "ticketSummary":
		return SectionTicketSummary, true
	case "acceptanceCriteria":
		return SectionAcceptanceCriteria, true
	case "testCases":
		return SectionTestCases, true
	case "configurationWarnings":
		return SectionConfigurationWarnings, true
	case "metadata":
		return SectionMetadata, true
	}
	return "", false
}

// TicketSummary is the narrative head of the canvas.
type TicketSummary struct {
	Problem   string `json:"problem" yaml:"problem"`
	Objective string `json:"objective" yaml:"objective"`
	Scope     string `json:"scope" yaml:"scope"`
}

// Empty reports whether the summary carries no content at all.
func (t TicketSummary) Empty() bool {
	return strings.TrimSpace(t.Problem) == "" &&
		strings.TrimSpace(t.Objective) == "" &&
		strings.TrimSpace(t.Scope) == ""
}

// Criterion is a single acceptance criterion.
type Criterion struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// TestCase is a single test case, optionally linked to the criterion it
// verifies.
type TestCase struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Steps       []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Expected    string   `json:"expected,omitempty" yaml:"expected,omitempty"`
	CriterionID string   `json:"criterion_id,omitempty" yaml:"criterion_id,omitempty"`
}

// Warning is a configuration warning attached to the canvas.
type Warning struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// Document is the full canvas supplied by the caller on every turn.
type Document struct {
	TicketSummary         TicketSummary     `json:"ticket_summary" yaml:"ticket_summary"`
	AcceptanceCriteria    []Criterion       `json:"acceptance_criteria" yaml:"acceptance_criteria"`
	TestCases             []TestCase        `json:"test_cases" yaml:"test_cases"`
	ConfigurationWarnings []Warning         `json:"configuration_warnings,omitempty" yaml:"configuration_warnings,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SectionContent returns the literal text content of a section, used for
// citation validation and prompt construction. Metadata is rendered as
// key: value lines in no guaranteed order.
func (d *Document) SectionContent(s Section) string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	switch s {
	case SectionTicketSummary:
		sb.WriteString(d.TicketSummary.Problem)
		if d.TicketSummary.Objective != "" {
			sb.WriteString("\n")
			sb.WriteString(d.TicketSummary.Objective)
		}
		if d.TicketSummary.Scope != "" {
			sb.WriteString("\n")
			sb.WriteString(d.TicketSummary.Scope)
		}
	case SectionAcceptanceCriteria:
		for _, c := range d.AcceptanceCriteria {
			sb.WriteString(c.Description)
			sb.WriteString("\n")
		}
	case SectionTestCases:
		for _, tc := range d.TestCases {
			sb.WriteString(tc.Title)
			sb.WriteString("\n")
			for _, step := range tc.Steps {
				sb.WriteString(step)
				sb.WriteString("\n")
			}
			if tc.Expected != "" {
				sb.WriteString(tc.Expected)
				sb.WriteString("\n")
			}
		}
	case SectionConfigurationWarnings:
		for _, w := range d.ConfigurationWarnings {
			sb.WriteString(w.Message)
			sb.WriteString("\n")
		}
	case SectionMetadata:
		for k, v := range d.Metadata {
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Complexity buckets a document by total item count.
type Complexity string

const (
	ComplexityEmpty   Complexity = "empty"
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Summary is a compact per-section item count used to build prompts and to
// decide conflict-risk escalation without shipping the full document text.
type Summary struct {
	HasTicketSummary bool
	CriteriaCount    int
	TestCaseCount    int
	WarningCount     int
	MetadataCount    int
}

// Summarize counts the document's items per section. A nil document yields
// the zero Summary.
func Summarize(d *Document) Summary {
	if d == nil {
		return Summary{}
	}
	return Summary{
		HasTicketSummary: !d.TicketSummary.Empty(),
		CriteriaCount:    len(d.AcceptanceCriteria),
		TestCaseCount:    len(d.TestCases),
		WarningCount:     len(d.ConfigurationWarnings),
		MetadataCount:    len(d.Metadata),
	}
}

// TotalItems is the combined acceptance-criteria and test-case count, the
// quantity the complexity buckets and risk thresholds are defined over.
func (s Summary) TotalItems() int {
	return s.CriteriaCount + s.TestCaseCount
}

// Complexity buckets the summary: empty (no content anywhere), simple
// (≤4 items), medium (≤10), complex (>10).
func (s Summary) Complexity() Complexity {
	total := s.TotalItems()
	switch {
	case total == 0 && !s.HasTicketSummary && s.WarningCount == 0:
		return ComplexityEmpty
	case total <= 4:
		return ComplexitySimple
	case total <= 10:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}

// String renders the summary as a single prompt-friendly line, e.g.
// "summary: yes, criteria: 3, test cases: 5, warnings: 0 (medium)".
func (s Summary) String() string {
	has := "no"
	if s.HasTicketSummary {
		has = "yes"
	}
	return fmt.Sprintf("summary: %s, criteria: %d, test cases: %d, warnings: %d (%s)",
		has, s.CriteriaCount, s.TestCaseCount, s.WarningCount, s.Complexity())
}
