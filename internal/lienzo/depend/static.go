package depend

import "github.com/pcastillo/lienzo/internal/lienzo/canvas"

// staticDependencies seeds the known cross-section relationships. AI
// analysis may add or override edges per request; this table is the
// deterministic floor the analyzer never goes below.
var staticDependencies = []Dependency{
	{
		From:         canvas.SectionTicketSummary,
		To:           canvas.SectionAcceptanceCriteria,
		Relationship: RelDerivesFrom,
		Strength:     StrengthStrong,
		Description:  "acceptance criteria are derived from the ticket's problem and objective",
	},
	{
		From:         canvas.SectionAcceptanceCriteria,
		To:           canvas.SectionTestCases,
		Relationship: RelDerivesFrom,
		Strength:     StrengthStrong,
		Description:  "each test case implements at least one acceptance criterion",
	},
	{
		From:         canvas.SectionTestCases,
		To:           canvas.SectionAcceptanceCriteria,
		Relationship: RelValidates,
		Strength:     StrengthMedium,
		Description:  "test cases validate that the acceptance criteria are verifiable",
	},
	{
		From:         canvas.SectionTicketSummary,
		To:           canvas.SectionTestCases,
		Relationship: RelReferences,
		Strength:     StrengthWeak,
		Description:  "test cases reference the scope declared in the ticket summary",
	},
	{
		From:         canvas.SectionConfigurationWarnings,
		To:           canvas.SectionTestCases,
		Relationship: RelReferences,
		Strength:     StrengthWeak,
		Description:  "configuration warnings may constrain test environments",
	},
}

// StaticDependencies returns a copy of the seeded relationship table.
func StaticDependencies() []Dependency {
	out := make([]Dependency, len(staticDependencies))
	copy(out, staticDependencies)
	return out
}

// staticEdgesFrom returns the seeded edges whose From is in targets.
func staticEdgesFrom(targets []canvas.Section) []Dependency {
	targetSet := sectionSet(targets)
	var out []Dependency
	for _, d := range staticDependencies {
		if targetSet[d.From] {
			out = append(out, d)
		}
	}
	return out
}

// DependentSections returns the sections that depend on s (edges s → x) in
// the static table.
func DependentSections(s canvas.Section) []canvas.Section {
	var out []canvas.Section
	for _, d := range staticDependencies {
		if d.From == s {
			out = append(out, d.To)
		}
	}
	return out
}

// DependencySources returns the sections s depends on (edges x → s) in the
// static table.
func DependencySources(s canvas.Section) []canvas.Section {
	var out []canvas.Section
	for _, d := range staticDependencies {
		if d.To == s {
			out = append(out, d.From)
		}
	}
	return out
}

func sectionSet(sections []canvas.Section) map[canvas.Section]bool {
	set := make(map[canvas.Section]bool, len(sections))
	for _, s := range sections {
		set[s] = true
	}
	return set
}
