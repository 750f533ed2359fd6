// Package depend analyzes cross-section dependencies of the QA canvas:
// which sections a proposed change would drag along, and which
// inconsistencies the current document already carries.
//
// Analysis starts from a static relationship table and is optionally
// refined by the AI completion capability; validation is deterministic
// structural checking first, AI semantic conflict detection second. Every
// AI failure degrades to the static result.
package depend

import "github.com/pcastillo/lienzo/internal/lienzo/canvas"

// Relationship describes how one section relates to another.
type Relationship string

const (
	RelDerivesFrom Relationship = "derives_from"
	RelValidates   Relationship = "validates"
	RelImplements  Relationship = "implements"
	RelReferences  Relationship = "references"
)

// Strength grades a dependency edge.
type Strength string

const (
	StrengthStrong Strength = "strong"
	StrengthMedium Strength = "medium"
	StrengthWeak   Strength = "weak"
)

// Dependency is one directed edge between canvas sections. Edges have no
// persistent identity; the set is recomputed per request from the static
// table plus any AI additions.
type Dependency struct {
	From         canvas.Section `json:"from"`
	To           canvas.Section `json:"to"`
	Relationship Relationship   `json:"relationship"`
	Strength     Strength       `json:"strength"`
	Description  string         `json:"description"`
}

// Risk grades the likelihood that a change causes cross-section conflicts.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// AnalysisResult is the outcome of AnalyzeDependencies.
//
// Invariant: AffectedSections is a superset of the requested target
// sections plus every To endpoint of Dependencies.
type AnalysisResult struct {
	AffectedSections []canvas.Section  `json:"affected_sections"`
	Dependencies     []Dependency      `json:"dependencies"`
	CascadeRequired  bool              `json:"cascade_required"`
	ImpactAssessment string            `json:"impact_assessment"`
	ConflictRisk     Risk              `json:"conflict_risk"`
	Validation       *ValidationResult `json:"validation,omitempty"`
}

// ConflictType classifies a detected inconsistency.
type ConflictType string

const (
	ConflictMissingDependency   ConflictType = "missing_dependency"
	ConflictOrphanedContent     ConflictType = "orphaned_content"
	ConflictInconsistentContent ConflictType = "inconsistent_content"
	ConflictVersionMismatch     ConflictType = "version_mismatch"
)

// Severity grades a conflict.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Conflict is one detected inconsistency between canvas sections.
type Conflict struct {
	Type                ConflictType     `json:"type"`
	Severity            Severity         `json:"severity"`
	AffectedSections    []canvas.Section `json:"affected_sections"`
	Description         string           `json:"description"`
	CurrentState        string           `json:"current_state"`
	ExpectedState       string           `json:"expected_state"`
	SuggestedResolution string           `json:"suggested_resolution"`
	AutoResolvable      bool             `json:"auto_resolvable"`
}

// Suggestion is a concrete resolution step surfaced to the user.
type Suggestion struct {
	ConflictType  ConflictType   `json:"conflict_type"`
	TargetSection canvas.Section `json:"target_section"`
	Action        string         `json:"action"`
}

// ValidationResult is the outcome of ValidateDependencies. Score is within
// [0,100]: the unweighted average of the deterministic static score and
// the AI-reported score, or the static score alone when the AI call fails.
type ValidationResult struct {
	IsValid     bool         `json:"is_valid"`
	Conflicts   []Conflict   `json:"conflicts"`
	Warnings    []string     `json:"warnings"`
	Suggestions []Suggestion `json:"suggestions"`
	Score       int          `json:"validation_score"`
}

// Notification is a user-facing rendering of a validation outcome.
type Notification struct {
	Level       string `json:"level"` // "error", "warning", "info", "success"
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}
