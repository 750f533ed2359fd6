package depend

import (
	"fmt"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
)

// HasCircularDependencies reports whether the directed edge set contains a
// cycle (a 2-cycle such as A→B→A, or longer). The static table itself
// contains the derives_from/validates pair between acceptance
// criteria and test cases, so callers usually run this over AI-produced
// edge sets to catch degenerate output.
func HasCircularDependencies(edges []Dependency) bool {
	adjacency := make(map[canvas.Section][]canvas.Section)
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[canvas.Section]int)

	var visit func(s canvas.Section) bool
	visit = func(s canvas.Section) bool {
		switch state[s] {
		case visiting:
			return true
		case done:
			return false
		}
		state[s] = visiting
		for _, next := range adjacency[s] {
			if visit(next) {
				return true
			}
		}
		state[s] = done
		return false
	}

	for s := range adjacency {
		if visit(s) {
			return true
		}
	}
	return false
}

// AutoResolvableConflicts returns the conflicts that can be fixed without
// user input.
func AutoResolvableConflicts(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.AutoResolvable {
			out = append(out, c)
		}
	}
	return out
}

// ManualResolutionConflicts returns the conflicts that need a human
// decision.
func ManualResolutionConflicts(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if !c.AutoResolvable {
			out = append(out, c)
		}
	}
	return out
}

// ChangeNotifications maps a validation result onto user-facing
// notifications: a non-dismissible error per critical conflict, a warning
// per major conflict, an info entry per warning string, and a single
// success entry when the document is valid and conflict-free.
func ChangeNotifications(result ValidationResult) []Notification {
	var out []Notification
	for _, c := range result.Conflicts {
		switch c.Severity {
		case SeverityCritical:
			out = append(out, Notification{
				Level:       "error",
				Message:     c.Description,
				Dismissible: false,
			})
		case SeverityMajor:
			out = append(out, Notification{
				Level:       "warning",
				Message:     c.Description,
				Dismissible: true,
			})
		}
	}
	for _, w := range result.Warnings {
		out = append(out, Notification{Level: "info", Message: w, Dismissible: true})
	}
	if result.IsValid && len(result.Conflicts) == 0 {
		out = append(out, Notification{
			Level:       "success",
			Message:     fmt.Sprintf("document sections are consistent (score %d)", result.Score),
			Dismissible: true,
		})
	}
	return out
}
