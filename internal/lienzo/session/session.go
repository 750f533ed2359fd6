// Package session owns per-conversation state: the current phase, pending
// clarification questions, the last classified intent, and a bounded
// history of turns. State lives in memory for the lifetime of the process
// and is swept after a period of inactivity; there is no durable
// persistence.
package session

import (
	"time"

	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/clarify"
	"github.com/pcastillo/lienzo/internal/lienzo/intent"
)

// Question aliases the clarification question type so callers of the
// state API do not need a separate import for it.
type Question = clarify.Question

// Phase is the conversation's position in its lifecycle.
type Phase string

const (
	PhaseInitial                Phase = "initial"
	PhaseAwaitingClarification  Phase = "awaiting_clarification"
	PhaseProcessingModification Phase = "processing_modification"
	PhaseProvidingInformation   Phase = "providing_information"
	PhaseCompleted              Phase = "completed"
)

// Bounds on per-session collections. Oldest entries are dropped first.
const (
	MaxPendingClarifications = 5
	MaxContextHistory        = 20
)

// DefaultTTL is the inactivity window after which a session is swept.
const DefaultTTL = 30 * time.Minute

// Snapshot is one recorded turn: what the user said, what the system
// answered, and the classification that connected them.
type Snapshot struct {
	Timestamp      time.Time
	CanvasState    canvas.Summary
	UserMessage    string
	SystemResponse string
	Intent         intent.Type
	Confidence     float64
}

// State is the full record for one session. It is owned exclusively by
// the Manager; callers receive copies and mutate only through the
// Manager's update API.
type State struct {
	SessionID             string
	Phase                 Phase
	PendingClarifications []clarify.Question
	LastIntent            intent.Result
	ContextHistory        []Snapshot
	AwaitingResponse      bool
	CreatedAt             time.Time
	LastActivity          time.Time
}

// Update carries the partial fields merged into a State by UpdateState.
// Nil pointers leave the corresponding field untouched.
type Update struct {
	Phase            *Phase
	LastIntent       *intent.Result
	AwaitingResponse *bool
}

// PhaseOf is a convenience for building Update literals.
func PhaseOf(p Phase) *Phase { return &p }

// BoolOf is a convenience for building Update literals.
func BoolOf(b bool) *bool { return &b }
