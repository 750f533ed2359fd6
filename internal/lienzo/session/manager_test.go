package session_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/pcastillo/lienzo/internal/lienzo/intent"
	"github.com/pcastillo/lienzo/internal/lienzo/session"
)

// fakeClock is a controllable time source for TTL tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeManager() (*session.Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	return session.NewManager(session.Config{Now: clock.now}), clock
}

func TestInitializeSession(t *testing.T) {
	m, clock := newFakeManager()

	state := m.InitializeSession("s-1")
	if state.Phase != session.PhaseInitial {
		t.Errorf("phase = %q, want initial", state.Phase)
	}
	if state.LastIntent.Intent != intent.TypeProvideInformation {
		t.Errorf("initial last intent = %q", state.LastIntent.Intent)
	}
	if !state.CreatedAt.Equal(clock.t) || !state.LastActivity.Equal(clock.t) {
		t.Error("timestamps not taken from the injected clock")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestGetState_ReturnsCopies(t *testing.T) {
	m, _ := newFakeManager()
	m.InitializeSession("s-1")
	m.AddPendingClarifications("s-1", []session.Question{{Question: "which criterion?"}})

	first := m.GetState("s-1")
	first.Phase = session.PhaseCompleted
	first.PendingClarifications[0].Question = "mutated"

	second := m.GetState("s-1")
	if second.Phase != session.PhaseAwaitingClarification {
		t.Errorf("stored phase changed through a returned copy: %q", second.Phase)
	}
	if second.PendingClarifications[0].Question != "which criterion?" {
		t.Error("stored clarifications changed through a returned copy")
	}
}

func TestGetState_UnknownSession(t *testing.T) {
	m, _ := newFakeManager()
	if got := m.GetState("nope"); got != nil {
		t.Errorf("GetState(unknown) = %+v, want nil", got)
	}
}

func TestUpdateState(t *testing.T) {
	m, clock := newFakeManager()
	m.InitializeSession("s-1")
	clock.advance(time.Minute)

	res := intent.Result{Intent: intent.TypeModifyCanvas, Confidence: 0.8}
	state := m.UpdateState("s-1", session.Update{
		Phase:      session.PhaseOf(session.PhaseProcessingModification),
		LastIntent: &res,
	})
	if state.Phase != session.PhaseProcessingModification {
		t.Errorf("phase = %q", state.Phase)
	}
	if state.LastIntent.Intent != intent.TypeModifyCanvas {
		t.Errorf("last intent = %q", state.LastIntent.Intent)
	}
	if !state.LastActivity.Equal(clock.t) {
		t.Error("activity not restamped on update")
	}

	if got := m.UpdateState("nope", session.Update{}); got != nil {
		t.Errorf("UpdateState(unknown) = %+v, want nil", got)
	}
}

func TestUpdateState_AwaitingFlagFollowsPhase(t *testing.T) {
	m, _ := newFakeManager()
	m.InitializeSession("s-1")

	state := m.UpdateState("s-1", session.Update{Phase: session.PhaseOf(session.PhaseAwaitingClarification)})
	if !state.AwaitingResponse {
		t.Error("entering awaiting_clarification did not set the awaiting flag")
	}

	state = m.UpdateState("s-1", session.Update{Phase: session.PhaseOf(session.PhaseProvidingInformation)})
	if state.AwaitingResponse {
		t.Error("leaving awaiting_clarification did not clear the awaiting flag")
	}

	// An explicit flag in the update wins over the phase default.
	state = m.UpdateState("s-1", session.Update{
		Phase:            session.PhaseOf(session.PhaseProvidingInformation),
		AwaitingResponse: session.BoolOf(true),
	})
	if !state.AwaitingResponse {
		t.Error("explicit awaiting flag overridden by phase default")
	}
}

func TestUpdateState_CompletedSessionCanReopen(t *testing.T) {
	m, _ := newFakeManager()
	m.InitializeSession("s-1")
	m.EndSession("s-1")

	state := m.UpdateState("s-1", session.Update{Phase: session.PhaseOf(session.PhaseProcessingModification)})
	if state == nil || state.Phase != session.PhaseProcessingModification {
		t.Fatalf("completed session refused a new turn: %+v", state)
	}
}

func TestAddPendingClarifications_DropsOldest(t *testing.T) {
	m, _ := newFakeManager()
	m.InitializeSession("s-1")

	var questions []session.Question
	for i := 0; i < session.MaxPendingClarifications+2; i++ {
		questions = append(questions, session.Question{Question: fmt.Sprintf("question %d?", i)})
	}
	if !m.AddPendingClarifications("s-1", questions) {
		t.Fatal("AddPendingClarifications returned false for a live session")
	}

	state := m.GetState("s-1")
	if len(state.PendingClarifications) != session.MaxPendingClarifications {
		t.Fatalf("pending = %d, want %d", len(state.PendingClarifications), session.MaxPendingClarifications)
	}
	if state.PendingClarifications[0].Question != "question 2?" {
		t.Errorf("oldest surviving question = %q, want the two oldest dropped", state.PendingClarifications[0].Question)
	}
	if state.Phase != session.PhaseAwaitingClarification || !state.AwaitingResponse {
		t.Error("adding clarifications did not force the awaiting phase")
	}

	if m.AddPendingClarifications("nope", questions) {
		t.Error("AddPendingClarifications(unknown) = true")
	}
}

func TestClearPendingClarifications(t *testing.T) {
	m, _ := newFakeManager()
	m.InitializeSession("s-1")
	m.AddPendingClarifications("s-1", []session.Question{{Question: "which one?"}})

	if !m.ClearPendingClarifications("s-1") {
		t.Fatal("ClearPendingClarifications returned false for a live session")
	}
	state := m.GetState("s-1")
	if len(state.PendingClarifications) != 0 || state.AwaitingResponse {
		t.Errorf("pending = %d awaiting = %v after clear", len(state.PendingClarifications), state.AwaitingResponse)
	}
}

func TestAddContextSnapshot_BoundedHistory(t *testing.T) {
	m, clock := newFakeManager()
	m.InitializeSession("s-1")

	for i := 0; i < session.MaxContextHistory+5; i++ {
		ok := m.AddContextSnapshot("s-1", session.Snapshot{
			Timestamp:   clock.t,
			UserMessage: fmt.Sprintf("turn %d", i),
		})
		if !ok {
			t.Fatalf("AddContextSnapshot failed at turn %d", i)
		}
		clock.advance(time.Second)
	}

	state := m.GetState("s-1")
	if len(state.ContextHistory) != session.MaxContextHistory {
		t.Fatalf("history = %d, want %d", len(state.ContextHistory), session.MaxContextHistory)
	}
	if state.ContextHistory[0].UserMessage != "turn 5" {
		t.Errorf("oldest surviving snapshot = %q", state.ContextHistory[0].UserMessage)
	}
	last := state.ContextHistory[len(state.ContextHistory)-1]
	if last.UserMessage != fmt.Sprintf("turn %d", session.MaxContextHistory+4) {
		t.Errorf("newest snapshot = %q", last.UserMessage)
	}
}

func TestEndSession(t *testing.T) {
	m, _ := newFakeManager()
	m.InitializeSession("s-1")
	m.AddPendingClarifications("s-1", []session.Question{{Question: "still open?"}})

	if !m.EndSession("s-1") {
		t.Fatal("EndSession returned false for a live session")
	}
	state := m.GetState("s-1")
	if state == nil {
		t.Fatal("ended session already gone before the sweep")
	}
	if state.Phase != session.PhaseCompleted || state.AwaitingResponse {
		t.Errorf("phase = %q awaiting = %v", state.Phase, state.AwaitingResponse)
	}

	if m.EndSession("nope") {
		t.Error("EndSession(unknown) = true")
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	m := session.NewManager(session.Config{TTL: 30 * time.Minute, Now: clock.now})

	m.InitializeSession("stale")
	clock.advance(20 * time.Minute)
	m.InitializeSession("fresh")

	clock.advance(11 * time.Minute)
	if removed := m.CleanupExpiredSessions(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if m.GetState("stale") != nil {
		t.Error("stale session survived the sweep")
	}
	if m.GetState("fresh") == nil {
		t.Error("fresh session swept at 11 minutes of inactivity")
	}

	// Activity resets the clock.
	m.UpdateState("fresh", session.Update{})
	clock.advance(29 * time.Minute)
	if removed := m.CleanupExpiredSessions(); removed != 0 {
		t.Errorf("removed = %d after recent activity, want 0", removed)
	}
	clock.advance(2 * time.Minute)
	if removed := m.CleanupExpiredSessions(); removed != 1 {
		t.Errorf("removed = %d at 31 minutes of inactivity, want 1", removed)
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	a, b := session.NewSessionID(), session.NewSessionID()
	if a == "" || a == b {
		t.Errorf("NewSessionID produced %q and %q", a, b)
	}
}
