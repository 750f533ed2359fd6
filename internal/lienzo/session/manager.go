package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pcastillo/lienzo/internal/lienzo/intent"
)

// Config holds Manager configuration.
type Config struct {
	// TTL is the inactivity window after which CleanupExpiredSessions
	// removes a session. Default: 30 minutes.
	TTL time.Duration

	// Now is the clock used for activity stamps and expiry decisions.
	// Defaults to time.Now; tests inject a fake.
	Now func() time.Time
}

// Manager is the conversation state store. It is safe for concurrent use;
// concurrent turns for the same session are not ordered beyond last-write-
// wins, which matches the single-writer-per-session assumption upstream.
type Manager struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*State
}

// NewManager creates an empty Manager.
func NewManager(cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		ttl:      cfg.TTL,
		now:      cfg.Now,
		sessions: make(map[string]*State),
	}
}

// NewSessionID generates an opaque session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// InitializeSession creates a record for id in phase initial with a
// neutral last intent. An existing record for the same id is replaced.
func (m *Manager) InitializeSession(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	state := &State{
		SessionID: id,
		Phase:     PhaseInitial,
		LastIntent: intent.Result{
			Intent:     intent.TypeProvideInformation,
			Confidence: 0.2,
			Reasoning:  "session initialized, no turns processed yet",
		},
		CreatedAt:    now,
		LastActivity: now,
	}
	m.sessions[id] = state
	return snapshotState(state)
}

// GetState returns a copy of the session's state, or nil if the session
// is unknown (never created, ended and swept, or expired).
func (m *Manager) GetState(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.sessions[id]
	if state == nil {
		return nil
	}
	return snapshotState(state)
}

// UpdateState merges the partial update into the session and stamps its
// activity time. Returns the updated copy, or nil when the session is
// unknown; callers treat that as a no-op, not an error.
//
// Phase transitions are unrestricted: any phase may move to
// any other. A transition table would reject real flows (a completed
// session reopened by a new turn), so the manager validates existence
// only.
func (m *Manager) UpdateState(id string, update Update) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.sessions[id]
	if state == nil {
		return nil
	}

	if update.Phase != nil {
		state.Phase = *update.Phase
		// Entering clarification always awaits the user; leaving it stops
		// waiting unless the update says otherwise.
		if *update.Phase == PhaseAwaitingClarification {
			state.AwaitingResponse = true
		} else if update.AwaitingResponse == nil {
			state.AwaitingResponse = false
		}
	}
	if update.AwaitingResponse != nil {
		state.AwaitingResponse = *update.AwaitingResponse
	}
	if update.LastIntent != nil {
		state.LastIntent = *update.LastIntent
	}
	state.LastActivity = m.now()
	return snapshotState(state)
}

// AddPendingClarifications appends questions, keeps the most recent
// MaxPendingClarifications (oldest dropped first), and forces the session
// into awaiting_clarification. Returns false when the session is unknown.
func (m *Manager) AddPendingClarifications(id string, questions []Question) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.sessions[id]
	if state == nil {
		return false
	}

	state.PendingClarifications = append(state.PendingClarifications, questions...)
	if excess := len(state.PendingClarifications) - MaxPendingClarifications; excess > 0 {
		state.PendingClarifications = state.PendingClarifications[excess:]
	}
	state.Phase = PhaseAwaitingClarification
	state.AwaitingResponse = true
	state.LastActivity = m.now()
	return true
}

// ClearPendingClarifications empties the question list and clears the
// awaiting flag. Returns false when the session is unknown.
func (m *Manager) ClearPendingClarifications(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.sessions[id]
	if state == nil {
		return false
	}
	state.PendingClarifications = nil
	state.AwaitingResponse = false
	state.LastActivity = m.now()
	return true
}

// AddContextSnapshot appends a turn record, keeping the most recent
// MaxContextHistory entries. Returns false when the session is unknown.
func (m *Manager) AddContextSnapshot(id string, snap Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.sessions[id]
	if state == nil {
		return false
	}
	state.ContextHistory = append(state.ContextHistory, snap)
	if excess := len(state.ContextHistory) - MaxContextHistory; excess > 0 {
		state.ContextHistory = state.ContextHistory[excess:]
	}
	state.LastActivity = m.now()
	return true
}

// EndSession forces the session into the terminal completed phase and
// clears the awaiting flag. The record remains queryable until the expiry
// sweep removes it. Returns false when the session is unknown.
func (m *Manager) EndSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.sessions[id]
	if state == nil {
		return false
	}
	state.Phase = PhaseCompleted
	state.AwaitingResponse = false
	state.LastActivity = m.now()
	return true
}

// CleanupExpiredSessions removes every session whose last activity is
// older than the TTL and returns how many were removed. It is driven by a
// periodic ticker owned by the process, not by request handling, and is
// safe to run concurrently with live traffic.
func (m *Manager) CleanupExpiredSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, state := range m.sessions {
		if state.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("session: expired sessions removed", "count", removed)
	}
	return removed
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// snapshotState deep-copies a State so callers cannot mutate the stored
// record.
func snapshotState(s *State) *State {
	cp := *s
	cp.PendingClarifications = append([]Question(nil), s.PendingClarifications...)
	cp.ContextHistory = append([]Snapshot(nil), s.ContextHistory...)
	return &cp
}
