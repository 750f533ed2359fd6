package completion

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the maximum number of classification calls
	// allowed per session per window when no explicit limit is configured.
	DefaultRateLimit = 30

	// defaultRateWindow is the sliding-window duration.
	defaultRateWindow = time.Minute

	// DefaultTokenBudget is the maximum estimated tokens per session per
	// UTC day when no explicit budget is configured.
	DefaultTokenBudget = 100_000
)

// RateLimiter enforces a per-session sliding-window limit on model calls.
// Call timestamps are pruned on every Allow, keeping memory bounded to
// O(limit) entries per active session. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	callers map[string][]time.Time
}

// NewRateLimiter returns a RateLimiter allowing at most limit calls per
// session within window. Non-positive arguments take the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		callers: make(map[string][]time.Time),
	}
}

// Allow reports whether the session may make another model call, recording
// the call timestamp when it may.
func (r *RateLimiter) Allow(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	existing := r.callers[sessionID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.limit {
		r.callers[sessionID] = valid
		return false
	}
	r.callers[sessionID] = append(valid, now)
	return true
}

// Remaining returns how many calls the session can still make within the
// current window.
func (r *RateLimiter) Remaining(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	count := 0
	for _, t := range r.callers[sessionID] {
		if t.After(cutoff) {
			count++
		}
	}
	if rem := r.limit - count; rem > 0 {
		return rem
	}
	return 0
}

// TokenBudget enforces a per-session daily budget of estimated model
// tokens. Counters reset at midnight UTC. Callers check Allow before a
// model call and RecordUsage after a successful one. Safe for concurrent
// use.
type TokenBudget struct {
	mu     sync.Mutex
	budget int
	now    func() time.Time
	usage  map[string]*dailyUsage
}

type dailyUsage struct {
	tokens  int
	resetAt time.Time
}

// NewTokenBudget returns a TokenBudget allowing at most dailyBudget tokens
// per session per UTC day. Non-positive budgets take DefaultTokenBudget.
func NewTokenBudget(dailyBudget int) *TokenBudget {
	if dailyBudget <= 0 {
		dailyBudget = DefaultTokenBudget
	}
	return &TokenBudget{
		budget: dailyBudget,
		now:    time.Now,
		usage:  make(map[string]*dailyUsage),
	}
}

// Allow reports whether the session still has budget today. It does not
// consume tokens.
func (tb *TokenBudget) Allow(sessionID string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.rollover(sessionID)
	u := tb.usage[sessionID]
	return u == nil || u.tokens < tb.budget
}

// RecordUsage adds tokens to the session's running daily total.
func (tb *TokenBudget) RecordUsage(sessionID string, tokens int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.rollover(sessionID)
	u := tb.usage[sessionID]
	if u == nil {
		u = &dailyUsage{resetAt: nextMidnightUTC(tb.now())}
		tb.usage[sessionID] = u
	}
	u.tokens += tokens
}

// Remaining returns the tokens the session may still consume today.
func (tb *TokenBudget) Remaining(sessionID string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.rollover(sessionID)
	u := tb.usage[sessionID]
	if u == nil {
		return tb.budget
	}
	if rem := tb.budget - u.tokens; rem > 0 {
		return rem
	}
	return 0
}

// rollover discards the session's counter once its reset time has passed.
// Must be called with mu held.
func (tb *TokenBudget) rollover(sessionID string) {
	u := tb.usage[sessionID]
	if u != nil && !tb.now().Before(u.resetAt) {
		delete(tb.usage, sessionID)
	}
}

func nextMidnightUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// EstimateTokens returns a rough token count for a prompt string, ~4
// characters per token. The budget is a soft cost ceiling, not an exact
// accounting.
func EstimateTokens(text string) int {
	const charsPerToken = 4
	return len(text)/charsPerToken + 4
}
