// Package orchestrator composes the analyzers into the per-turn decision
// pipeline: classify the message under a timeout, dispatch to the matching
// handler, update conversation state, and hand back one normalized
// response for the transport layer to format.
package orchestrator

import (
	"context"
	"time"

	"log/slog"

	"github.com/pcastillo/lienzo/common/trace"
	"github.com/pcastillo/lienzo/internal/lienzo/answer"
	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/clarify"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/depend"
	"github.com/pcastillo/lienzo/internal/lienzo/intent"
	"github.com/pcastillo/lienzo/internal/lienzo/offtopic"
	"github.com/pcastillo/lienzo/internal/lienzo/session"
)

// ResponseType labels the five normalized decision outcomes.
type ResponseType string

const (
	TypeClarification ResponseType = "clarification"
	TypeInformation   ResponseType = "information"
	TypeRejection     ResponseType = "rejection"
	TypeModification  ResponseType = "modification"
	TypeFallback      ResponseType = "fallback"
)

// timeoutConfidence is reported when intent classification exceeds its
// deadline and the turn is downgraded to a clarification.
const timeoutConfidence = 0.3

// Request is one incoming conversation turn.
type Request struct {
	// SessionID identifies the conversation; empty means a new session.
	SessionID string
	// Messages is the conversation so far, oldest first, including the
	// latest user message.
	Messages []completion.Message
	// Document is the current canvas; may be nil.
	Document *canvas.Document
	// OriginalTicket is the raw ticket text the canvas was built from;
	// optional, used only for informational answers.
	OriginalTicket string
}

// Metadata rides along on every response.
type Metadata struct {
	ProcessingTime time.Duration `json:"processing_time_ms"`
	RequestID      string        `json:"request_id"`
	Timestamp      time.Time     `json:"timestamp"`
}

// FallbackData explains a fallback response.
type FallbackData struct {
	FallbackReason string `json:"fallback_reason"`
}

// Response is the normalized decision for one turn. Data holds the
// type-specific payload: *depend.AnalysisResult for modification,
// clarify.Set for clarification, answer.Response for information,
// offtopic.Rejection for rejection, FallbackData for fallback.
type Response struct {
	Type           ResponseType     `json:"type"`
	Intent         intent.Type      `json:"intent"`
	Confidence     float64          `json:"confidence"`
	TargetSections []canvas.Section `json:"target_sections,omitempty"`
	SessionID      string           `json:"session_id"`
	Data           any              `json:"data,omitempty"`
	Metadata       Metadata         `json:"metadata"`
}

// TurnAudit summarizes one processed turn for the audit sink.
type TurnAudit struct {
	RequestID      string
	SessionID      string
	Intent         intent.Type
	Confidence     float64
	ResponseType   ResponseType
	FallbackReason string
	Duration       time.Duration
}

// Auditor records processed turns. Implementations must not block request
// handling on failure; errors are logged and dropped.
type Auditor interface {
	RecordTurn(ctx context.Context, t TurnAudit) error
}

// Config controls the middleware.
type Config struct {
	// Disabled short-circuits every turn to a fixed default decision.
	Disabled bool

	// ClassifyTimeout bounds the intent-classification step only; the
	// downstream generation calls inherit the completion provider's own
	// timeout. Default: 5 s.
	ClassifyTimeout time.Duration

	// DisableDependencyAnalysis makes modification decisions carry no
	// dependency payload.
	DisableDependencyAnalysis bool

	// DisableStateUpdates stops the middleware from touching conversation
	// state (useful for dry-run callers).
	DisableStateUpdates bool
}

// Middleware orchestrates one conversation turn end to end.
type Middleware struct {
	cfg      Config
	intents  *intent.Analyzer
	offtopic *offtopic.Detector
	deps     *depend.Analyzer
	clarifer *clarify.Generator
	answers  *answer.Generator
	sessions *session.Manager
	limiter  *completion.RateLimiter
	budget   *completion.TokenBudget
	audit    Auditor
}

// Deps bundles the middleware's collaborators. Limiter, Budget, and Audit
// are optional; the rest are required.
type Deps struct {
	Intents  *intent.Analyzer
	OffTopic *offtopic.Detector
	Depend   *depend.Analyzer
	Clarify  *clarify.Generator
	Answer   *answer.Generator
	Sessions *session.Manager
	Limiter  *completion.RateLimiter
	Budget   *completion.TokenBudget
	Audit    Auditor
}

// New assembles a Middleware.
func New(cfg Config, deps Deps) *Middleware {
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 5 * time.Second
	}
	return &Middleware{
		cfg:      cfg,
		intents:  deps.Intents,
		offtopic: deps.OffTopic,
		deps:     deps.Depend,
		clarifer: deps.Clarify,
		answers:  deps.Answer,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		budget:   deps.Budget,
		audit:    deps.Audit,
	}
}

// ProcessRequest runs one turn. It never returns an error: every failure
// mode is expressed as a response, most of them of type fallback.
func (m *Middleware) ProcessRequest(ctx context.Context, req Request) Response {
	started := time.Now()
	requestID := trace.FromContext(ctx)
	if requestID == "" {
		requestID = trace.GenerateID()
		ctx = trace.WithRequestID(ctx, requestID)
	}

	sessionID := m.ensureSession(req.SessionID)

	finish := func(resp Response) Response {
		resp.SessionID = sessionID
		resp.Metadata = Metadata{
			ProcessingTime: time.Since(started),
			RequestID:      requestID,
			Timestamp:      started,
		}
		m.recordAudit(ctx, resp)
		return resp
	}

	message, ok := latestUserMessage(req.Messages)
	if !ok {
		return finish(fallbackResponse("no user message found in request"))
	}

	if m.cfg.Disabled {
		return finish(Response{
			Type:       TypeFallback,
			Intent:     intent.TypeProvideInformation,
			Confidence: 0,
			Data:       FallbackData{FallbackReason: "intent analysis disabled by configuration"},
		})
	}

	if m.limiter != nil && !m.limiter.Allow(sessionID) {
		return finish(fallbackResponse("session rate limit exceeded; try again shortly"))
	}
	if m.budget != nil && !m.budget.Allow(sessionID) {
		return finish(fallbackResponse("session token budget exhausted for today"))
	}

	history := priorHistory(req.Messages)

	// Off-topic screening runs before intent analysis: deliberate
	// diversions never reach the classifier.
	if m.offtopic != nil {
		verdict := m.offtopic.Detect(ctx, message)
		if verdict.OffTopic && (verdict.Confidence >= 0.75 || offtopic.ConsistentRejection(verdict.Category)) {
			resp := m.rejectionResponse(message, verdict)
			m.updateSession(sessionID, session.PhaseProvidingInformation, nil, resp, message, req.Document)
			return finish(resp)
		}
	}

	result, timedOut := m.classify(ctx, message, history, req.Document)
	if timedOut {
		set := m.clarifer.Generate(ctx, message, nil, req.Document)
		resp := Response{
			Type:       TypeClarification,
			Intent:     intent.TypeAskClarification,
			Confidence: timeoutConfidence,
			Data:       set,
		}
		if !m.cfg.DisableStateUpdates {
			m.sessions.AddPendingClarifications(sessionID, set.Questions)
			m.updateSession(sessionID, session.PhaseAwaitingClarification, nil, resp, message, req.Document)
		}
		return finish(resp)
	}
	if m.budget != nil {
		m.budget.RecordUsage(sessionID, completion.EstimateTokens(message))
	}

	resp := m.dispatch(ctx, sessionID, message, result, req)
	return finish(resp)
}

// classify runs the intent analyzer under the configured timeout. The
// bool result reports a timeout: the goroutine's (fallback) result is
// discarded and the caller downgrades the turn.
func (m *Middleware) classify(ctx context.Context, message string, history []completion.Message, doc *canvas.Document) (intent.Result, bool) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.ClassifyTimeout)
	defer cancel()

	done := make(chan intent.Result, 1)
	go func() {
		done <- m.intents.Analyze(cctx, message, history, doc)
	}()

	select {
	case result := <-done:
		return result, false
	case <-cctx.Done():
		slog.Warn("orchestrator: intent classification timed out", "timeout", m.cfg.ClassifyTimeout)
		return intent.Result{}, true
	}
}

// dispatch routes a classified turn to its handler.
func (m *Middleware) dispatch(ctx context.Context, sessionID, message string, result intent.Result, req Request) Response {
	base := Response{
		Intent:         result.Intent,
		Confidence:     result.Confidence,
		TargetSections: result.TargetSections,
	}

	switch result.Intent {
	case intent.TypeModifyCanvas:
		base.Type = TypeModification
		if !m.cfg.DisableDependencyAnalysis {
			analysis := m.deps.AnalyzeDependencies(ctx, result.TargetSections, req.Document, message)
			validation := m.deps.ValidateDependencies(ctx, req.Document, message, result.TargetSections)
			analysis.Validation = &validation
			base.Data = &analysis
		}
		m.updateSession(sessionID, session.PhaseProcessingModification, &result, base, message, req.Document)
		return base

	case intent.TypeAskClarification:
		set := m.clarifer.Generate(ctx, message, result.TargetSections, req.Document)
		if len(set.Questions) == 0 {
			return fallbackResponse("clarification generator produced no questions")
		}
		base.Type = TypeClarification
		base.Data = set
		if !m.cfg.DisableStateUpdates {
			m.sessions.AddPendingClarifications(sessionID, set.Questions)
			m.updateSession(sessionID, session.PhaseAwaitingClarification, &result, base, message, req.Document)
		}
		return base

	case intent.TypeProvideInformation, intent.TypeRequestExplanation:
		resp := m.answers.Generate(ctx, message, req.Document, req.OriginalTicket)
		if resp.Response == "" {
			return fallbackResponse("contextual response generator produced no answer")
		}
		base.Type = TypeInformation
		base.Data = resp
		m.updateSession(sessionID, session.PhaseProvidingInformation, &result, base, message, req.Document)
		return base

	case intent.TypeOffTopic:
		verdict := offtopic.Result{Category: "", Confidence: result.Confidence}
		if m.offtopic != nil {
			verdict = m.offtopic.Detect(ctx, message)
		}
		resp := m.rejectionResponse(message, verdict)
		resp.Confidence = result.Confidence
		m.updateSession(sessionID, session.PhaseProvidingInformation, &result, resp, message, req.Document)
		return resp

	default:
		return fallbackResponse("unknown intent type: " + string(result.Intent))
	}
}

// rejectionResponse builds the polite off-topic redirection.
func (m *Middleware) rejectionResponse(message string, verdict offtopic.Result) Response {
	lang := offtopic.DetectLanguage(message)
	return Response{
		Type:       TypeRejection,
		Intent:     intent.TypeOffTopic,
		Confidence: verdict.Confidence,
		Data:       offtopic.PoliteRejection(verdict.Category, lang),
	}
}

// ensureSession resolves the session ID, creating a record for new or
// unknown sessions so the rest of the turn can rely on it existing.
func (m *Middleware) ensureSession(id string) string {
	if m.cfg.DisableStateUpdates {
		if id == "" {
			return session.NewSessionID()
		}
		return id
	}
	if id == "" {
		id = session.NewSessionID()
	}
	if m.sessions.GetState(id) == nil {
		m.sessions.InitializeSession(id)
	}
	return id
}

// updateSession merges the turn's outcome into conversation state.
func (m *Middleware) updateSession(sessionID string, phase session.Phase, result *intent.Result, resp Response, message string, doc *canvas.Document) {
	if m.cfg.DisableStateUpdates {
		return
	}
	m.sessions.UpdateState(sessionID, session.Update{
		Phase:      session.PhaseOf(phase),
		LastIntent: result,
	})
	m.sessions.AddContextSnapshot(sessionID, session.Snapshot{
		Timestamp:      time.Now(),
		CanvasState:    canvas.Summarize(doc),
		UserMessage:    message,
		SystemResponse: string(resp.Type),
		Intent:         resp.Intent,
		Confidence:     resp.Confidence,
	})
}

// recordAudit hands the finished turn to the audit sink, if any.
func (m *Middleware) recordAudit(ctx context.Context, resp Response) {
	if m.audit == nil {
		return
	}
	t := TurnAudit{
		RequestID:    resp.Metadata.RequestID,
		SessionID:    resp.SessionID,
		Intent:       resp.Intent,
		Confidence:   resp.Confidence,
		ResponseType: resp.Type,
		Duration:     resp.Metadata.ProcessingTime,
	}
	if fd, ok := resp.Data.(FallbackData); ok {
		t.FallbackReason = fd.FallbackReason
	}
	if err := m.audit.RecordTurn(ctx, t); err != nil {
		slog.Warn("orchestrator: audit write failed", "err", err)
	}
}

// latestUserMessage returns the content of the most recent user-role
// message.
func latestUserMessage(messages []completion.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

// priorHistory returns every message before the latest user message.
func priorHistory(messages []completion.Message) []completion.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[:i]
		}
	}
	return messages
}

func fallbackResponse(reason string) Response {
	return Response{
		Type: TypeFallback,
		Data: FallbackData{FallbackReason: reason},
	}
}
