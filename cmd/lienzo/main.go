package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcastillo/lienzo/common/environment"
	"github.com/pcastillo/lienzo/common/version"
	"github.com/pcastillo/lienzo/internal/lienzo/answer"
	"github.com/pcastillo/lienzo/internal/lienzo/audit"
	"github.com/pcastillo/lienzo/internal/lienzo/clarify"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/depend"
	"github.com/pcastillo/lienzo/internal/lienzo/intent"
	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
	"github.com/pcastillo/lienzo/internal/lienzo/offtopic"
	"github.com/pcastillo/lienzo/internal/lienzo/orchestrator"
	"github.com/pcastillo/lienzo/internal/lienzo/sections"
	"github.com/pcastillo/lienzo/internal/lienzo/server"
	"github.com/pcastillo/lienzo/internal/lienzo/session"
)

// auditSink adapts the SQLite decision log to the orchestrator's Auditor.
type auditSink struct {
	store *audit.Store
}

func (a auditSink) RecordTurn(ctx context.Context, t orchestrator.TurnAudit) error {
	d := audit.Decision{
		RequestID:    t.RequestID,
		SessionID:    t.SessionID,
		Intent:       string(t.Intent),
		Confidence:   t.Confidence,
		ResponseType: string(t.ResponseType),
		Duration:     t.Duration,
	}
	if t.FallbackReason != "" {
		d.FallbackReason.String = t.FallbackReason
		d.FallbackReason.Valid = true
	}
	return a.store.RecordDecision(ctx, d)
}

func main() {
	fmt.Printf("Lienzo Conversation Orchestrator\n")
	fmt.Printf("Version: %s\n", version.Info())
	fmt.Println()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	apiKey, err := environment.RequiredString("OPENAI_API_KEY")
	if err != nil {
		return err
	}

	listenAddr := environment.StringOr("LISTEN_ADDR", ":8080")
	dbPath := environment.StringOr("AUDIT_DB_PATH", "")
	sessionTTL := environment.DurationOr("SESSION_TTL", 30*time.Minute)
	classifyTimeout := environment.DurationOr("CLASSIFY_TIMEOUT", 5*time.Second)
	rateLimit := environment.IntOr("SESSION_RATE_LIMIT", completion.DefaultRateLimit)
	tokenBudget := environment.IntOr("SESSION_TOKEN_BUDGET", completion.DefaultTokenBudget)

	lex, err := lexicon.Load()
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}

	port := completion.NewOpenAI(completion.Config{
		APIKey:  apiKey,
		BaseURL: environment.StringOr("OPENAI_BASE_URL", ""),
		Model:   environment.StringOr("OPENAI_MODEL", ""),
		Timeout: environment.DurationOr("OPENAI_TIMEOUT", 0),
	})

	detector := sections.New(lex, port)
	sessions := session.NewManager(session.Config{TTL: sessionTTL})

	deps := orchestrator.Deps{
		Intents: intent.NewAnalyzer(port, lex, detector),
		OffTopic: offtopic.New(lex, port, offtopic.Config{
			EnableHybridDetection: environment.BoolOr("HYBRID_OFFTOPIC", true),
		}),
		Depend:   depend.NewAnalyzer(port),
		Clarify:  clarify.NewGenerator(port),
		Answer:   answer.NewGenerator(port, lex, detector),
		Sessions: sessions,
		Limiter:  completion.NewRateLimiter(rateLimit, time.Minute),
		Budget:   completion.NewTokenBudget(tokenBudget),
	}

	if dbPath != "" {
		store, err := audit.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer store.Close()
		deps.Audit = auditSink{store: store}
	}

	mw := orchestrator.New(orchestrator.Config{
		Disabled:                  environment.BoolOr("INTENT_ANALYSIS_DISABLED", false),
		ClassifyTimeout:           classifyTimeout,
		DisableDependencyAnalysis: environment.BoolOr("DEPENDENCY_ANALYSIS_DISABLED", false),
	}, deps)

	mux := http.NewServeMux()
	server.New(mw, version.Version).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expired sessions are swept in the background; the manager itself
	// never blocks a request on cleanup.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.CleanupExpiredSessions()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", listenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
