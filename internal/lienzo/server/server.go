// Package server exposes the conversation orchestrator over HTTP. It is a
// thin shim: decode the turn, run the middleware, write the formatted
// decision back out.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pcastillo/lienzo/common/trace"
	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/orchestrator"
)

// RouteRegistrar is satisfied by *http.ServeMux, so the server can register
// its routes without owning the mux.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// turnRequest is the JSON body accepted by POST /v1/turns.
type turnRequest struct {
	SessionID      string               `json:"session_id"`
	Messages       []completion.Message `json:"messages"`
	Document       *canvas.Document     `json:"document"`
	OriginalTicket string               `json:"original_ticket"`
}

// Server handles the conversation HTTP routes.
type Server struct {
	mw      *orchestrator.Middleware
	version string
}

// New creates a Server around the given middleware.
func New(mw *orchestrator.Middleware, version string) *Server {
	return &Server{mw: mw, version: version}
}

// RegisterRoutes adds the HTTP routes to the given RouteRegistrar:
//
//   - POST /v1/turns: process one conversation turn.
//   - GET  /healthz: liveness probe.
func (srv *Server) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/v1/turns", http.HandlerFunc(srv.handleTurn))
	r.Handle("/healthz", http.HandlerFunc(srv.handleHealth))
}

// handleTurn handles POST /v1/turns.
func (srv *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := trace.WithRequestID(r.Context(), trace.GenerateID())
	resp := srv.mw.ProcessRequest(ctx, orchestrator.Request{
		SessionID:      req.SessionID,
		Messages:       req.Messages,
		Document:       req.Document,
		OriginalTicket: req.OriginalTicket,
	})

	formatted := orchestrator.FormatResponse(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(formatted.Status)
	if err := json.NewEncoder(w).Encode(formatted.Body); err != nil {
		slog.Error("server: encode turn response", "err", err)
	}
}

// handleHealth handles GET /healthz.
func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": srv.version,
	})
}
