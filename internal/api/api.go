// Package api provides HTTP handlers and the API server for coachguard.
//
// It exposes endpoints for triggering agent cycles, reviewing and resolving
// proposed actions, managing preferences and consent, and the GDPR data
// lifecycle. The API is thin glue: every decision runs through the guardrail
// engine, never in a handler.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/strideworks/coachguard/internal/agent"
	"github.com/strideworks/coachguard/internal/lifecycle"
	"github.com/strideworks/coachguard/internal/privacy"
	"github.com/strideworks/coachguard/internal/store"
)

// DefaultShutdownTimeout bounds graceful shutdown on Stop.
const DefaultShutdownTimeout = 10 * time.Second

// Server wires the engine components behind HTTP endpoints.
type Server struct {
	store        store.Store
	orchestrator *agent.Orchestrator
	lifecycle    *lifecycle.Manager
	privacy      *privacy.Service
	prefs        *agent.PreferenceResolver
	httpServer   *http.Server
}

// NewServer creates an API server over the given engine components.
func NewServer(st store.Store, orch *agent.Orchestrator, lm *lifecycle.Manager, priv *privacy.Service) *Server {
	return &Server{
		store:        st,
		orchestrator: orch,
		lifecycle:    lm,
		privacy:      priv,
		prefs:        agent.NewPreferenceResolver(st),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/cycle", s.cycleHandler)
	mux.HandleFunc("/agent/actions", s.actionsHandler)
	mux.HandleFunc("/agent/actions/accept", s.acceptHandler)
	mux.HandleFunc("/agent/actions/reject", s.rejectHandler)
	mux.HandleFunc("/agent/preferences", s.preferencesHandler)
	mux.HandleFunc("/agent/consent", s.consentHandler)
	mux.HandleFunc("/agent/consent/withdraw", s.withdrawConsentHandler)
	mux.HandleFunc("/agent/data", s.deleteDataHandler)
	mux.HandleFunc("/agent/data/anonymize", s.anonymizeDataHandler)
	mux.HandleFunc("/agent/data/summary", s.dataSummaryHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	slog.Info("coachguard API listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
