// Package server is the HTTP ingress: request validation and routing
// into the agent engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"scout/internal/agent"
	"scout/internal/facts"
	"scout/internal/logging"
	"scout/internal/types"
)

// Enricher answers enrichment requests. *agent.Engine satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, req agent.Request) (*types.EnrichmentResult, error)
}

// TrustedFactWriter applies user corrections. *facts.Store satisfies it.
type TrustedFactWriter interface {
	SetTrustedFact(ctx context.Context, in facts.TrustedFactInput) error
}

// Server wires HTTP handlers to the engine.
type Server struct {
	engine Enricher
	facts  TrustedFactWriter
	log    *zap.Logger
}

// New builds a Server.
func New(engine Enricher, factStore TrustedFactWriter) *Server {
	return &Server{
		engine: engine,
		facts:  factStore,
		log:    logging.Named("server"),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/enrich", s.handleEnrich)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

// enrichRequest is the JSON body of POST /api/enrich.
type enrichRequest struct {
	Query             string                   `json:"query"`
	Variables         []types.VariableDef      `json:"variables"`
	SessionID         string                   `json:"sessionId"`
	Username          string                   `json:"username"`
	Entity            string                   `json:"entity"`
	ResearchIntensity string                   `json:"researchIntensity"`
	Corrections       []facts.TrustedFactInput `json:"corrections"`
}

// validate returns every schema violation in the request.
func (r *enrichRequest) validate() []string {
	var issues []string

	if len(strings.TrimSpace(r.Query)) < 2 {
		issues = append(issues, "query must be at least 2 characters")
	}

	for i, def := range r.Variables {
		if strings.TrimSpace(def.Name) == "" {
			issues = append(issues, fmt.Sprintf("variables[%d].name is required", i))
		}
		if def.Type != "" && !types.ValidDType(def.Type) {
			issues = append(issues, fmt.Sprintf("variables[%d].type %q is not a valid type", i, def.Type))
		}
	}

	switch r.ResearchIntensity {
	case "", "low", "medium", "high":
	default:
		issues = append(issues, `researchIntensity must be "low", "medium" or "high"`)
	}

	for i, c := range r.Corrections {
		if strings.TrimSpace(c.Field) == "" {
			issues = append(issues, fmt.Sprintf("corrections[%d].field is required", i))
		}
	}
	return issues
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()})
		return
	}

	if issues := req.validate(); len(issues) > 0 {
		writeError(w, http.StatusBadRequest, "request failed validation", issues)
		return
	}

	ctx := r.Context()
	s.applyCorrections(ctx, req.Corrections)

	intensity := req.ResearchIntensity
	if intensity == "" {
		intensity = "medium"
	}

	result, err := s.engine.Enrich(ctx, agent.Request{
		Query:     req.Query,
		Variables: req.Variables,
		SessionID: req.SessionID,
		Username:  req.Username,
		Entity:    req.Entity,
		Intensity: intensity,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The client is gone or the run timed out; there is no one
			// to answer.
			s.log.Warn("enrich run cancelled", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "request cancelled", nil)
			return
		}
		s.log.Error("enrich run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// applyCorrections writes user-supplied trusted facts before the run.
// Failures are logged and skipped; a correction never fails the request.
func (s *Server) applyCorrections(ctx context.Context, corrections []facts.TrustedFactInput) {
	for _, c := range corrections {
		if err := s.facts.SetTrustedFact(ctx, c); err != nil {
			s.log.Warn("correction skipped",
				zap.String("entity", c.Entity),
				zap.String("field", c.Field),
				zap.Error(err))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, details []string) {
	body := map[string]any{"error": message}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

// ListenAndServe runs the HTTP server until the context is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
