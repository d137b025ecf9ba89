package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthforce/authflow/internal/config"
	"github.com/healthforce/authflow/internal/logger"
	"github.com/healthforce/authflow/rules"
)

// serveCmd starts the rule dry-run server: operators can exercise the
// loaded rule phases against hand-written contexts before a batch runs,
// without touching the portal.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the loaded rule phases for dry-run evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

type ruleServer struct {
	engine *rules.Engine
	set    *rules.Set
	router *chi.Mux
	log    zerolog.Logger
}

func newRuleServer(engine *rules.Engine, set *rules.Set, log zerolog.Logger) *ruleServer {
	s := &ruleServer{engine: engine, set: set, log: log}
	s.setupRoutes()
	return s
}

func (s *ruleServer) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/phases", s.handlePhases)
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	s.router = r
}

func (s *ruleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *ruleServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"phasesLoaded": len(s.set.Keys()),
	})
}

func (s *ruleServer) handlePhases(w http.ResponseWriter, r *http.Request) {
	phases := make([]phaseSummary, 0, len(s.set.Keys()))
	for _, key := range s.set.Keys() {
		phaseRules, _ := s.set.Phase(key)
		phases = append(phases, phaseSummary{Key: key, Rules: len(phaseRules)})
	}
	respondJSON(w, http.StatusOK, phasesResponse{Phases: phases})
}

func (s *ruleServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Phase == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "phase is required"})
		return
	}
	if _, ok := s.set.Phase(req.Phase); !ok {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "unknown phase " + req.Phase})
		return
	}

	trail := &rules.Trail{}
	result, err := s.engine.Execute(req.Phase, req.Facts, trail)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, evaluateResponse{
		Phase:   req.Phase,
		Matched: result.Matched,
		Actions: result.Actions,
		Comment: trail.Join(),
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func runServer() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	engine, set, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:    cfg.Serve.Addr,
		Handler: newRuleServer(engine, set, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Serve.Addr).Msg("rule server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
