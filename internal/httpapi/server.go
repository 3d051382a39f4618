package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"makerwatch/internal/model"
	"makerwatch/internal/presenter"
)

// Server exposes the latest presenter state over HTTP.
type Server struct {
	state    *presenter.State
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
	router   http.Handler
}

// New builds the API. gatherer may be nil, in which case /metrics is not mounted.
func New(state *presenter.State, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	srv := &Server{
		state:    state,
		gatherer: gatherer,
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/supply", s.listSupply)
		api.Get("/supply/{token}", s.getSupply)
		api.Get("/auctions", s.getAuctions)
		api.Get("/debt-auctions", s.getDebtAuctions)
		api.Get("/stats", s.getStats)
		api.Get("/errors", s.listErrors)
	})
	r.Get("/chart/supply/{token}.png", s.supplyChart)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	errs := s.state.Errors()
	stages := make([]string, 0, len(errs))
	for _, e := range errs {
		stages = append(stages, e.Stage)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"failing_stages": stages,
	})
}

func (s *Server) listSupply(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"supply": s.state.Supplies()})
}

func (s *Server) getSupply(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	snap, ok := s.state.Supply(token)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown token "+token)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getAuctions(w http.ResponseWriter, r *http.Request) {
	set, ok := s.state.Auctions()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "auctions not loaded yet")
		return
	}
	s.writeJSON(w, http.StatusOK, set)
}

func (s *Server) getDebtAuctions(w http.ResponseWriter, r *http.Request) {
	set, ok := s.state.DebtAuctions()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "debt auctions not loaded yet")
		return
	}
	s.writeJSON(w, http.StatusOK, set)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.state.Stats()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "stats not loaded yet")
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		model.StatsSnapshot
		Entries []model.StatEntry `json:"entries"`
	}{snap, snap.Stats.Entries(snap.Unit)})
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"errors": s.state.Errors()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http api listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http api stopped")
	return ctx.Err()
}
