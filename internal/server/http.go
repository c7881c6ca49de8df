package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"VerseRisk/internal/observability"
	"VerseRisk/internal/persistence"
	"VerseRisk/internal/projection"
	"VerseRisk/internal/query"
)

// HTTPServer serves the read API and admin endpoints.
type HTTPServer struct {
	srv *http.Server
	log zerolog.Logger
}

// Deps holds everything the handlers need.
type Deps struct {
	Query         *query.QueryService
	SnapshotMgr   *persistence.SnapshotManager
	DB            *sql.DB
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	s := &HTTPServer{log: deps.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", deps.HealthChecker.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/markets", s.handleListMarkets(deps.Query))
		r.Get("/markets/{market}/price", s.handleMarketPrice(deps.Query))
		r.Get("/positions/{position}/health", s.handlePositionHealth(deps.Query))
		r.Get("/liquidations/queue", s.handleLiquidationQueue(deps.Query))
		r.Get("/liquidations/history", s.handleLiquidationHistory(deps.Query))
		r.Get("/keepers", s.handleListKeepers(deps.Query))
		r.Get("/traders/{trader}/balances", s.handleTraderBalances(deps.Query))
		r.Get("/traders/{trader}/journal", s.handleJournalHistory(deps.Query))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", s.handleVerifyIntegrity(deps.Query))
			r.Get("/event-log", s.handleEventLogInfo(deps.SnapshotMgr))
			r.Post("/projections/rebuild", s.handleRebuildProjections(deps.DB))
		})
	})

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- handlers ---

func (s *HTTPServer) handleListMarkets(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, qs.ListMarkets(r.Context()))
	}
}

func (s *HTTPServer) handleMarketPrice(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := qs.GetMarketPrice(r.Context(), chi.URLParam(r, "market"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *HTTPServer) handlePositionHealth(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := qs.GetPositionHealth(r.Context(), chi.URLParam(r, "position"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *HTTPServer) handleLiquidationQueue(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, qs.GetLiquidationQueue(r.Context()))
	}
}

func (s *HTTPServer) handleLiquidationHistory(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		market := r.URL.Query().Get("market")
		account := r.URL.Query().Get("account")
		limit := queryInt(r, "limit", 50)
		writeJSON(w, http.StatusOK, qs.GetLiquidationHistory(r.Context(), market, account, limit))
	}
}

func (s *HTTPServer) handleListKeepers(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, qs.ListKeepers(r.Context()))
	}
}

func (s *HTTPServer) handleTraderBalances(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trader, err := uuid.Parse(chi.URLParam(r, "trader"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := qs.GetTraderBalances(r.Context(), trader)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *HTTPServer) handleJournalHistory(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trader, err := uuid.Parse(chi.URLParam(r, "trader"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var afterSeq *int64
		if raw := r.URL.Query().Get("before_sequence"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			afterSeq = &v
		}

		entries, err := qs.GetJournalHistory(r.Context(), trader, queryInt(r, "limit", 100), afterSeq)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *HTTPServer) handleVerifyIntegrity(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := qs.VerifyIntegrity(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *HTTPServer) handleEventLogInfo(snapMgr *persistence.SnapshotManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := snapMgr.GetLatestSequence(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"last_sequence": seq})
	}
}

func (s *HTTPServer) handleRebuildProjections(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := projection.RebuildProjections(r.Context(), db, s.log); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
