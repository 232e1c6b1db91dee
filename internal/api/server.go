// Package api exposes the engine's egress stream and operational stats
// over HTTP, following the teacher's api.Server shape (stdlib
// ServeMux method-pattern routing plus a cors -> logging -> rate-limit
// middleware chain) generalized from the teacher's trading-dashboard
// routes to this engine's signal/stats surface.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"orderflow-engine/internal/egress"
	"orderflow-engine/internal/metrics"
	"orderflow-engine/internal/ratelimit"
	"orderflow-engine/internal/storage"
)

// Server serves the SSE/WebSocket event streams and a small set of
// read-only operational endpoints.
type Server struct {
	broker  *egress.Broker
	metrics *metrics.Registry
	limiter *ratelimit.Limiter
	store   *storage.Store
	symbol  string
	addr    string
}

// New builds a Server. limiter and store may be nil, in which case rate
// limiting and the signal-history endpoint are disabled respectively.
func New(addr string, broker *egress.Broker, reg *metrics.Registry, limiter *ratelimit.Limiter, store *storage.Store, symbol string) *Server {
	return &Server{broker: broker, metrics: reg, limiter: limiter, store: store, symbol: symbol, addr: addr}
}

// Start blocks serving HTTP until the listener fails or the process
// exits; callers typically run it in its own goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/signals/history", s.handleSignalHistory)
	mux.Handle("GET /api/events", http.HandlerFunc(s.broker.ServeSSE))
	mux.Handle("GET /api/ws", http.HandlerFunc(s.broker.ServeWS))

	handler := s.corsMiddleware(s.loggingMiddleware(s.rateLimitMiddleware(mux)))

	log.Printf("🚀 api server starting on %s", s.addr)
	return http.ListenAndServe(s.addr, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	snap := s.metrics.Snapshot()
	snap2 := struct {
		metrics.Snapshot
		DroppedBroadcasts int64 `json:"droppedBroadcasts"`
	}{Snapshot: snap, DroppedBroadcasts: s.broker.Dropped()}
	json.NewEncoder(w).Encode(snap2)
}

func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "storage unavailable"})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	records, err := s.store.RecentSignals(s.symbol, limit)
	if err != nil {
		log.Printf("api: signal history: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "query failed"})
		return
	}
	json.NewEncoder(w).Encode(records)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// rateLimitMiddleware throttles per remote address; SSE connections are
// exempt since they hold one long-lived request rather than issuing
// repeated short ones.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.URL.Path == "/api/events" || r.URL.Path == "/api/ws" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow(r.RemoteAddr) {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
