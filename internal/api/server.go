// Package api exposes the HTTP interface for the scraping gateway.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kleinsuche/kleinsuche/internal/cache"
	"github.com/kleinsuche/kleinsuche/internal/config"
	"github.com/kleinsuche/kleinsuche/internal/geo"
	"github.com/kleinsuche/kleinsuche/internal/rategate"
	"github.com/kleinsuche/kleinsuche/internal/scraper"
	"github.com/kleinsuche/kleinsuche/internal/stats"
	"github.com/kleinsuche/kleinsuche/internal/telemetry"
)

// RouteSearcher runs the route-search pipeline.
type RouteSearcher interface {
	Search(ctx context.Context, req geo.SearchRequest) (*geo.SearchResult, error)
}

// ORSClient proxies requests to the routing provider with credentials
// injected.
type ORSClient interface {
	ProxyORS(ctx context.Context, subpath string, query url.Values) ([]byte, error)
}

// LookupFunc resolves a hostname to its addresses. Injected so the proxy
// tests can simulate DNS answers.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Deps bundles everything the server needs. Nil optional fields fall
// back to sensible defaults.
type Deps struct {
	Config      config.Config
	Searcher    scraper.Searcher
	Cache       *cache.Store
	RouteSearch RouteSearcher
	ORS         ORSClient
	Stats       *stats.Tracker
	Gate        *rategate.Gate
	HTTPClient  *http.Client
	LookupIP    LookupFunc
	Logger      *zap.Logger
}

// Server wires HTTP handlers to the scraper, cache and geo pipeline.
type Server struct {
	router      chi.Router
	cfg         config.Config
	searcher    scraper.Searcher
	cacheStore  *cache.Store
	routeSearch RouteSearcher
	ors         ORSClient
	stats       *stats.Tracker
	httpClient  *http.Client
	lookupIP    LookupFunc
	logger      *zap.Logger
	flight      singleflight.Group
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.LookupIP == nil {
		deps.LookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		}
	}
	if deps.Gate == nil {
		deps.Gate = rategate.New(0)
	}

	s := &Server{
		cfg:         deps.Config,
		searcher:    deps.Searcher,
		cacheStore:  deps.Cache,
		routeSearch: deps.RouteSearch,
		ors:         deps.ORS,
		stats:       deps.Stats,
		httpClient:  deps.HTTPClient,
		lookupIP:    deps.LookupIP,
		logger:      deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(telemetry.Middleware)
	// The gate wraps everything: even unrelated endpoints compete for the
	// same admission slot.
	r.Use(deps.Gate.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", telemetry.Handler().ServeHTTP)
	r.Get("/stats", s.handleStats)
	r.Get("/inserate", s.handleInserate)
	r.Get("/api/inserate", s.handleInserate)
	r.Get("/inserat", s.handleDetail)
	r.Get("/proxy", s.handleProxy)
	r.Get("/ors/*", s.handleORS)
	r.Get("/route-search", s.handleRouteSearch)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordVisitor(clientIP(r))
	writeJSON(s.logger, w, http.StatusOK, s.stats.Summary())
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := splitAndTrim(fwd, ",")
		if len(parts) > 0 {
			return parts[0]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
