// Package api provides the HTTP server for gridmon. It serves cluster
// summaries, object listings, statistics products, predicate queries,
// live topic feeds over SSE and the stored product history.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/health"
	"github.com/gridmon/gridmon/internal/infra/sqlite"
	"github.com/gridmon/gridmon/internal/logging"
	"github.com/gridmon/gridmon/internal/query"
	"github.com/gridmon/gridmon/internal/stats"
	"github.com/gridmon/gridmon/internal/topic"
)

// Instance is everything the server needs to serve one runtime instance.
type Instance struct {
	Source        stats.ObjectSource
	Stats         *dispatch.Dispatcher
	Query         *query.Engine
	Hub           *topic.Hub
	MemberTimeout time.Duration
}

// HistoryStore lists stored statistics products.
type HistoryStore interface {
	ListProducts(instance string, kind domain.ObjectKind, object string, limit int) ([]sqlite.ProductRecord, error)
}

// HealthReporter exposes the latest health check results.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// Server is the gridmon HTTP API server.
type Server struct {
	mu             sync.RWMutex
	instances      map[string]*Instance
	defaultName    string
	history        HistoryStore
	health         HealthReporter
	metricsEnabled bool
	corsOrigins    []string
	version        string
	logger         *slog.Logger
}

// NewServer creates an API server with no instances.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		instances:   make(map[string]*Instance),
		corsOrigins: []string{"*"},
		version:     "dev",
		logger:      logger.With("component", "api"),
	}
}

// AddInstance serves inst under name. The first instance added is the
// default for routes that do not name one.
func (s *Server) AddInstance(name string, inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaultName == "" {
		s.defaultName = name
	}
	s.instances[name] = inst
}

// SetHistory enables the history routes.
func (s *Server) SetHistory(h HistoryStore) { s.history = h }

// SetHealth makes /health report h's checks.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCORSOrigins sets the allowed origins. "*" allows any.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// SetVersion sets the version reported by /api/status.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)

	// Live feeds must outlive the request timeout.
	r.Get("/api/instances/{instance}/topics/*", s.handleTopic)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))

		r.Get("/api/status", s.handleStatus)

		r.Route("/api/instances/{instance}", func(r chi.Router) {
			r.Get("/summary", s.handleSummary)
			r.Get("/members", s.handleMembers)
			r.Get("/objects/{kind}", s.handleObjects)
			r.Get("/stats/{kind}/{name}", s.handleStats)
			r.Post("/query/{kind}/{name}", s.handleQuery)
		})

		r.Get("/api/history/{kind}/{name}", s.handleHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) instance(name string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[name]
	if !ok {
		return nil, errors.Wrapf(domain.ErrInstanceUnknown, "%q", name)
	}
	return inst, nil
}

func (s *Server) instanceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.instances))
	for n := range s.instances {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes errs as an error message with a status derived from
// the first error.
func writeError(w http.ResponseWriter, errs ...error) {
	status := http.StatusInternalServerError
	if len(errs) > 0 {
		status = statusFor(errs[0])
	}
	writeJSON(w, status, domain.ErrorMessageFrom(errs...))
}

func statusFor(err error) int {
	var de *dispatch.DispatchError
	var qe *query.Error
	switch {
	case errors.Is(err, domain.ErrInstanceUnknown),
		errors.Is(err, domain.ErrObjectNotFound),
		errors.Is(err, topic.ErrUnknownTopic):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrUnsupportedKind),
		errors.Is(err, domain.ErrKindMismatch),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &de), errors.As(err, &qe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

// cors adds CORS headers for the configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.FromRequest(r.Context(), s.logger).Debug("request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}
