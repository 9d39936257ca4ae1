package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"thgate/internal/platform/metrics"
	"thgate/internal/security/csrf"
	"thgate/internal/security/headers"
	"thgate/pkg/platform/httputil"
	"thgate/pkg/platform/middleware/metadata"
	"thgate/pkg/platform/middleware/request"
	"thgate/pkg/platform/middleware/requesttime"
)

// FunctionsPrefix is where the serverless deployment exposes the same routes.
const FunctionsPrefix = "/.netlify/functions"

// MaxBodyBytes caps request bodies before any handler reads them.
const MaxBodyBytes int64 = 64 << 10

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Gate wraps a handler behind the request prechecks.
type Gate interface {
	Wrap(next http.Handler) http.Handler
}

// Probes mounts unauthenticated liveness routes outside the gate.
type Probes interface {
	RegisterProbes(r chi.Router)
}

type Config struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	Identity       *metadata.Middleware
	RequestTimeout time.Duration
	// Clock overrides request time. Nil uses the wall clock.
	Clock func() time.Time
}

// NewRouter wires the public endpoints. Every route registered through
// gated runs behind the gate and is reachable both at the root and under
// FunctionsPrefix.
func NewRouter(cfg Config, gate Gate, probes Probes, gated ...Registrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clock := requesttime.Middleware
	if cfg.Clock != nil {
		clock = requesttime.WithClock(cfg.Clock)
	}

	identity := cfg.Identity
	if identity == nil {
		identity = metadata.NewMiddleware(nil)
	}

	r := chi.NewRouter()

	r.Use(headers.Middleware)
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(clock)
	r.Use(identity.Handler)
	r.Use(request.Logger(logger))
	r.Use(request.Timeout(timeout))
	r.Use(request.BodyLimit(MaxBodyBytes))
	if cfg.Registry != nil {
		r.Use(request.Latency(request.NewMetrics(cfg.Registry)))
		r.Handle("/metrics", metrics.Handler(cfg.Registry))
	}

	if probes != nil {
		probes.RegisterProbes(r)
	}

	mount := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if gate != nil {
				r.Use(gate.Wrap)
			}
			r.Get("/csrf-token", HandleCSRFToken)
			for _, g := range gated {
				g.Register(r)
			}
		})
	}
	mount(r)
	r.Route(FunctionsPrefix, mount)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteMessage(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

type csrfTokenResponse struct {
	Success   bool   `json:"success"`
	CSRFToken string `json:"csrf_token"`
}

// HandleCSRFToken implements GET /csrf-token.
//
// Output: { "success": true, "csrf_token": "<32 alphanumeric characters>" }
func HandleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	token, err := csrf.GenerateToken()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, csrfTokenResponse{Success: true, CSRFToken: token})
}
