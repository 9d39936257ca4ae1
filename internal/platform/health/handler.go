// Package health serves the site health report and the liveness probe.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"thgate/internal/platform/config"
	"thgate/pkg/platform/httputil"
	"thgate/pkg/requestcontext"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	MessageMethodNotAllowed = "Method not allowed"

	defaultCheckTimeout = 2 * time.Second
)

// CheckFunc probes a dependency. It returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

type Handler struct {
	environment  string
	firebase     config.Firebase
	logger       *slog.Logger
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.checkTimeout = d
		}
	}
}

func New(environment string, firebase config.Firebase, opts ...Option) *Handler {
	if environment == "" {
		environment = config.EnvDevelopment
	}
	h := &Handler{
		environment:  environment,
		firebase:     firebase,
		logger:       slog.Default(),
		checkTimeout: defaultCheckTimeout,
		checks:       make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCheck adds a dependency to the health report under name.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Register mounts the health report. Any method is routed here so that
// non-GET requests get the 405 envelope.
func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/health-check", h.HandleHealthCheck)
}

// RegisterProbes mounts the liveness probe.
func (h *Handler) RegisterProbes(r chi.Router) {
	r.Get("/health/live", h.HandleLiveness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type Report struct {
	Status          string         `json:"status"`
	Timestamp       string         `json:"timestamp"`
	Environment     string         `json:"environment"`
	Services        map[string]any `json:"services"`
	Recommendations []string       `json:"recommendations"`
}

type FirebaseStatus struct {
	Status           string   `json:"status"`
	MissingVariables []string `json:"missing_variables"`
}

type SecurityStatus struct {
	Status     string `json:"status"`
	Middleware string `json:"middleware"`
}

type DependencyStatus struct {
	Status string `json:"status"`
}

// HandleHealthCheck implements GET /health-check: 200 when Firebase is fully
// configured and every registered dependency answers, 503 otherwise.
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, MessageMethodNotAllowed)
		return
	}

	report := h.Report(r.Context())
	status := http.StatusOK
	if report.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, report)
}

// Report builds the health report.
func (h *Handler) Report(ctx context.Context) Report {
	missing := h.firebase.Missing()
	healthy := len(missing) == 0

	firebase := FirebaseStatus{Status: "configured", MissingVariables: missing}
	report := Report{
		Timestamp:   httputil.Timestamp(requestcontext.Now(ctx)),
		Environment: h.environment,
		Services: map[string]any{
			"firebase": &firebase,
			"security": SecurityStatus{Status: "active", Middleware: "enabled"},
		},
		Recommendations: []string{},
	}
	if !healthy {
		firebase.Status = "misconfigured"
		report.Recommendations = append(report.Recommendations,
			"Missing Firebase environment variables: "+strings.Join(missing, ", "),
			"Please set these variables in your Netlify dashboard",
		)
	}

	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	for _, name := range slices.Sorted(maps.Keys(checks)) {
		dep := DependencyStatus{Status: "up"}
		if err := h.runCheck(ctx, checks[name]); err != nil {
			h.logger.WarnContext(ctx, "health dependency down",
				"dependency", name,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			dep.Status = "down"
			healthy = false
			report.Recommendations = append(report.Recommendations, fmt.Sprintf("Dependency %s is unreachable", name))
		}
		report.Services[name] = dep
	}

	report.Status = StatusHealthy
	if !healthy {
		report.Status = StatusUnhealthy
	}
	return report
}

func (h *Handler) runCheck(ctx context.Context, check CheckFunc) error {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()
	return check(ctx)
}
