package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/syncgate/tokenserver/issuer"
	"github.com/syncgate/tokenserver/storage"
)

const (
	defaultTokenDuration = 3600
	defaultMaxDuration   = 31536000 // one year, matching the widest client retry horizon
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo        storage.Repository
	issuer      *issuer.Issuer
	verifier    Verifier
	adminToken  string
	maxDuration uint64
	version     string
	audit       *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAdminToken enables the assignment admin endpoints, guarded by the
// given token. Empty token leaves the admin surface disabled.
func WithAdminToken(token string) Option {
	return func(a *API) {
		a.adminToken = token
	}
}

// WithMaxDuration bounds the credential lifetime a caller may request.
// Longer requests are clamped, not rejected.
func WithMaxDuration(seconds uint64) Option {
	return func(a *API) {
		a.maxDuration = seconds
	}
}

// WithVersion sets the version string reported by the heartbeat endpoint.
func WithVersion(version string) Option {
	return func(a *API) {
		a.version = version
	}
}

// WithAlertFunc installs a callback for anomaly alerts (authentication
// failure and lookup-miss spikes).
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.audit.metrics = newMetricsCollector(fn)
	}
}

// New creates a new API instance.
func New(repo storage.Repository, iss *issuer.Issuer, verifier Verifier, opts ...Option) *API {
	a := &API{
		repo:        repo,
		issuer:      iss,
		verifier:    verifier,
		maxDuration: defaultMaxDuration,
		version:     "dev",
	}
	a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Get("/1.0/sync/1.5", a.GetToken)

	r.Get("/__heartbeat__", a.Heartbeat)
	r.Get("/__lbheartbeat__", a.LBHeartbeat)

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(a.AdminMiddleware)
		r.Get("/assignments", a.ListAssignments)
		r.Put("/assignments/{accountID}", a.PutAssignment)
		r.Get("/assignments/{accountID}", a.GetAssignment)
		r.Delete("/assignments/{accountID}", a.DeleteAssignment)
	})

	return r
}
