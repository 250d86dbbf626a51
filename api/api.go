// Package api exposes the server half of the scheme over HTTP: opaque
// envelope storage, second-factor verification, and administrative
// endpoints. Nothing routed here ever carries a data key, a password, or
// plaintext.
package api

import (
	"crypto/subtle"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/sora-grayscale/splitvault/ratelimit"
	"github.com/sora-grayscale/splitvault/storage"
	"github.com/sora-grayscale/splitvault/twofactor"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo       storage.Repository
	keeper     *twofactor.Keeper
	limiter    *ratelimit.Limiter
	audit      *auditLogger
	cronSecret string
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

// WithCronSecret enables the administrative cron endpoints, guarded by a
// shared secret from deployment configuration. Without it they 404.
func WithCronSecret(secret string) Option {
	return func(a *API) {
		a.cronSecret = secret
	}
}

// New creates a new API instance. The limiter must be the same instance
// the keeper throttles against, so the cron reset covers both.
func New(repo storage.Repository, keeper *twofactor.Keeper, limiter *ratelimit.Limiter, opts ...Option) *API {
	a := &API{
		repo:    repo,
		keeper:  keeper,
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/resources", a.CreateResource)
	r.Route("/resources/{resourceID}", func(r chi.Router) {
		r.Get("/", a.GetResource)
		r.Delete("/", a.DeleteResource)
		r.Put("/fields", a.UpdateFields)
		r.Put("/protection", a.SetProtection)
	})

	r.Route("/accounts/{accountID}/2fa", func(r chi.Router) {
		r.Get("/", a.TwoFactorStatus)
		r.Post("/setup", a.SetupTwoFactor)
		r.Post("/enable", a.EnableTwoFactor)
		r.Post("/verify", a.VerifyTwoFactor)
		r.Post("/disable", a.DisableTwoFactor)
	})

	r.Post("/cron/reset-lockouts", a.ResetLockouts)

	return r
}

// ResetLockouts handles POST /cron/reset-lockouts. An operator escape
// hatch for support cases; authenticated by constant-time comparison
// against the configured shared secret.
func (a *API) ResetLockouts(w http.ResponseWriter, r *http.Request) {
	if a.cronSecret == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	provided := r.Header.Get("X-Cron-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.cronSecret)) != 1 {
		a.audit.logFailure(AuditCronUnauthorized, r, "bad cron secret")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	a.limiter.Reset()
	a.audit.log(AuditLockoutsReset, r)
	w.WriteHeader(http.StatusNoContent)
}
