// Package api serves the postcraft HTTP API: CSRF token issue, the
// server side of onboarding, and the contact form. Every route group is
// wrapped by a guard.Pipeline with its own rate-limit tier.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/postcraft-hq/postcraft/guard"
	"github.com/postcraft-hq/postcraft/ratelimit"
	"github.com/postcraft-hq/postcraft/storage"
)

// TokenIssuer mints CSRF tokens. *csrf.Protector satisfies it.
type TokenIssuer interface {
	Generate() (string, error)
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo     storage.Repository
	tokens   TokenIssuer
	pipeline *guard.Pipeline
	audit    *auditLogger
	now      func() time.Time

	guardCfg guard.Config
	alertFn  AlertFunc
	webhook  *alertWebhook
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
		a.guardCfg.Logger = logger
	}
}

// WithCORS enables the CORS stage.
func WithCORS(policy *guard.CORSPolicy) Option {
	return func(a *API) { a.guardCfg.CORS = policy }
}

// WithRateLimiter replaces the default in-memory limiter.
func WithRateLimiter(l guard.Allower, trustedProxies []netip.Prefix) Option {
	return func(a *API) {
		a.guardCfg.RateLimit = &guard.RateLimitConfig{Limiter: l, TrustedProxies: trustedProxies}
	}
}

// WithoutRateLimit disables the rate-limit stage.
func WithoutRateLimit() Option {
	return func(a *API) { a.guardCfg.RateLimit = nil }
}

// WithGuardMetrics records guard decisions in m.
func WithGuardMetrics(m *guard.Metrics) Option {
	return func(a *API) { a.guardCfg.Metrics = m }
}

// WithAlertFunc registers a callback for guard rejection spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) { a.alertFn = fn }
}

// WithAlertWebhook posts alerts to url. authHeader is optional and uses
// the "Header: Value" form.
func WithAlertWebhook(url, authHeader string) Option {
	return func(a *API) { a.webhook = newAlertWebhook(url, authHeader) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
		a.guardCfg.Now = now
	}
}

// New creates a new API instance. A nil tokens disables CSRF checks and
// the token endpoint reports an internal error. Rate limiting defaults to
// an in-memory limiter with the default tiers.
func New(repo storage.Repository, tokens TokenIssuer, opts ...Option) *API {
	a := &API{
		repo:   repo,
		tokens: tokens,
		now:    time.Now,
		guardCfg: guard.Config{
			RateLimit: &guard.RateLimitConfig{
				Limiter: ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil),
			},
		},
	}
	if v, ok := tokens.(guard.TokenVerifier); ok {
		a.guardCfg.CSRF = v
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	alertFn := a.alertFn
	if a.webhook != nil {
		alertFn = chainAlerts(alertFn, a.webhook.alert)
	}
	if alertFn != nil {
		a.audit.metrics = newMetricsCollector(alertFn)
	}

	a.guardCfg.OnReject = a.audit.guardRejected
	a.pipeline = guard.New(a.guardCfg)
	return a
}

// Close stops background workers.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted. Mount it at
// /api/v1.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.pipeline.Preflight)

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

	r.Group(func(r chi.Router) {
		r.Use(a.pipeline.Middleware(ratelimit.TierAPI))
		r.Get("/csrf", a.GetCSRFToken)
		r.With(RequireUser).Get("/onboarding", a.GetOnboarding)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.pipeline.Middleware(ratelimit.TierStrict))
		r.Use(RequireUser)
		r.Post("/onboarding/complete", a.CompleteOnboarding)
		r.Post("/onboarding/skip", a.SkipOnboarding)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.pipeline.Middleware(ratelimit.TierContact))
		r.Post("/contact", a.SubmitContact)
	})

	return r
}
