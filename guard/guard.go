// Package guard composes the request guards that protect API routes.
//
// A Pipeline wraps a handler with up to three stages in a fixed order:
//
//	CORS -> CSRF -> rate limit -> handler
//
// CORS is outermost so preflight requests are answered before any other
// check runs. Rate limiting is innermost so only requests that already
// passed CORS and CSRF consume quota. Disabling a stage never reorders the
// others.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/postcraft-hq/postcraft/ratelimit"
)

const (
	// CSRFHeader carries the CSRF token on mutating requests.
	CSRFHeader = "X-CSRF-Token"
	// UserIDHeader carries the authenticated user id set by the identity
	// provider in front of the API.
	UserIDHeader = "X-User-ID"
)

// TokenVerifier checks CSRF tokens. *csrf.Protector satisfies it.
type TokenVerifier interface {
	Verify(token string) bool
}

// Allower makes rate-limit decisions. *ratelimit.Limiter satisfies it.
type Allower interface {
	Policy(tier ratelimit.Tier) (ratelimit.Policy, error)
	Allow(ctx context.Context, tier ratelimit.Tier, clientKey string) (ratelimit.Decision, error)
}

// RateLimitConfig enables the rate-limit stage.
type RateLimitConfig struct {
	Limiter Allower
	// TrustedProxies lists peers whose forwarding headers are believed
	// when deriving the client address.
	TrustedProxies []netip.Prefix
}

// RejectFunc observes every request a stage refuses or lets through
// unchecked. code is one of the Code* constants or "rate_limit_fail_open".
type RejectFunc func(r *http.Request, code string)

// Config selects and configures the stages. A nil stage field disables
// that stage.
type Config struct {
	CORS      *CORSPolicy
	CSRF      TokenVerifier
	RateLimit *RateLimitConfig

	Logger   *slog.Logger
	Metrics  *Metrics
	OnReject RejectFunc
	// Now is the clock used for Retry-After; defaults to time.Now.
	Now func() time.Time
}

// Pipeline builds guarded handlers from a shared Config. Build one at
// startup and reuse it for every route group.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "guard")
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Wrap returns h guarded by every enabled stage, rate limited under tier.
// It panics if rate limiting is enabled and tier has no policy, since that
// is a wiring mistake.
func (p *Pipeline) Wrap(h http.Handler, tier ratelimit.Tier) http.Handler {
	if p.cfg.RateLimit != nil {
		if _, err := p.cfg.RateLimit.Limiter.Policy(tier); err != nil {
			panic("guard: " + err.Error())
		}
		h = p.rateLimit(h, tier)
	}
	if p.cfg.CSRF != nil {
		h = p.csrf(h)
	}
	if p.cfg.CORS != nil {
		h = p.cors(h)
	}
	return h
}

// Middleware adapts Wrap for router.Use.
func (p *Pipeline) Middleware(tier ratelimit.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return p.Wrap(next, tier)
	}
}

func (p *Pipeline) reject(r *http.Request, code string) {
	if p.cfg.OnReject != nil {
		p.cfg.OnReject(r, code)
	}
}

// Preflight answers CORS preflight requests before routing. Routers that
// register handlers per method never match OPTIONS, so the CORS stage
// inside Wrap would not see them. Other requests pass through.
func (p *Pipeline) Preflight(next http.Handler) http.Handler {
	if p.cfg.CORS == nil {
		return next
	}
	answer := p.cors(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			answer.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
