package guard

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/postcraft-hq/postcraft/ratelimit"
)

// CodeRateLimitFailOpen is reported to RejectFunc when the counter store
// could not be reached and the request was let through.
const CodeRateLimitFailOpen = "rate_limit_fail_open"

// rateLimit is the innermost stage. Counter store failures fail open: the
// request proceeds without rate-limit headers.
func (p *Pipeline) rateLimit(next http.Handler, tier ratelimit.Tier) http.Handler {
	cfg := p.cfg.RateLimit
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientKey(r, cfg.TrustedProxies)
		d, err := p.allow(r, cfg.Limiter, tier, key)
		if err != nil {
			p.logger.Warn("rate limiter unavailable, failing open",
				"tier", string(tier), "client_key", key, "error", err)
			p.metrics.observe(stageRateLimit, "fail_open")
			p.reject(r, CodeRateLimitFailOpen)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			secs := retryAfterSeconds(d.RetryAfter(p.now()))
			h.Set("Retry-After", strconv.Itoa(secs))
			p.logger.Info("rate limit exceeded", "tier", string(tier), "client_key", key)
			p.metrics.observe(stageRateLimit, "limited")
			p.reject(r, CodeRateLimitExceeded)
			writeGuardError(w, ErrRateLimitExceeded, secs)
			return
		}

		p.metrics.observe(stageRateLimit, "allowed")
		next.ServeHTTP(w, r)
	})
}

// allow converts a panicking limiter into an error so it is handled like
// any other store failure.
func (p *Pipeline) allow(r *http.Request, l Allower, tier ratelimit.Tier, key string) (d ratelimit.Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rate limiter panic: %v", rec)
		}
	}()
	return l.Allow(r.Context(), tier, key)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
