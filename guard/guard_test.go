package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postcraft-hq/postcraft/csrf"
	"github.com/postcraft-hq/postcraft/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef-guard-tests"

// countingHandler records how many requests reached it.
type countingHandler struct{ calls int }

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

type failingAllower struct {
	panics bool
}

func (f failingAllower) Policy(tier ratelimit.Tier) (ratelimit.Policy, error) {
	return ratelimit.DefaultPolicies()[tier], nil
}

func (f failingAllower) Allow(context.Context, ratelimit.Tier, string) (ratelimit.Decision, error) {
	if f.panics {
		panic("boom")
	}
	return ratelimit.Decision{}, errors.New("store unavailable")
}

func newProtector(t *testing.T) *csrf.Protector {
	t.Helper()
	p, err := csrf.New([]byte(testSecret))
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

func newLimiter(limit int) *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.NewMemoryStore(), map[ratelimit.Tier]ratelimit.Policy{
		ratelimit.TierAPI:    {Name: ratelimit.TierAPI, Limit: limit, Window: time.Minute},
		ratelimit.TierStrict: {Name: ratelimit.TierStrict, Limit: limit, Window: time.Minute},
	})
}

func fullConfig(t *testing.T, limit int) Config {
	return Config{
		CORS:      DefaultCORSPolicy(OriginList("https://app.example.com")),
		CSRF:      newProtector(t),
		RateLimit: &RateLimitConfig{Limiter: newLimiter(limit)},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestPreflightNeverReachesHandler(t *testing.T) {
	base := &countingHandler{}
	h := New(fullConfig(t, 1)).Wrap(base, ratelimit.TierAPI)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/contact", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), CSRFHeader)
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"), "preflight must not consume quota")
	}
	assert.Equal(t, 0, base.calls)
}

func TestCSRF_MissingTokenRejected(t *testing.T) {
	base := &countingHandler{}
	h := New(Config{CSRF: newProtector(t)}).Wrap(base, ratelimit.TierStrict)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/onboarding/complete", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeCSRFTokenMissing, decodeError(t, rec).Error)
	assert.Equal(t, 0, base.calls)
}

func TestCSRF_InvalidTokenRejected(t *testing.T) {
	base := &countingHandler{}
	h := New(Config{CSRF: newProtector(t)}).Wrap(base, ratelimit.TierStrict)

	req := httptest.NewRequest(http.MethodDelete, "/x", nil)
	req.Header.Set(CSRFHeader, "not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeCSRFTokenInvalid, decodeError(t, rec).Error)
	assert.Equal(t, 0, base.calls)
}

func TestCSRF_ValidTokenAndSafeMethodsPass(t *testing.T) {
	protector := newProtector(t)
	base := &countingHandler{}
	h := New(Config{CSRF: protector}).Wrap(base, ratelimit.TierStrict)

	token, err := protector.Generate()
	require.NoError(t, err)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/x", nil)
		req.Header.Set(CSRFHeader, token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}
	assert.Equal(t, 6, base.calls)
}

func TestRateLimit_AllowsUpToLimitThenRejects(t *testing.T) {
	const limit = 4
	base := &countingHandler{}
	h := New(Config{RateLimit: &RateLimitConfig{Limiter: newLimiter(limit)}}).Wrap(base, ratelimit.TierAPI)

	prevRemaining := limit
	for i := 0; i < limit; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, strconv.Itoa(limit), rec.Header().Get("X-RateLimit-Limit"))
		remaining, err := strconv.Atoi(rec.Header().Get("X-RateLimit-Remaining"))
		require.NoError(t, err)
		assert.Less(t, remaining, prevRemaining)
		prevRemaining = remaining
		reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
		require.NoError(t, err)
		assert.Greater(t, reset, time.Now().Add(-time.Second).Unix())
	}
	assert.Equal(t, 0, prevRemaining)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)

	body := decodeError(t, rec)
	assert.Equal(t, CodeRateLimitExceeded, body.Error)
	assert.Equal(t, retryAfter, body.RetryAfter)
	assert.Equal(t, limit, base.calls)

	// A different client has its own counter.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "203.0.113.10:4000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_UserHeaderPartitionsCounters(t *testing.T) {
	base := &countingHandler{}
	h := New(Config{RateLimit: &RateLimitConfig{Limiter: newLimiter(1)}}).Wrap(base, ratelimit.TierAPI)

	for _, user := range []string{"alice", "bob"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(UserIDHeader, user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, user)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	for name, allower := range map[string]failingAllower{
		"error": {},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			var codes []string
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)
			base := &countingHandler{}
			h := New(Config{
				RateLimit: &RateLimitConfig{Limiter: allower},
				Metrics:   metrics,
				OnReject:  func(_ *http.Request, code string) { codes = append(codes, code) },
			}).Wrap(base, ratelimit.TierAPI)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, 1, base.calls)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
			assert.Equal(t, []string{CodeRateLimitFailOpen}, codes)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(stageRateLimit, "fail_open")))
		})
	}
}

func TestCSRFRejectionDoesNotConsumeQuota(t *testing.T) {
	cfg := fullConfig(t, 1)
	base := &countingHandler{}
	h := New(cfg).Wrap(base, ratelimit.TierStrict)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
		require.Equal(t, http.StatusForbidden, rec.Code)
	}

	token, err := cfg.CSRF.(*csrf.Protector).Generate()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(CSRFHeader, token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, base.calls)
}

func TestCORSHeadersOnRejections(t *testing.T) {
	base := &countingHandler{}
	h := New(fullConfig(t, 1)).Wrap(base, ratelimit.TierStrict)

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}

func TestDisabledStagesPassThrough(t *testing.T) {
	base := &countingHandler{}
	h := New(Config{}).Wrap(base, "no-such-tier")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, base.calls)
}

func TestWrapPanicsOnUnknownTier(t *testing.T) {
	p := New(Config{RateLimit: &RateLimitConfig{Limiter: newLimiter(1)}})
	assert.Panics(t, func() { p.Wrap(&countingHandler{}, ratelimit.TierContact) })
}

func TestMiddlewareMatchesWrap(t *testing.T) {
	base := &countingHandler{}
	h := New(Config{CSRF: newProtector(t)}).Middleware(ratelimit.TierAPI)(base)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/x", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
