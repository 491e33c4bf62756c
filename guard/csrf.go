package guard

import (
	"net/http"
)

// csrfProtectedMethods are the methods that must carry a CSRF token.
var csrfProtectedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// csrf rejects mutating requests without a valid token. Safe methods
// (GET, HEAD, OPTIONS) pass through untouched.
func (p *Pipeline) csrf(next http.Handler) http.Handler {
	verifier := p.cfg.CSRF
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !csrfProtectedMethods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(CSRFHeader)
		if token == "" {
			p.logger.Warn("csrf token missing", "method", r.Method, "path", r.URL.Path)
			p.metrics.observe(stageCSRF, "missing")
			p.reject(r, CodeCSRFTokenMissing)
			writeGuardError(w, ErrCSRFTokenMissing, 0)
			return
		}
		if !verifier.Verify(token) {
			p.logger.Warn("csrf token invalid", "method", r.Method, "path", r.URL.Path)
			p.metrics.observe(stageCSRF, "invalid")
			p.reject(r, CodeCSRFTokenInvalid)
			writeGuardError(w, ErrCSRFTokenInvalid, 0)
			return
		}

		p.metrics.observe(stageCSRF, "passed")
		next.ServeHTTP(w, r)
	})
}
