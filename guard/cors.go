package guard

import (
	"net/http"
	"strconv"
	"strings"
)

type originMode int

const (
	originsNone originMode = iota
	originsAny
	originsList
)

// Origins is the allow-list half of a CORS policy: any origin, no origin,
// or an exact-match set.
type Origins struct {
	mode originMode
	set  map[string]struct{}
}

// AnyOrigin allows every origin.
func AnyOrigin() Origins { return Origins{mode: originsAny} }

// NoOrigin denies every cross-origin request.
func NoOrigin() Origins { return Origins{mode: originsNone} }

// OriginList allows exactly the given origins (compared as strings).
func OriginList(origins ...string) Origins {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return Origins{mode: originsList, set: set}
}

// ParseOrigins reads "*" as AnyOrigin, an empty string as NoOrigin and
// anything else as a comma-separated OriginList.
func ParseOrigins(s string) Origins {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return NoOrigin()
	case "*":
		return AnyOrigin()
	}
	var list []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return OriginList(list...)
}

// Allows reports whether origin passes the allow-list.
func (o Origins) Allows(origin string) bool {
	switch o.mode {
	case originsAny:
		return true
	case originsList:
		_, ok := o.set[origin]
		return ok
	default:
		return false
	}
}

// CORSPolicy is the static CORS configuration for one deployment.
type CORSPolicy struct {
	AllowedOrigins   Origins
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
	// PreflightStatus is the status code of OPTIONS responses.
	PreflightStatus int
}

// DefaultCORSPolicy returns the standard policy for the given origins.
func DefaultCORSPolicy(origins Origins) *CORSPolicy {
	return &CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:  []string{"Content-Type", "Authorization", CSRFHeader, UserIDHeader},
		ExposedHeaders:  []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAgeSeconds:   86400,
		PreflightStatus: http.StatusOK,
	}
}

// allowOrigin computes the Access-Control-Allow-Origin value for origin.
// An empty value means the header is omitted.
func (p *CORSPolicy) allowOrigin(origin string) (value string, varies bool) {
	switch p.AllowedOrigins.mode {
	case originsAny:
		// "*" is not valid alongside credentials; echo the caller instead.
		if p.AllowCredentials {
			return origin, true
		}
		return "*", false
	case originsList:
		if p.AllowedOrigins.Allows(origin) {
			return origin, true
		}
		return "", true
	default:
		return "", false
	}
}

func (p *CORSPolicy) decorate(h http.Header, origin string) {
	value, varies := p.allowOrigin(origin)
	if varies {
		h.Add("Vary", "Origin")
	}
	if value != "" {
		h.Set("Access-Control-Allow-Origin", value)
	}
	if p.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// cors is the outermost stage. Preflight requests are answered here and
// never reach the inner stages or the handler.
func (p *Pipeline) cors(next http.Handler) http.Handler {
	policy := p.cfg.CORS
	status := policy.PreflightStatus
	if status == 0 {
		status = http.StatusOK
	}
	methods := strings.Join(policy.AllowedMethods, ", ")
	headers := strings.Join(policy.AllowedHeaders, ", ")
	exposed := strings.Join(policy.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(policy.MaxAgeSeconds)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		policy.decorate(h, origin)

		if r.Method == http.MethodOptions {
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			h.Set("Access-Control-Max-Age", maxAge)
			p.metrics.observe(stageCORS, "preflight")
			w.WriteHeader(status)
			return
		}

		if exposed != "" {
			h.Set("Access-Control-Expose-Headers", exposed)
		}
		next.ServeHTTP(w, r)
	})
}
