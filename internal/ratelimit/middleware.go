package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store              *Store
	KeyFn              KeyFunc
	TrustXForwardedFor bool
	RetryAfter         time.Duration
	// OnReject writes the rejection body. Defaults to a plain 429.
	OnReject http.HandlerFunc
}

// ClientKey keys requests by remote IP, or by the first X-Forwarded-For hop
// when trustXFF is set.
func ClientKey(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ClientKey(opts.TrustXForwardedFor)
	}
	if opts.OnReject == nil {
		opts.OnReject = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Store.Allow(opts.KeyFn(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(opts.RetryAfter.Seconds())))
				opts.OnReject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
