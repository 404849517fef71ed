package middleware

import (
	"net"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// ProxyHeaders rewrites RemoteAddr from proxy headers when trust is set.
// CF-Connecting-IP takes precedence over the headers chi's RealIP reads
// (True-Client-IP, X-Real-IP, X-Forwarded-For). Without trust the headers
// are ignored, since any client can set them.
func ProxyHeaders(trust bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !trust {
			return next
		}
		realIP := chimiddleware.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); net.ParseIP(ip) != nil {
				r.RemoteAddr = ip
				next.ServeHTTP(w, r)
				return
			}
			realIP.ServeHTTP(w, r)
		})
	}
}
