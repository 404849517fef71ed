package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProxyHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trust   bool
		headers map[string]string
		want    string
	}{
		{"untrusted ignores forwarded for", false, map[string]string{"X-Forwarded-For": "203.0.113.9"}, "192.0.2.1:5000"},
		{"untrusted ignores cloudflare", false, map[string]string{"CF-Connecting-IP": "203.0.113.9"}, "192.0.2.1:5000"},
		{"trusted forwarded for", true, map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"trusted real ip", true, map[string]string{"X-Real-IP": "203.0.113.10"}, "203.0.113.10"},
		{"cloudflare wins", true, map[string]string{"CF-Connecting-IP": "198.51.100.3", "X-Forwarded-For": "203.0.113.9"}, "198.51.100.3"},
		{"invalid cloudflare falls back", true, map[string]string{"CF-Connecting-IP": "not-an-ip", "X-Real-IP": "203.0.113.10"}, "203.0.113.10"},
		{"trusted without headers", true, nil, "192.0.2.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			h := ProxyHeaders(tt.trust)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:5000"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if seen != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", seen, tt.want)
			}
		})
	}
}
