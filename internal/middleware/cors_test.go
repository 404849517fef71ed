package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		origin        string
		method        string
		preflight     bool
		wantStatus    int
		wantAllowed   string
		wantNextCalls bool
	}{
		{"allowed origin", "https://profile.example", http.MethodPost, false, http.StatusOK, "https://profile.example", true},
		{"disallowed origin passes without headers", "https://evil.example", http.MethodPost, false, http.StatusOK, "", true},
		{"disallowed preflight", "https://evil.example", http.MethodOptions, true, http.StatusForbidden, "", false},
		{"allowed preflight", "https://profile.example", http.MethodOptions, true, http.StatusNoContent, "https://profile.example", false},
		{"plain OPTIONS is not a preflight", "https://profile.example", http.MethodOptions, false, http.StatusOK, "https://profile.example", true},
		{"case insensitive", "HTTPS://PROFILE.EXAMPLE", http.MethodGet, false, http.StatusOK, "HTTPS://PROFILE.EXAMPLE", true},
		{"wildcard subdomain", "https://shop.links.example", http.MethodGet, false, http.StatusOK, "https://shop.links.example", true},
		{"wildcard needs a label", "https://.links.example", http.MethodGet, false, http.StatusOK, "", true},
		{"wildcard excludes apex", "https://links.example", http.MethodGet, false, http.StatusOK, "", true},
		{"no origin", "", http.MethodGet, false, http.StatusOK, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = []string{"https://profile.example", "*.links.example"}

			called := false
			h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/redirect", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
			if called != tt.wantNextCalls {
				t.Errorf("next called = %v, want %v", called, tt.wantNextCalls)
			}
			if tt.origin != "" && rec.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_PreflightHeaders(t *testing.T) {
	t.Parallel()

	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://profile.example"}
	h := CORS(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://profile.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	for _, header := range []string{
		"Access-Control-Allow-Methods",
		"Access-Control-Allow-Headers",
		"Access-Control-Max-Age",
		"Access-Control-Expose-Headers",
	} {
		if rec.Header().Get(header) == "" {
			t.Errorf("%s not set on preflight", header)
		}
	}
}
