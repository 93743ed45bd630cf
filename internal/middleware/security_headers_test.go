package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS on plain HTTP = %q, want empty", got)
	}
}

func TestSecurityHeadersMiddleware_HSTS(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	direct := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	direct.TLS = &tls.ConnectionState{}

	proxied := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")

	for name, req := range map[string]*http.Request{"tls": direct, "forwarded": proxied} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if got := w.Header().Get("Strict-Transport-Security"); got != hstsValue {
			t.Errorf("%s: Strict-Transport-Security = %q, want %q", name, got, hstsValue)
		}
	}
}
