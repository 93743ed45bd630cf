package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safwat-fathi/almuetasim-api/internal/middleware"
	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/token"
)

func newTestIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte("handler-access"),
		RefreshSecret: []byte("handler-refresh"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

// withIdentity はGuard通過後と同じ状態のリクエストを作る。
func withIdentity(r *http.Request, userID int64) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), model.Identity{UserID: userID, Email: "user@example.com"})
	return r.WithContext(ctx)
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}
