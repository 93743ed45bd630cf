package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout はDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はDBの疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。checkerがnilの場合はDB確認を省略する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health はサービスの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "skipped"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.checker.PingContext(ctx); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
}
