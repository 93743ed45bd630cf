package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRecoveryMiddleware はハンドラー内のpanicを回収し、統一フォーマットの500を返すミドルウェアを返す。
// http.ErrAbortHandlerはnet/httpの接続中断用なので再送出する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", chimiddleware.GetReqID(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				WriteInternalServerError(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
