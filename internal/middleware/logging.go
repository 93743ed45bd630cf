package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

var requestInfoContextKey = contextKey("request_info")

// requestInfo は内側のミドルウェアが判明させた情報をアクセスログへ渡すための入れ物。
// Guardは新しいコンテキストを下流にしか渡せないため、ポインタ経由で共有する。
type requestInfo struct {
	mu     sync.Mutex
	userID int64
}

func (i *requestInfo) setUserID(id int64) {
	i.mu.Lock()
	i.userID = id
	i.mu.Unlock()
}

func (i *requestInfo) getUserID() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userID
}

// StatusObserver はレスポンスのステータスコードを受け取る。メトリクス収集に使う。
type StatusObserver interface {
	ObserveHTTPStatus(statusCode int)
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id（RequestIDの後に置いた場合）、user_id（認証済みの場合）を含む。
// observerがnilでなければステータスコードを通知する。
func NewLoggingMiddleware(logger *slog.Logger, observer StatusObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoContextKey, info)

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if userID := info.getUserID(); userID != 0 {
				args = append(args, slog.Int64("user_id", userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(ctx, level, "http_request", args...)

			if observer != nil {
				observer.ObserveHTTPStatus(rec.statusCode)
			}
		})
	}
}
