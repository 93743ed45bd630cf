package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

// bearerChallenge は401応答に付けるWWW-Authenticateの値。
const bearerChallenge = `Bearer realm="almuetasim"`

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusCode はAPIErrorのコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusCode(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmailAlreadyRegistered:
		return http.StatusConflict
	case model.ErrCodeInvalidCredentials, model.ErrCodeAccessDenied:
		return http.StatusUnauthorized
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はコードから決まるステータスで統一エラーフォーマットを書き込む。
// 401の場合はWWW-Authenticateヘッダーを付ける。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	status := StatusCode(apiErr)

	h := w.Header()
	h.Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", bearerChallenge)
	}
	w.WriteHeader(status)

	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}
