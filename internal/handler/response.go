package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/safwat-fathi/almuetasim-api/internal/middleware"
	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

// リクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

var validate = newValidator()

// newValidator はエラー表示にjsonタグ名を使うvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// userResponse はユーザー情報のAPIレスポンス。パスワード関連の項目は持たない。
type userResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Phone        string    `json:"phone"`
	ProfileImage string    `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		Phone:        u.Phone,
		ProfileImage: u.ProfileImage,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一フォーマットのレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// decodeRequest はJSONボディを読み込み、validateタグで検証する。
// 失敗時はレスポンス用のAPIErrorを返す。
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewInvalidRequestError()
	}

	if err := validate.Struct(dst); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			return model.NewValidationError(validationMessage(validateErrs))
		}
		return model.NewInvalidRequestError()
	}
	return nil
}

// validationMessage は検証エラーを利用者向けの文字列にまとめる。
func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		field := err.Field()
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is not valid", field))
		}
	}
	return strings.Join(msgs, ", ")
}
