package handler

import (
	"context"
	"net/http"

	"github.com/safwat-fathi/almuetasim-api/internal/middleware"
	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/user"
)

// UserServiceInterface は退会処理を提供する。
type UserServiceInterface interface {
	Withdraw(ctx context.Context, userID int64) error
}

var _ UserServiceInterface = (*user.Service)(nil)

// UserHandler は認証済みユーザー自身のアカウント操作を扱う。
type UserHandler struct {
	service UserServiceInterface
}

func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Withdraw は全セッションを破棄してアカウントを論理削除する。成功時は204。
// 退会後も発行済みアクセストークンは期限まで署名上は有効だが、ユーザー不在として扱われる。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAccessDeniedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), identity.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
