// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/safwat-fathi/almuetasim-api/internal/auth"
	"github.com/safwat-fathi/almuetasim-api/internal/middleware"
	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.AuthResult, error)
	Login(ctx context.Context, email, password string) (*model.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) (int64, error)
	CurrentUser(ctx context.Context, userID int64) (*model.User, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// signupRequest はサインアップリクエストのボディ。
// bcryptは72バイトを超えるパスワードを扱えないため上限を設ける。
type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// authResponse はサインアップ・ログイン成功時のレスポンス。
type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// tokenResponse はリフレッシュ成功時のレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type logoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// Signup はユーザー登録を処理する。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	result, err := h.service.Signup(r.Context(), auth.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Profile:  model.Profile{Name: req.Name, Phone: req.Phone},
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Refresh はリフレッシュトークンをローテーションし、新しいトークンペアを返す。
// POST /auth/refresh （リフレッシュ用Guardの後段）
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := middleware.RefreshTokenFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAccessDeniedError())
		return
	}

	pair, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout は提示されたリフレッシュトークンのセッションを破棄する。
// POST /auth/logout （リフレッシュ用Guardの後段）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := middleware.RefreshTokenFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAccessDeniedError())
		return
	}

	if err := h.service.Logout(r.Context(), refreshToken); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll はログインユーザーの全セッションを破棄する。
// POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAccessDeniedError())
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: revoked})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAccessDeniedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toAuthResponse(result *model.AuthResult) authResponse {
	return authResponse{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
}
