// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	identityContextKey     = contextKey("identity")
	refreshTokenContextKey = contextKey("refresh_token")
)

// TokenVerifier はトークンの署名・有効期限・種別を検証する。
type TokenVerifier interface {
	Verify(tokenString string, expected token.Type) (model.Identity, error)
}

// Guard はBearerトークンを検証してリクエストの通過可否を判定する。
// セッションストアは参照せず、署名と有効期限と種別のみで判定する。
type Guard struct {
	verifier TokenVerifier
	expected token.Type
}

// NewGuard は指定種別のトークンを要求するGuardを生成する。
func NewGuard(verifier TokenVerifier, expected token.Type) *Guard {
	return &Guard{verifier: verifier, expected: expected}
}

// Authenticate はトークンを検証し、認証済み主体を返す。
// 失敗理由にかかわらずACCESS_DENIEDを返す。
func (g *Guard) Authenticate(rawToken string) (model.Identity, error) {
	if rawToken == "" {
		return model.Identity{}, model.NewAccessDeniedError()
	}
	identity, err := g.verifier.Verify(rawToken, g.expected)
	if err != nil {
		return model.Identity{}, model.NewAccessDeniedError()
	}
	return identity, nil
}

// Middleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証に成功した場合はIdentityをコンテキストに注入し、
// リフレッシュ用のGuardでは生のトークンも注入する。
// 失敗した場合はハンドラーを呼ばずに401を返す。
func (g *Guard) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			identity, err := g.Authenticate(raw)
			if err != nil {
				slog.Debug("guard rejected request",
					slog.String("path", r.URL.Path),
					slog.String("expected_type", string(g.expected)),
				)
				WriteAPIError(w, model.NewAccessDeniedError())
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			if g.expected == token.TypeRefresh {
				ctx = context.WithValue(ctx, refreshTokenContextKey, raw)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAccessGuard はアクセストークンを要求するミドルウェアを返す。
func NewAccessGuard(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return NewGuard(verifier, token.TypeAccess).Middleware()
}

// NewRefreshGuard はリフレッシュトークンを要求するミドルウェアを返す。
// /auth/refresh と /auth/logout にのみ適用する。
func NewRefreshGuard(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return NewGuard(verifier, token.TypeRefresh).Middleware()
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// IdentityFromContext はリクエストコンテキストから認証済み主体を取得する。
// Guardを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.UserID == 0 {
		return model.Identity{}, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return identity.UserID, nil
}

// RefreshTokenFromContext はリフレッシュ用Guardが注入した生のトークンを取得する。
func RefreshTokenFromContext(ctx context.Context) (string, error) {
	raw, ok := ctx.Value(refreshTokenContextKey).(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("refresh token not found in context")
	}
	return raw, nil
}

// ContextWithIdentity はコンテキストに認証済み主体を注入する。
// ロギングミドルウェアの内側であれば、アクセスログにもユーザーIDが記録される。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.setUserID(identity.UserID)
	}
	return context.WithValue(ctx, identityContextKey, identity)
}
