package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/safwat-fathi/almuetasim-api/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → X-Request-Id → SecurityHeaders → CORS
//
// /auth/signup と /auth/login はクライアントIP単位のレート制限、
// /auth/refresh と /auth/logout はリフレッシュ用Guard、
// それ以外の認証必須ルートはアクセス用Guardを通す。
// /api/* はさらにユーザー単位のレート制限を通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(requestIDHeader)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	accessGuard := middleware.NewAccessGuard(deps.TokenVerifier)
	refreshGuard := middleware.NewRefreshGuard(deps.TokenVerifier)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
		})

		// リフレッシュトークンを要求するルート
		r.Group(func(r chi.Router) {
			r.Use(refreshGuard)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		// アクセストークンを要求するルート
		r.Group(func(r chi.Router) {
			r.Use(accessGuard)
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Get("/me", authHandler.Me)
		})
	})

	// --- 認証が必要なAPI ---
	// ミドルウェアスタック: AccessGuard → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(accessGuard)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// requestIDHeader は採番済みのリクエストIDをレスポンスヘッダーに返す。
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimiddleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
