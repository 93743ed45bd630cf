package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	// Retry-Afterはレート制限時にフロントエンドから読めるよう公開する。
	corsExposeHeaders = "Retry-After, X-Request-Id"
	corsMaxAge        = "86400"
)

// NewCORSMiddleware は許可オリジンに対するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、"*" は全オリジンを許可する。
// 一致したオリジンだけをAccess-Control-Allow-Originに返し、一致しなければCORSヘッダーを付けない。
// トークンはAuthorizationヘッダーで送るため、Cookie送信（credentials）は許可しない。
// プリフライトリクエストには204で応答し、後続のハンドラーは呼ばない。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if allow, ok := origins.match(r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type originSet struct {
	any     bool
	origins map[string]struct{}
}

func parseOrigins(raw string) originSet {
	set := originSet{origins: make(map[string]struct{})}
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			set.any = true
		default:
			set.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	return set
}

// match は応答に使うAccess-Control-Allow-Originの値を返す。
func (s originSet) match(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	if s.any {
		return "*", true
	}
	if _, ok := s.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	return "", false
}
