package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	AuthRate        rate.Limit    // 認証エンドポイントのレート（req/sec）。クライアントIP単位
	AuthBurst       int           // 認証エンドポイントのバーストサイズ
	GeneralRate     rate.Limit    // 認証後API全般のレート（req/sec）。ユーザー単位
	GeneralBurst    int           // 認証後API全般のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig は1分あたりの許容回数からRateLimiterConfigを組み立てる。
// バーストは1分あたりの回数と同じにする。
func NewRateLimiterConfig(authPerMin, generalPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		AuthRate:        rate.Limit(float64(authPerMin) / 60.0),
		AuthBurst:       authPerMin,
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証エンドポイント 10 req/min/IP、API全般 120 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(10, 120)
}

// keyedLimiter はキー（IPやユーザーID）ごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキーごとのリミッター群。
type limiterSet struct {
	rate  rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{rate: r, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.RLock()
	kl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		kl.lastAccess = time.Now()
		s.mu.Unlock()
		return kl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if kl, exists := s.limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// evictIdle はttlを超えてアクセスのないエントリを削除する。
func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はクライアントIP単位（認証エンドポイント）と
// ユーザー単位（認証後API）の2種類のレート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	auth    *limiterSet
	general *limiterSet
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		auth:    newLimiterSet(config.AuthRate, config.AuthBurst),
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// AuthMiddleware はサインアップ・ログイン向けのクライアントIP単位のレート制限を返す。
// 総当たりによるパスワード推測を抑える。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.auth.get(ip).Allow() {
				writeRateLimitResponse(w, rl.config.AuthRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "auth"),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralMiddleware は認証後API全般のユーザー単位のレート制限を返す。
// アクセス用Guardの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewAccessDeniedError())
				return
			}

			if !rl.general.get(strconv.FormatInt(userID, 10)).Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.Int64("user_id", userID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthLimiterCount は管理中のIP単位リミッター数を返す。テスト用。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.auth.len()
}

// GeneralLimiterCount は管理中のユーザー単位リミッター数を返す。テスト用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.auth.evictIdle(now, ttl)
	rl.general.evictIdle(now, ttl)
}

// clientIP はリクエスト元のIPアドレスを返す。
// chiのRealIPミドルウェアを前段に置けばプロキシ経由でも実IPになる。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteAPIError(w, model.NewRateLimitExceededError())
}
