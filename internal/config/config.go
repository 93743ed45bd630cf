// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// JWT
	JWTSecret        string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	// Password
	BcryptCost int // 0はbcryptの既定値

	// Rate Limit（1分あたりの回数）
	RateLimitAuthPerMin    int
	RateLimitGeneralPerMin int

	// Worker
	SessionSweepInterval time.Duration
	WorkerMetricsPort    string // 空の場合ワーカーは/metricsを公開しない

	// Server
	ServerPort string
	AppURL     string

	// CORS
	CORSAllowedOrigin string

	// Seed
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// LoadDotEnv は.envファイルを読み込み、未設定の環境変数だけを補う。
// パス未指定時はカレントディレクトリの.envを読む。ファイルが存在しなければ何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %v: %w", existing, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定または解析できない場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}

	accessRaw := os.Getenv("JWT_ACCESS_EXPIRATION")
	if accessRaw == "" {
		missing = append(missing, "JWT_ACCESS_EXPIRATION")
	}

	refreshRaw := os.Getenv("JWT_REFRESH_EXPIRATION")
	if refreshRaw == "" {
		missing = append(missing, "JWT_REFRESH_EXPIRATION")
	}

	dbURL, dbMissing := databaseURLFromEnv()
	cfg.DatabaseURL = dbURL
	missing = append(missing, dbMissing...)

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	var err error
	if cfg.AccessTTL, err = ParseTTL(accessRaw); err != nil {
		return nil, fmt.Errorf("invalid JWT_ACCESS_EXPIRATION: %w", err)
	}
	if cfg.RefreshTTL, err = ParseTTL(refreshRaw); err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION: %w", err)
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 0)
	cfg.RateLimitAuthPerMin = getEnvInt("RATE_LIMIT_AUTH_PER_MIN", 10)
	cfg.RateLimitGeneralPerMin = getEnvInt("RATE_LIMIT_GENERAL_PER_MIN", 120)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour)
	cfg.WorkerMetricsPort = os.Getenv("WORKER_METRICS_PORT")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AppURL = getEnvString("APP_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "admin@example.com")
	cfg.AdminPassword = os.Getenv("ADMIN_PASS_SEED")
	cfg.AdminName = getEnvString("ADMIN_NAME", "Admin User")

	return cfg, nil
}

// databaseURLFromEnv はDATABASE_URL、なければDB_*の組から接続URLを組み立てる。
// 不足している環境変数名を併せて返す。
func databaseURLFromEnv() (string, []string) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}

	keys := []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASS", "DB_NAME"}
	values := make(map[string]string, len(keys))
	var missing []string
	for _, k := range keys {
		values[k] = os.Getenv(k)
		if values[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == len(keys) {
		return "", []string{"DATABASE_URL"}
	}
	if len(missing) > 0 {
		return "", missing
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(values["DB_USER"], values["DB_PASS"]),
		Host:     net.JoinHostPort(values["DB_HOST"], values["DB_PORT"]),
		Path:     "/" + values["DB_NAME"],
		RawQuery: "sslmode=" + url.QueryEscape(getEnvString("DB_SSLMODE", "disable")),
	}
	return u.String(), nil
}

// ParseTTL は有効期間の文字列を解析する。
// Goのduration表記（"15m"）、日数（"7d"）、秒数のみ（"900"）を受け付ける。
func ParseTTL(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("empty duration")
	}

	var d time.Duration
	switch {
	case strings.HasSuffix(v, "d"):
		days, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		d = time.Duration(days) * 24 * time.Hour
	case isDigits(v):
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds %q", v)
		}
		d = time.Duration(secs) * time.Second
	default:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, err
		}
		d = parsed
	}

	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", v)
	}
	return d, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := ParseTTL(v)
	if err != nil {
		return defaultVal
	}
	return d
}
