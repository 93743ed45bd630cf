// Package app はプロセスの起動モードごとの依存関係の組み立てと実行を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/safwat-fathi/almuetasim-api/internal/auth"
	"github.com/safwat-fathi/almuetasim-api/internal/config"
	"github.com/safwat-fathi/almuetasim-api/internal/database"
	"github.com/safwat-fathi/almuetasim-api/internal/handler"
	"github.com/safwat-fathi/almuetasim-api/internal/logger"
	"github.com/safwat-fathi/almuetasim-api/internal/metrics"
	"github.com/safwat-fathi/almuetasim-api/internal/middleware"
	"github.com/safwat-fathi/almuetasim-api/internal/repository"
	"github.com/safwat-fathi/almuetasim-api/internal/security"
	"github.com/safwat-fathi/almuetasim-api/internal/token"
	"github.com/safwat-fathi/almuetasim-api/internal/user"
	"github.com/safwat-fathi/almuetasim-api/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envを読み込み、JSON構造化ログをセットアップしてから環境変数の設定を読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数が優先）
	dotEnvErr := config.LoadDotEnv()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	if dotEnvErr != nil {
		slog.Warn("failed to load .env file", slog.String("error", dotEnvErr.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		_ = config.LoadDotEnv()
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_url", cfg.AppURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newIssuer は設定からトークン発行器を生成する。
func newIssuer(cfg *config.Config) (*token.Issuer, error) {
	return token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. セキュリティとトークンの初期化
	hasher := security.NewHasher(cfg.BcryptCost)
	issuer, err := newIssuer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	// 4. メトリクス
	reg, collector := newMetricsRegistry()

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, issuer, hasher, auth.ServiceConfig{
		Sanitizer: security.NewProfileSanitizer(),
		Metrics:   collector,
	})
	userService := user.NewService(userRepo, sessionRepo, hasher)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitAuthPerMin, cfg.RateLimitGeneralPerMin),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusObserver:    collector,
		TokenVerifier:     issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       authService,
		UserService:       userService,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はHTTPサーバーを起動し、SIGINTまたはSIGTERMで停止する。
// 起動に失敗した場合はそのエラーを返す。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-stop:
	}

	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリとメトリクスの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	reg, collector := newMetricsRegistry()

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// メトリクス公開（任意）
	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	slog.Info("worker starting",
		slog.Duration("session_sweep_interval", cfg.SessionSweepInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(status.Version)),
	)
	return nil
}

// runSeed は初期管理者ユーザーを投入する。既に存在する場合は何もしない。
func runSeed(cfg *config.Config) error {
	if cfg.AdminPassword == "" {
		return errors.New("ADMIN_PASS_SEED is required for seed")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := user.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		security.NewHasher(cfg.BcryptCost),
	)

	created, err := svc.EnsureAdmin(context.Background(), user.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
	})
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("seed completed", slog.Bool("admin_created", created))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
