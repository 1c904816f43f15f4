// Package app は設定の読み込みから依存関係のワイヤリング、サーバーの起動までを担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/userauth/internal/auth"
	"github.com/hitoshi/userauth/internal/config"
	"github.com/hitoshi/userauth/internal/database"
	"github.com/hitoshi/userauth/internal/handler"
	"github.com/hitoshi/userauth/internal/logger"
	"github.com/hitoshi/userauth/internal/mailer"
	"github.com/hitoshi/userauth/internal/metrics"
	"github.com/hitoshi/userauth/internal/middleware"
	"github.com/hitoshi/userauth/internal/repository"
	"github.com/hitoshi/userauth/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.DefaultRedactFields...)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたマスク対象でロガーを差し替える
	logger.SetupDefault(w, cfg.LogRedactFields...)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "5000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("addr", cfg.Addr()),
		slog.String("auth_type", cfg.AuthType),
	)

	// SIGINTまたはSIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、接続確認とマイグレーションを行う。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, database.Dialect, error) {
	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}

	retries := max(cfg.DBConnectRetries, 0)
	if err := database.PingWithRetry(ctx, db, uint64(retries)); err != nil {
		db.Close()
		return nil, "", err
	}

	slog.Info("database connection established",
		slog.String("dialect", string(dialect)),
		slog.String("database_url", database.MaskURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(db, dialect); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("migration failed: %w", err)
	}

	return db, dialect, nil
}

// buildRouter は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 返されるcleanupはレートリミッターのバックグラウンド処理を停止する。
func buildRouter(cfg *config.Config, db *sql.DB, dialect database.Dialect, reg *prometheus.Registry) (http.Handler, func()) {
	// 1. リポジトリとメトリクス
	userRepo := repository.NewSQLUserRepo(db, dialect)
	collector := metrics.NewCollector(reg)

	// 2. 認証サービス
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	opts := []auth.ServiceOption{auth.WithMetrics(collector)}
	if cfg.MailEnabled() {
		opts = append(opts, auth.WithResetNotifier(mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})))
		slog.Info("reset token mail enabled", slog.String("smtp_host", cfg.SMTPHost))
	}
	authService := auth.NewService(userRepo, hasher, opts...)

	// 3. /api/v1 の認証方式
	var authenticator middleware.UserResolver
	switch cfg.AuthType {
	case config.AuthTypeBasic:
		authenticator = auth.NewBasicAuth(userRepo, hasher)
	default:
		authenticator = auth.NewSessionAuth(authService, cfg.SessionName)
	}

	// 4. レートリミッター
	loginLimiter := middleware.NewRateLimiter(middleware.PerMinute("login", cfg.RateLimitLogin))
	resetLimiter := middleware.NewRateLimiter(middleware.PerMinute("reset_password", cfg.RateLimitReset))

	// 5. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			SessionName:   cfg.SessionName,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Authenticator: authenticator,
		PathMatcher:   auth.RequireAuth,

		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		LoginLimiter:      loginLimiter,
		ResetLimiter:      resetLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		Sanitizer:         security.NewEchoSanitizer(),

		DB:             db,
		MetricsHandler: metrics.Handler(reg),
	})

	cleanup := func() {
		loginLimiter.Stop()
		resetLimiter.Stop()
	}
	return router, cleanup
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, dialect, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	router, cleanup := buildRouter(cfg, db, dialect, newRegistry())
	defer cleanup()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, server, cfg.ShutdownTimeout)
}

// serve はHTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", database.MaskURL(cfg.DatabaseURL)),
	)

	db, _, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
