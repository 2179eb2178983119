package app

import (
	"context"
	"database/sql"
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

	"github.com/hitoshi/talkbox/internal/auth"
	"github.com/hitoshi/talkbox/internal/config"
	"github.com/hitoshi/talkbox/internal/database"
	"github.com/hitoshi/talkbox/internal/docstore"
	"github.com/hitoshi/talkbox/internal/docstore/memstore"
	"github.com/hitoshi/talkbox/internal/docstore/pgstore"
	"github.com/hitoshi/talkbox/internal/docstore/surrealstore"
	"github.com/hitoshi/talkbox/internal/handler"
	"github.com/hitoshi/talkbox/internal/logger"
	"github.com/hitoshi/talkbox/internal/metrics"
	"github.com/hitoshi/talkbox/internal/middleware"
	"github.com/hitoshi/talkbox/internal/repository"
	"github.com/hitoshi/talkbox/internal/security"
	"github.com/hitoshi/talkbox/internal/sessioncache"
	"github.com/hitoshi/talkbox/internal/user"
	"github.com/hitoshi/talkbox/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
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
		slog.String("docstore_backend", cfg.DocstoreBackend),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はPostgreSQLに接続し、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openDocstore は設定されたバックエンドのドキュメントストアを開く。
// 返り値のclose関数はプロセス終了時に呼び出す。
func openDocstore(ctx context.Context, cfg *config.Config, db *sql.DB) (docstore.Store, func(), error) {
	switch cfg.DocstoreBackend {
	case config.BackendSurrealDB:
		store, err := surrealstore.Connect(ctx, surrealstore.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNS,
			Database:  cfg.SurrealDBDB,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPassword,
			MaxBatch:  cfg.DocstoreMaxBatch,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				slog.Warn("failed to close SurrealDB connection", slog.String("error", err.Error()))
			}
		}, nil
	case config.BackendMemory:
		slog.Warn("using in-memory document store; data is lost on restart")
		return memstore.New(cfg.DocstoreMaxBatch), func() {}, nil
	default:
		return pgstore.New(db, cfg.DocstoreMaxBatch), func() {}, nil
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	store, closeStore, err := openDocstore(context.Background(), cfg, db)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer closeStore()

	// 2. リポジトリとセッションキャッシュの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	sessionCache := sessioncache.New(sessionRepo, cfg.SessionCacheSize, cfg.SessionCacheTTL)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(
		credRepo, sessionRepo, store, security.NewDisplayNameSanitizer(),
		auth.ServiceConfig{
			SessionMaxAge:    cfg.SessionMaxAge,
			RecentAuthWindow: cfg.ReauthMaxAge,
		},
	)
	accountService := user.NewService(authService, store, sessionCache, collector)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSensitive),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:             slog.Default(),
		HTTPStatusRecorder: collector,
		SessionFinder:      sessionCache,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AuthService: handler.NewAuthServiceAdapter(authService, sessionCache),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		AccountService: handler.NewAccountServiceAdapter(accountService),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	runPeriodically(ctx, cfg.SessionCleanupInterval, cleanupJob.Run)

	slog.Info("worker stopped gracefully")
	return nil
}

// runPeriodically は起動直後に1回、その後はinterval毎にjobを実行する。
// ctxがキャンセルされるまでブロックする。
func runPeriodically(ctx context.Context, interval time.Duration, job func(context.Context) error) {
	if err := job(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// ドキュメントストア用のテーブルもPostgreSQLバックエンドのために作成する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
