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
	"golang.org/x/time/rate"

	"github.com/hitoshi/shopsync/internal/auth"
	"github.com/hitoshi/shopsync/internal/config"
	"github.com/hitoshi/shopsync/internal/database"
	"github.com/hitoshi/shopsync/internal/handler"
	"github.com/hitoshi/shopsync/internal/lazada"
	"github.com/hitoshi/shopsync/internal/logger"
	"github.com/hitoshi/shopsync/internal/metrics"
	"github.com/hitoshi/shopsync/internal/middleware"
	"github.com/hitoshi/shopsync/internal/notification"
	"github.com/hitoshi/shopsync/internal/product"
	"github.com/hitoshi/shopsync/internal/repository"
	"github.com/hitoshi/shopsync/internal/store"
	"github.com/hitoshi/shopsync/internal/token"
	"github.com/hitoshi/shopsync/internal/user"
	syncpkg "github.com/hitoshi/shopsync/internal/worker/sync"
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
	cmd := ParseCommand(args)

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
		slog.String("env", cfg.Env),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はDB接続の上に組み立てたドメインサービス一式。
// serveとworkerで共通のワイヤリングをまとめる。
type services struct {
	registry   *prometheus.Registry
	storeRepo  repository.StoreRepository
	storeSvc   *store.Service
	productSvc *product.Service
}

// buildMarketplaceServices はストア・商品まわりの依存関係をワイヤリングする。
func buildMarketplaceServices(cfg *config.Config, db *sql.DB) *services {
	storeRepo := repository.NewPostgresStoreRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	factory := lazada.NewFactory(lazada.Config{
		AppKey:     cfg.LazadaAppKey,
		AppSecret:  cfg.LazadaAppSecret,
		HTTPClient: &http.Client{Timeout: cfg.LazadaTimeout},
		Logger:     slog.Default(),
	})

	storeSvc := store.NewService(
		storeRepo,
		store.NewLazadaFactory(factory),
		collector,
		slog.Default(),
		cfg.AuthRedirectURLBase+"/lazada",
	)
	productSvc := product.NewService(productRepo, storeSvc, collector, slog.Default(), cfg.PullPageSize)

	return &services{
		registry:   registry,
		storeRepo:  storeRepo,
		storeSvc:   storeSvc,
		productSvc: productSvc,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリとサービスの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	tokenSvc := token.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	notifier := notification.NewLogNotifier(slog.Default())

	authSvc := auth.NewService(userRepo, tokenSvc, notifier)
	userSvc := user.NewService(userRepo, slog.Default())
	mp := buildMarketplaceServices(cfg, db)

	// 3. レート制限（configはreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PullRate = rate.Limit(float64(cfg.RateLimitPull) / 60.0)
	rateLimiterCfg.PullBurst = cfg.RateLimitPull
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Authenticator:     authSvc,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:  slog.Default(),
		Metrics: metrics.Handler(mp.registry),

		AuthService: authSvc,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			CookieMaxAge: time.Duration(cfg.CookieMaxAge) * time.Second,
		},

		UserService:    userSvc,
		StoreService:   mp.storeSvc,
		ProductService: mp.productSvc,
		StoreConfig: handler.StoreHandlerConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

// runWorker は同期ワーカーモードで起動する。
// DB接続を開き、商品同期スケジューラを起動する。
// /metricsはワーカー自身のHTTPサーバーで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. サービスとスケジューラの初期化
	mp := buildMarketplaceServices(cfg, db)
	scheduler := syncpkg.NewScheduler(
		mp.storeRepo, mp.productSvc, slog.Default(),
		cfg.SyncInterval, cfg.SyncMaxConcurrent,
	)

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

	// 3. メトリクスサーバーをバックグラウンドで起動
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(mp.registry),
	}
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
