// Package app はアプリケーションの初期化とエントリーポイントを提供する。
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

	"github.com/hitoshi/ojtracker/internal/catalog"
	"github.com/hitoshi/ojtracker/internal/config"
	"github.com/hitoshi/ojtracker/internal/crawler"
	"github.com/hitoshi/ojtracker/internal/database"
	"github.com/hitoshi/ojtracker/internal/handler"
	"github.com/hitoshi/ojtracker/internal/logger"
	"github.com/hitoshi/ojtracker/internal/metrics"
	"github.com/hitoshi/ojtracker/internal/middleware"
	"github.com/hitoshi/ojtracker/internal/projection"
	"github.com/hitoshi/ojtracker/internal/repository"
	"github.com/hitoshi/ojtracker/internal/token"
	"github.com/hitoshi/ojtracker/internal/worker/ingest"
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

// pipeline は取り込みサイクルと射影の全依存関係をまとめた構造体。
type pipeline struct {
	orchestrator *ingest.Orchestrator
	rebuilder    *projection.Rebuilder
	rebuildCh    chan struct{}
	userRepo     *repository.PostgresUserRepo
	linkRepo     *repository.PostgresLinkRepo
	problemRepo  *repository.PostgresProblemRepo
	registry     *crawler.Registry
	collector    *metrics.Collector
}

// buildPipeline はDB接続から取り込み・射影の依存関係をワイヤリングする。
// serveモードとworkerモードで共通。
func buildPipeline(db *sql.DB, cfg *config.Config, reg prometheus.Registerer) (*pipeline, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	attemptRepo := repository.NewPostgresAttemptRepo(db)
	problemRepo := repository.NewPostgresProblemRepo(db)
	linkRepo := repository.NewPostgresLinkRepo(db)
	rowRepo := repository.NewPostgresAttemptRowRepo(db)

	// 2. メトリクスコレクタ
	collector := metrics.NewCollector(reg)

	// 3. クローラの初期化
	// SSRF対策済みHTTPクライアントを全アダプタで共有する
	httpClient := crawler.NewSafeHTTPClient(cfg.FetchTimeout)
	client := crawler.NewClient(httpClient, slog.Default(), cfg.FetchMaxSize)

	registry := crawler.NewRegistry()
	adapters := []crawler.Adapter{
		crawler.NewCodeforcesAdapter(client, slog.Default()),
		crawler.NewLeetCodeAdapter(client, slog.Default()),
		crawler.NewAtCoderAdapter(client, slog.Default()),
		crawler.NewLuoguAdapter(client, slog.Default()),
		crawler.NewHDUAdapter(client, slog.Default()),
		crawler.NewPOJAdapter(client, slog.Default()),
	}
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			return nil, fmt.Errorf("failed to register adapter: %w", err)
		}
	}

	// 4. オーケストレータと射影の初期化
	rebuildCh := make(chan struct{}, 1)
	orchestrator := ingest.NewOrchestrator(
		registry, userRepo, attemptRepo, problemRepo, linkRepo,
		collector, slog.Default(),
		ingest.Config{
			MaxConcurrent:    cfg.SyncMaxConcurrent,
			TaskTimeout:      cfg.SyncTaskTimeout,
			GlobalTimeout:    cfg.SyncGlobalTimeout,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			RetryBaseDelay:   cfg.RetryBaseDelay,
		},
		rebuildCh,
	)
	rebuilder := projection.NewRebuilder(attemptRepo, rowRepo, collector, slog.Default())

	return &pipeline{
		orchestrator: orchestrator,
		rebuilder:    rebuilder,
		rebuildCh:    rebuildCh,
		userRepo:     userRepo,
		linkRepo:     linkRepo,
		problemRepo:  problemRepo,
		registry:     registry,
		collector:    collector,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 手動トリガーの取り込みと射影再構築もこのプロセスで実行される。
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

	// 2. 取り込みパイプラインのワイヤリング
	promReg := prometheus.NewRegistry()
	p, err := buildPipeline(db, cfg, promReg)
	if err != nil {
		return err
	}

	// 3. トークン管理サービスと問題カタログ取り込みサービス
	tokenService := token.NewService(p.registry, p.linkRepo, slog.Default())
	catalogService := catalog.NewService(p.registry, p.linkRepo, p.problemRepo, slog.Default())

	// 4. 射影再構築ワーカーをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.rebuilder.Worker(ctx, p.rebuildCh)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SyncRate = rate.Limit(float64(cfg.RateLimitSync) / 60.0)
	rateLimiterCfg.SyncBurst = cfg.RateLimitSync
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		SyncService:    p.orchestrator,
		UserFinder:     p.userRepo,
		AttemptPager:   p.rebuilder,
		TokenService:   tokenService,
		CatalogService: catalogService,

		MetricsHandler: metrics.Handler(promReg),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、取り込みスケジューラと射影再構築ワーカーを起動する。
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

	// 2. 取り込みパイプラインのワイヤリング
	p, err := buildPipeline(db, cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}

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
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 射影再構築ワーカーをバックグラウンドで起動
	go p.rebuilder.Worker(ctx, p.rebuildCh)

	// 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := ingest.NewScheduler(p.orchestrator, slog.Default())
	scheduler.Start(ctx, cfg.SyncInterval)

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
