// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
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

	"github.com/hitoshi/journeyconnect/internal/ai"
	"github.com/hitoshi/journeyconnect/internal/auth"
	"github.com/hitoshi/journeyconnect/internal/config"
	"github.com/hitoshi/journeyconnect/internal/database"
	"github.com/hitoshi/journeyconnect/internal/discovery"
	"github.com/hitoshi/journeyconnect/internal/handler"
	"github.com/hitoshi/journeyconnect/internal/listing"
	"github.com/hitoshi/journeyconnect/internal/logger"
	"github.com/hitoshi/journeyconnect/internal/metrics"
	"github.com/hitoshi/journeyconnect/internal/middleware"
	"github.com/hitoshi/journeyconnect/internal/normalize"
	"github.com/hitoshi/journeyconnect/internal/repository"
	"github.com/hitoshi/journeyconnect/internal/security"
	"github.com/hitoshi/journeyconnect/internal/sheet"
	"github.com/hitoshi/journeyconnect/internal/store"
	"github.com/hitoshi/journeyconnect/internal/transport"
	syncworker "github.com/hitoshi/journeyconnect/internal/worker/sync"
)

// canonicalTimezone は乗車日の解釈に使う正準タイムゾーン。
const canonicalTimezone = "Asia/Kolkata"

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
		slog.String("cache_backend", cfg.CacheBackend),
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

// core はサーバーとワーカーで共有するコンポーネント一式。
type core struct {
	store       *store.Store
	sheetClient *sheet.Client
	aiClient    *ai.Client
	cacheHealth handler.HealthChecker
	collector   *metrics.Collector
	registry    *prometheus.Registry
	loc         *time.Location
	close       func()
}

// buildCore は設定からコラボレータクライアント・キャッシュ・ストアを組み立てる。
func buildCore(cfg *config.Config) (*core, error) {
	loc, err := time.LoadLocation(canonicalTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", canonicalTimezone, err)
	}

	// 1. キャッシュバックエンドの選択
	var (
		cache       repository.ListingCache
		cacheHealth handler.HealthChecker
		closeFn     = func() {}
	)
	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		pgCache := repository.NewPostgresCache(db)
		cache = pgCache
		cacheHealth = pgCache
		closeFn = func() { db.Close() }

	case config.CacheBackendRedis:
		redisCache, err := repository.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")

		cache = redisCache
		cacheHealth = redisCache
		closeFn = func() { redisCache.Close() }

	default:
		cache = repository.NewMemoryCache()
	}

	// 2. セキュリティサービスとトランスポートの初期化
	urlGuard := security.NewURLGuard()
	for _, u := range []string{cfg.SheetAPIURL, cfg.AIBaseURL} {
		if err := urlGuard.ValidateURL(u); err != nil {
			closeFn()
			return nil, fmt.Errorf("collaborator URL rejected: %w", err)
		}
	}

	tc := transport.NewClient(
		urlGuard.NewSafeClient(cfg.RequestTimeout),
		transport.Policy{
			MaxRetries: cfg.RetryMax,
			BaseDelay:  cfg.RetryBaseDelay,
			Timeout:    cfg.RequestTimeout,
		},
		slog.Default(),
	)

	// 3. コラボレータクライアントの初期化
	sheetClient := sheet.NewClient(cfg.SheetAPIURL, tc, slog.Default())
	aiClient := ai.NewClient(cfg.AIBaseURL, tc, slog.Default())

	// 4. メトリクスとストアの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sanitizer := security.NewTextSanitizer()
	normalizer := normalize.NewNormalizer(loc, sanitizer)

	st := store.New(sheetClient, cache, normalizer, loc, slog.Default(), collector)

	return &core{
		store:       st,
		sheetClient: sheetClient,
		aiClient:    aiClient,
		cacheHealth: cacheHealth,
		collector:   collector,
		registry:    registry,
		loc:         loc,
		close:       closeFn,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	// 1. ドメインサービスの初期化
	listingService := listing.NewService(c.store, c.loc)
	authService := auth.NewService(c.sheetClient, auth.NewSessionStore())
	analyzer := discovery.NewAnalyzer(c.aiClient, cfg.RouteDebounce, slog.Default())

	// 2. レート制限の初期化（configはreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PublishRate = rate.Limit(float64(cfg.RateLimitPublish) / 60.0)
	rateLimiterCfg.PublishBurst = cfg.RateLimitPublish
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 3. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    c.collector,

		AuthService:  authService,
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,

		ListingStore:      c.store,
		ListingService:    listingService,
		RouteAnalyzer:     analyzer,
		DiscoveryRecorder: c.collector,

		SemanticSearcher: c.aiClient,
		TrainService:     c.aiClient,

		SheetHealth: c.sheetClient,
		CacheHealth: c.cacheHealth,

		MetricsGatherer: c.registry,
	}

	router := handler.NewRouter(deps)

	// 4. HTTPサーバーの起動
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

// runWorker はワーカーモードで起動する。
// 定期的にリモートの掲載台帳と再同期するスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	scheduler := syncworker.NewScheduler(c.store, slog.Default())

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
	)

	// 再同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.CacheBackend != config.CacheBackendPostgres {
		return fmt.Errorf("migrate requires CACHE_BACKEND=postgres, got %q", cfg.CacheBackend)
	}

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
