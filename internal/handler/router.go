package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/journeyconnect/internal/metrics"
	"github.com/hitoshi/journeyconnect/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.HTTPStatusRecorder

	// 認証
	AuthService  AuthServiceInterface
	CookieSecure bool
	CookieDomain string

	// 掲載
	ListingStore      ListingStoreInterface
	ListingService    ListingServiceInterface
	RouteAnalyzer     RouteAnalyzerInterface
	DiscoveryRecorder DiscoveryRecorder

	// 意味検索
	SemanticSearcher SemanticSearcher

	// 列車情報
	TrainService TrainInfoService

	// ヘルスチェック
	SheetHealth HealthChecker
	CacheHealth HealthChecker

	// メトリクス
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS →
//	  （認証ルートのみ）Session → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）、/health、/metrics、/api/csrf-token は
// セッションチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 全ルート共通のミドルウェア。パニック回復を最外殻に置く
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.CookieSecure, deps.CookieDomain)
	listingHandler := NewListingHandler(deps.ListingStore, deps.ListingService, deps.RouteAnalyzer, deps.DiscoveryRecorder)
	searchHandler := NewSearchHandler(deps.ListingStore, deps.SemanticSearcher)
	trainHandler := NewTrainHandler(deps.TrainService)
	healthHandler := NewHealthHandler(deps.SheetHealth, deps.CacheHealth)

	// --- 認証不要のルート ---

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// 死活監視
	r.Get("/health", healthHandler.Check)

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// CSRFトークン取得（認証前のフロントエンド初期化で呼ばれる）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// 掲載管理
		r.Route("/api/listings", func(r chi.Router) {
			r.Get("/", listingHandler.Search)

			// POST /api/listings - 掲載公開（公開専用レート制限を追加）
			r.With(deps.RateLimiter.PublishMiddleware()).Post("/", listingHandler.Publish)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", listingHandler.Get)
				r.Delete("/", listingHandler.Delete)
			})
		})

		// 意味検索（明示的な送信操作でのみ呼ばれる）
		r.Post("/api/search", searchHandler.Search)

		// 列車情報
		r.Get("/api/trains/{number}", trainHandler.Lookup)
		r.Post("/api/parse", trainHandler.Parse)
	})

	return r
}
