package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ojtracker/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 取り込み
	SyncService SyncServiceInterface

	// 試行履歴
	UserFinder   UserFinderInterface
	AttemptPager AttemptPagerInterface

	// トークン管理
	TokenService TokenServiceInterface

	// 問題カタログ取り込み
	CatalogService CatalogServiceInterface

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	syncHandler := NewSyncHandler(deps.SyncService)
	attemptHandler := NewAttemptHandler(deps.UserFinder, deps.AttemptPager)
	tokenHandler := NewTokenHandler(deps.TokenService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)

	// --- レート制限の外のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 取り込みサイクル
		r.Route("/api/sync", func(r chi.Router) {
			// POST /api/sync/run - 取り込み開始（トリガー専用レート制限を追加）
			r.With(deps.RateLimiter.SyncTriggerMiddleware()).Post("/run", syncHandler.TriggerSync)

			r.Get("/status", syncHandler.GetStatus)
			r.Get("/last-update", syncHandler.GetLastUpdate)
		})

		// 試行履歴
		r.Get("/api/attempts", attemptHandler.ListAttempts)

		// トークン管理
		r.Route("/api/admin/tokens", func(r chi.Router) {
			r.Get("/validate", tokenHandler.ValidateAll)

			r.Route("/{platform}", func(r chi.Router) {
				r.Get("/", tokenHandler.Validate)
				r.Put("/", tokenHandler.Update)
				r.Delete("/", tokenHandler.Delete)
				r.Get("/format", tokenHandler.GetFormat)
			})
		})

		// 問題カタログ取り込み
		r.Post("/api/admin/problems/refresh", catalogHandler.Refresh)
	})

	return r
}
