package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ojtracker/internal/catalog"
)

// CatalogServiceInterface はカタログ取り込みハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	// RefreshAll は全プラットフォームの問題カタログを取得してupsertする。
	RefreshAll(ctx context.Context) []catalog.RefreshResult
}

// CatalogHandler は問題カタログ取り込みのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// catalogRefreshResponse はカタログ取り込みのレスポンスボディ。
type catalogRefreshResponse struct {
	Results []catalog.RefreshResult `json:"results"`
}

// Refresh は全プラットフォームの問題カタログを同期的に取り込む。
// 1プラットフォームの失敗は結果に畳み込まれ、全体は200を返す。
// POST /api/admin/problems/refresh
func (h *CatalogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	results := h.service.RefreshAll(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(catalogRefreshResponse{Results: results})
}
