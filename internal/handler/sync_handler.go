// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/worker/ingest"
)

// SyncServiceInterface は取り込みハンドラーが必要とするオーケストレータのインターフェース。
type SyncServiceInterface interface {
	// TriggerRunExcluding は指定プラットフォームを除外した取り込みを非同期で開始する。
	TriggerRunExcluding(excluded []model.Platform) error
	// IsRunning は取り込みサイクルが実行中かを返す。
	IsRunning() bool
	// LastCompletedAt は直近に完了したサイクルの時刻を返す。未完了の場合はnil。
	LastCompletedAt() *time.Time
}

// SyncHandler は取り込みサイクルのHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{service: service}
}

// syncStatusResponse は取り込み状態のレスポンス。
type syncStatusResponse struct {
	Running bool `json:"running"`
}

// syncLastUpdateResponse は直近完了時刻のレスポンス。
type syncLastUpdateResponse struct {
	LastCompletedAt *time.Time `json:"last_completed_at"`
}

// TriggerSync は取り込みサイクルを開始する。
// POST /api/sync/run?exclude=luogu,hdu
// 開始を受け付けた時点で202を返す（完了は待たない）。
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var excluded []model.Platform
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			platform, err := model.ParsePlatform(name)
			if err != nil {
				writeAPIErrorResponse(w, http.StatusBadRequest, model.NewUnknownPlatformError(name))
				return
			}
			excluded = append(excluded, platform)
		}
	}

	if err := h.service.TriggerRunExcluding(excluded); err != nil {
		if errors.Is(err, ingest.ErrSyncInProgress) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewSyncInProgressError())
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// GetStatus は取り込みサイクルの実行状態を返す。
// GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(syncStatusResponse{Running: h.service.IsRunning()})
}

// GetLastUpdate は直近に完了した取り込みサイクルの時刻を返す。
// GET /api/sync/last-update
func (h *SyncHandler) GetLastUpdate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(syncLastUpdateResponse{LastCompletedAt: h.service.LastCompletedAt()})
}

// --- 共通ヘルパー ---

// apiErrorResponse はAPIエラーレスポンスのボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case "USER_NOT_FOUND":
		return http.StatusNotFound
	case "UNKNOWN_PLATFORM":
		return http.StatusBadRequest
	case "SYNC_IN_PROGRESS":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
