package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/token"
)

// TokenServiceInterface はトークン管理ハンドラーが必要とするサービスインターフェース。
type TokenServiceInterface interface {
	// Validate は指定プラットフォームのトークンの有効性を検証する。
	Validate(ctx context.Context, platform model.Platform) (*model.TokenValidationResult, error)
	// ValidateAll は登録済み全プラットフォームのトークンを検証する。
	ValidateAll(ctx context.Context) map[model.Platform]*model.TokenValidationResult
	// UpdateToken はトークンを形式検証した上で保存する。
	UpdateToken(ctx context.Context, platform model.Platform, tok string) (*model.TokenFormatValidationResult, error)
	// DeleteToken は保存済みトークンを削除する。
	DeleteToken(ctx context.Context, platform model.Platform) error
	// Format はトークン形式の説明を返す。
	Format(ctx context.Context, platform model.Platform) (*token.FormatInfo, error)
}

// TokenHandler はトークン管理のHTTPハンドラー。
type TokenHandler struct {
	service TokenServiceInterface
}

// NewTokenHandler はTokenHandlerを生成する。
func NewTokenHandler(service TokenServiceInterface) *TokenHandler {
	return &TokenHandler{service: service}
}

// tokenUpdateRequest はトークン更新リクエストのボディ。
type tokenUpdateRequest struct {
	Token string `json:"token"`
}

// ValidateAll は全プラットフォームのトークンを検証する。
// GET /api/admin/tokens/validate
func (h *TokenHandler) ValidateAll(w http.ResponseWriter, r *http.Request) {
	results := h.service.ValidateAll(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Validate は指定プラットフォームのトークンを検証する。
// GET /api/admin/tokens/{platform}
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.parsePlatform(w, r)
	if !ok {
		return
	}

	result, err := h.service.Validate(r.Context(), platform)
	if err != nil {
		h.handleTokenError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Update はトークンを更新する。形式検証に失敗した場合は422を返す。
// PUT /api/admin/tokens/{platform}
func (h *TokenHandler) Update(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.parsePlatform(w, r)
	if !ok {
		return
	}

	var req tokenUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST_BODY",
			Message:  "リクエストボディを解析できません。",
			Category: "client",
			Action:   "JSONフォーマットを確認してください。",
		})
		return
	}

	result, err := h.service.UpdateToken(r.Context(), platform, req.Token)
	if err != nil {
		h.handleTokenError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !result.Valid {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(result)
}

// Delete はトークンを削除する。
// DELETE /api/admin/tokens/{platform}
func (h *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.parsePlatform(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteToken(r.Context(), platform); err != nil {
		h.handleTokenError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetFormat はトークン形式の説明を返す。
// GET /api/admin/tokens/{platform}/format
func (h *TokenHandler) GetFormat(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.parsePlatform(w, r)
	if !ok {
		return
	}

	info, err := h.service.Format(r.Context(), platform)
	if err != nil {
		h.handleTokenError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// parsePlatform はパスパラメータのプラットフォーム名を解析する。
// 未知の名前の場合は400を書き込んでfalseを返す。
func (h *TokenHandler) parsePlatform(w http.ResponseWriter, r *http.Request) (model.Platform, bool) {
	raw := chi.URLParam(r, "platform")
	platform, err := model.ParsePlatform(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewUnknownPlatformError(raw))
		return "", false
	}
	return platform, true
}

// handleTokenError はトークンサービスのエラーをHTTPステータスに変換する。
func (h *TokenHandler) handleTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, token.ErrUnknownPlatform):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewUnknownPlatformError(chi.URLParam(r, "platform")))
	case errors.Is(err, token.ErrLinkNotConfigured):
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "LINK_NOT_CONFIGURED",
			Message:  "プラットフォームのリンク設定がありません。",
			Category: "system",
			Action:   "マイグレーションが適用されているか確認してください。",
		})
	default:
		handleServiceError(w, err)
	}
}
