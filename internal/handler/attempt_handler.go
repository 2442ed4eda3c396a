package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/projection"
)

// UserFinderInterface はユーザーの存在確認に使うインターフェース。
type UserFinderInterface interface {
	// FindByUsername は指定ユーザー名のユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.TrackedUser, error)
}

// AttemptPagerInterface は射影行のページ読み取りインターフェース。
type AttemptPagerInterface interface {
	// GetPage は指定ユーザーの射影行をattempt_at降順でページ取得する。
	GetPage(ctx context.Context, username string, page, size int) (*projection.Page, error)
}

// AttemptHandler は試行履歴のHTTPハンドラー。
type AttemptHandler struct {
	users UserFinderInterface
	pager AttemptPagerInterface
}

// NewAttemptHandler はAttemptHandlerを生成する。
func NewAttemptHandler(users UserFinderInterface, pager AttemptPagerInterface) *AttemptHandler {
	return &AttemptHandler{users: users, pager: pager}
}

// attemptRowResponse は試行履歴1行のレスポンス。
type attemptRowResponse struct {
	Platform    model.Platform `json:"platform"`
	Pid         string         `json:"pid"`
	ProblemName string         `json:"problem_name"`
	URL         string         `json:"url,omitempty"`
	Points      *float64       `json:"points,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Verdict     model.Verdict  `json:"verdict"`
	AttemptAt   time.Time      `json:"attempt_at"`
}

// attemptListResponse は試行履歴のページレスポンス。
type attemptListResponse struct {
	Username string               `json:"username"`
	Attempts []attemptRowResponse `json:"attempts"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	Size     int                  `json:"size"`
}

// ListAttempts は指定ユーザーの試行履歴をページネーション付きで返す。
// GET /api/attempts?username=xxx&page=0&size=20
func (h *AttemptHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_USERNAME",
			Message:  "usernameパラメータは必須です。",
			Category: "client",
			Action:   "usernameを指定してください。",
		})
		return
	}

	user, err := h.users.FindByUsername(r.Context(), username)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(username))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	result, err := h.pager.GetPage(r.Context(), username, page, size)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	attempts := make([]attemptRowResponse, 0, len(result.Rows))
	for _, row := range result.Rows {
		attempts = append(attempts, attemptRowResponse{
			Platform:    row.Platform,
			Pid:         row.Pid,
			ProblemName: row.ProblemName,
			URL:         row.URL,
			Points:      row.Points,
			Tags:        row.TagList(),
			Verdict:     row.Verdict,
			AttemptAt:   row.AttemptAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attemptListResponse{
		Username: username,
		Attempts: attempts,
		Total:    result.Total,
		Page:     result.Page,
		Size:     result.Size,
	})
}
