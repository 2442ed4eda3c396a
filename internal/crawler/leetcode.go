package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// LeetCodeAdapter はLeetCode中国站のGraphQL APIから提出記録を取得する。
// 認証はLEETCODE_SESSION Cookieで行い、失効時はTOKEN_EXPIREDを返す。
type LeetCodeAdapter struct {
	client *Client
	logger *slog.Logger
}

// NewLeetCodeAdapter はLeetCodeAdapterを生成する。
func NewLeetCodeAdapter(client *Client, logger *slog.Logger) *LeetCodeAdapter {
	return &LeetCodeAdapter{client: client, logger: logger}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (a *LeetCodeAdapter) Platform() model.Platform {
	return model.PlatformLeetCode
}

// leetcodeSessionCookie は認証に使用するCookie名。
const leetcodeSessionCookie = "LEETCODE_SESSION"

// lcProgressQuery は進捗一覧を取得するGraphQLクエリ。
// lastSubmittedAtで試行時刻、lastResultで最終判定が得られる。
const lcProgressQuery = `query userProgressQuestionList($filters: UserProgressQuestionListInput) { userProgressQuestionList(filters: $filters) { totalNum questions { translatedTitle frontendId title titleSlug difficulty lastSubmittedAt numSubmitted questionStatus lastResult topicTags { name nameTranslated slug } } } }`

// lcGraphQLResponse はGraphQL応答の共通エンベロープ。
type lcGraphQLResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Data struct {
		UserProgressQuestionList struct {
			TotalNum  int `json:"totalNum"`
			Questions []struct {
				TranslatedTitle string `json:"translatedTitle"`
				FrontendID      string `json:"frontendId"`
				Title           string `json:"title"`
				TitleSlug       string `json:"titleSlug"`
				Difficulty      string `json:"difficulty"`
				LastSubmittedAt string `json:"lastSubmittedAt"`
				NumSubmitted    int    `json:"numSubmitted"`
				QuestionStatus  string `json:"questionStatus"`
				LastResult      string `json:"lastResult"`
				TopicTags       []struct {
					Name string `json:"name"`
				} `json:"topicTags"`
			} `json:"questions"`
		} `json:"userProgressQuestionList"`
		UserStatus struct {
			IsSignedIn bool `json:"isSignedIn"`
		} `json:"userStatus"`
	} `json:"data"`
}

// lcHeaders はブラウザを偽装したリクエストヘッダを構築する。
// GraphQLエンドポイントはOrigin/RefererのないリクエストをBotとして拒否する。
func lcHeaders(link *model.PlatformLink) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Origin":     "https://leetcode.cn",
		"Referer":    "https://leetcode.cn/",
	}
	cookies := ParseCookies(link.AuthToken)
	if session, ok := cookies[leetcodeSessionCookie]; ok && session != "" {
		headers["Cookie"] = leetcodeSessionCookie + "=" + session
	}
	return headers
}

// isAuthError は認証失効を示すGraphQLエラーメッセージかを判定する。
func isAuthError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not authenticated") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(msg, "未登录")
}

// lcDifficultyPoints は難易度から配点への写像。
var lcDifficultyPoints = map[string]float64{
	"EASY":   100,
	"MEDIUM": 200,
	"HARD":   300,
}

// FetchAttempts はGraphQL APIから進捗一覧を取得して正規化する。
// LeetCodeは提出単位の履歴を公開しないため、問題ごとの最終提出を1試行として扱う。
func (a *LeetCodeAdapter) FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error) {
	if link.AuthToken == "" {
		return nil, model.NewTokenExpiredError(a.Platform(), "LeetCodeのトークンが設定されていません")
	}

	payload, err := json.Marshal(map[string]any{
		"query": lcProgressQuery,
		"variables": map[string]any{
			"filters": map[string]any{"skip": 0, "limit": 10000},
		},
		"operationName": "userProgressQuestionList",
	})
	if err != nil {
		return nil, model.NewParseError(a.Platform(), err)
	}

	var resp lcGraphQLResponse
	if err := a.client.PostJSON(ctx, link.UserInfoLink, lcHeaders(link), payload, &resp); err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, model.NewParseError(a.Platform(), err)
		}
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	for _, gqlErr := range resp.Errors {
		if isAuthError(gqlErr.Message) {
			return nil, model.NewTokenExpiredError(a.Platform(), "LeetCodeの認証トークンが失効しています")
		}
	}
	if len(resp.Errors) > 0 {
		return nil, model.NewParseError(a.Platform(),
			fmt.Errorf("GraphQLエラー: %s", resp.Errors[0].Message))
	}

	questions := resp.Data.UserProgressQuestionList.Questions
	attempts := make([]FetchedAttempt, 0, len(questions))
	for _, q := range questions {
		attemptAt, err := time.Parse(time.RFC3339, q.LastSubmittedAt)
		if err != nil {
			a.logger.Warn("LeetCodeの提出時刻を解析できません",
				slog.String("title_slug", q.TitleSlug),
				slog.String("last_submitted_at", q.LastSubmittedAt),
			)
			continue
		}

		verdict := model.VerdictWA
		if q.LastResult == "AC" {
			verdict = model.VerdictAC
		}

		var points *float64
		if v, ok := lcDifficultyPoints[strings.ToUpper(q.Difficulty)]; ok {
			points = &v
		}

		tags := make([]string, 0, len(q.TopicTags))
		for _, tag := range q.TopicTags {
			tags = append(tags, tag.Name)
		}

		name := q.Title
		if q.TranslatedTitle != "" {
			name = q.TranslatedTitle
		}

		attempts = append(attempts, FetchedAttempt{
			Pid:         q.TitleSlug,
			ProblemName: a.client.CleanText(name),
			ProblemURL:  fmt.Sprintf(link.ProblemLink, q.TitleSlug),
			Points:      points,
			Tags:        tags,
			Verdict:     verdict,
			AttemptAt:   attemptAt.UTC(),
		})
	}

	a.logger.Info("LeetCodeの提出を取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(attempts)),
	)
	return attempts, nil
}

// FetchProblemCatalog はカタログの一括取得に対応していないため空を返す。
// 問題メタデータは提出取得時の応答から補完される。
func (a *LeetCodeAdapter) FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error) {
	return nil, nil
}

// ValidateToken はuserStatusクエリでログイン状態を確認する。
// トークン不要の設定では通信せず常にValid=trueを返す。
func (a *LeetCodeAdapter) ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult {
	if !link.RequiresToken {
		return &model.TokenValidationResult{Valid: true, Message: "トークン不要のプラットフォームです"}
	}
	if link.AuthToken == "" {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "LeetCodeのトークンが設定されていません",
			ErrorCode: model.TokenErrMissing,
		}
	}

	payload, err := json.Marshal(map[string]any{
		"query":     "query { userStatus { isSignedIn } }",
		"variables": map[string]any{},
	})
	if err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   err.Error(),
			ErrorCode: model.TokenErrValidation,
		}
	}

	var resp lcGraphQLResponse
	if err := a.client.PostJSON(ctx, link.UserInfoLink, lcHeaders(link), payload, &resp); err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("LeetCode APIへの接続に失敗しました: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}

	if !resp.Data.UserStatus.IsSignedIn {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "LeetCodeの認証トークンが失効しています",
			ErrorCode: model.TokenErrExpired,
		}
	}

	return &model.TokenValidationResult{Valid: true, Message: "トークンは有効です"}
}

// compile-time interface check
var _ Adapter = (*LeetCodeAdapter)(nil)
