package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// LuoguAdapter は洛谷のJSON APIから提出記録を取得する。
// 認証は__client_idと_uidの2つのCookieで行う。未認証のリクエストには
// JSONではなくログインページのHTMLが返る。
type LuoguAdapter struct {
	client *Client
	logger *slog.Logger
}

// NewLuoguAdapter はLuoguAdapterを生成する。
func NewLuoguAdapter(client *Client, logger *slog.Logger) *LuoguAdapter {
	return &LuoguAdapter{client: client, logger: logger}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (a *LuoguAdapter) Platform() model.Platform {
	return model.PlatformLuogu
}

// luoguRecordResponse は提出一覧APIの応答スキーマ。
type luoguRecordResponse struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	CurrentData struct {
		Records struct {
			Result []struct {
				Status     int   `json:"status"`
				SubmitTime int64 `json:"submitTime"`
				Problem    struct {
					Pid   string `json:"pid"`
					Title string `json:"title"`
				} `json:"problem"`
			} `json:"result"`
			Count int `json:"count"`
		} `json:"records"`
	} `json:"currentData"`
}

// luoguVerdictMap は洛谷のステータスコードから正規判定への写像。
var luoguVerdictMap = map[int]model.Verdict{
	12: model.VerdictAC,
	13: model.VerdictWA,
	14: model.VerdictTLE,
	15: model.VerdictRE,
	16: model.VerdictCE,
	17: model.VerdictOLE,
	18: model.VerdictMLE,
	19: model.VerdictPE,
}

// luoguMaxConsecutiveErrors はページ取得の連続失敗の許容回数。
const luoguMaxConsecutiveErrors = 3

// luoguHeaders は認証Cookieを付与したリクエストヘッダを構築する。
func luoguHeaders(link *model.PlatformLink) map[string]string {
	cookies := ParseCookies(link.AuthToken)
	header := CookieHeader(cookies, "__client_id", "_uid")
	if header == "" {
		return nil
	}
	return map[string]string{"Cookie": header}
}

// FetchAttempts は提出一覧をページ送りで全件取得して正規化する。
func (a *LuoguAdapter) FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error) {
	if link.AuthToken == "" {
		return nil, model.NewTokenExpiredError(a.Platform(), "洛谷のトークンが設定されていません")
	}
	headers := luoguHeaders(link)

	var attempts []FetchedAttempt
	page := 1
	consecutiveErrors := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, model.NewNetworkError(a.Platform(), err)
		}

		url := fmt.Sprintf(link.UserInfoLink, handle, page)
		body, err := a.client.GetRaw(ctx, url, headers)
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= luoguMaxConsecutiveErrors {
				return nil, model.NewNetworkError(a.Platform(), err)
			}
			continue
		}

		// 未認証の場合はJSONではなくログインページのHTMLが返る
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
			return nil, model.NewTokenExpiredError(a.Platform(), "洛谷の認証トークンが失効しています")
		}

		var resp luoguRecordResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, model.NewParseError(a.Platform(), err)
		}

		if resp.Code == 401 || resp.Code == 403 {
			return nil, model.NewTokenExpiredError(a.Platform(), "洛谷の認証トークンが失効しています")
		}
		if resp.Code != 200 {
			consecutiveErrors++
			if consecutiveErrors >= luoguMaxConsecutiveErrors {
				return nil, model.NewParseError(a.Platform(),
					fmt.Errorf("APIがエラーを返しました: code=%d message=%s", resp.Code, resp.Message))
			}
			continue
		}
		consecutiveErrors = 0

		records := resp.CurrentData.Records.Result
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			verdict, ok := luoguVerdictMap[rec.Status]
			if !ok {
				verdict = model.VerdictUnknown
			}
			attempts = append(attempts, FetchedAttempt{
				Pid:         rec.Problem.Pid,
				ProblemName: a.client.CleanText(rec.Problem.Title),
				ProblemURL:  fmt.Sprintf(link.ProblemLink, rec.Problem.Pid),
				Verdict:     verdict,
				AttemptAt:   time.Unix(rec.SubmitTime, 0).UTC(),
			})
		}
		page++
	}

	a.logger.Info("洛谷の提出を取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(attempts)),
	)
	return attempts, nil
}

// FetchProblemCatalog はカタログの提供元がないため空を返す。
func (a *LuoguAdapter) FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error) {
	return nil, nil
}

// ValidateToken は提出一覧の1ページ目を取得してログイン状態を確認する。
// 対象ユーザーには依存しないため、空ユーザーで十分。
func (a *LuoguAdapter) ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult {
	if !link.RequiresToken {
		return &model.TokenValidationResult{Valid: true, Message: "トークン不要のプラットフォームです"}
	}
	if link.AuthToken == "" {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "洛谷のトークンが設定されていません",
			ErrorCode: model.TokenErrMissing,
		}
	}

	url := fmt.Sprintf(link.UserInfoLink, "", 1)
	body, err := a.client.GetRaw(ctx, url, luoguHeaders(link))
	if err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("洛谷への接続に失敗しました: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "洛谷の認証トークンが失効しています",
			ErrorCode: model.TokenErrExpired,
		}
	}

	var resp luoguRecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("洛谷の応答を解析できません: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}
	if resp.Code == 401 || resp.Code == 403 {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "洛谷の認証トークンが失効しています",
			ErrorCode: model.TokenErrExpired,
		}
	}

	return &model.TokenValidationResult{Valid: true, Message: "トークンは有効です"}
}

// compile-time interface check
var _ Adapter = (*LuoguAdapter)(nil)
