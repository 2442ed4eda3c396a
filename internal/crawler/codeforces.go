package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// CodeforcesAdapter はCodeforces REST APIから提出記録を取得する。
// user.status APIは認証不要で、提出と問題メタデータを同じ応答で返す。
type CodeforcesAdapter struct {
	client *Client
	logger *slog.Logger
}

// NewCodeforcesAdapter はCodeforcesAdapterを生成する。
func NewCodeforcesAdapter(client *Client, logger *slog.Logger) *CodeforcesAdapter {
	return &CodeforcesAdapter{client: client, logger: logger}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (a *CodeforcesAdapter) Platform() model.Platform {
	return model.PlatformCodeforces
}

// cfUserStatusResponse はuser.status APIの応答スキーマ。
type cfUserStatusResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  []struct {
		ID                  int64 `json:"id"`
		CreationTimeSeconds int64 `json:"creationTimeSeconds"`
		Problem             struct {
			ContestID int      `json:"contestId"`
			Index     string   `json:"index"`
			Name      string   `json:"name"`
			Rating    *float64 `json:"rating"`
			Tags      []string `json:"tags"`
		} `json:"problem"`
		Verdict string `json:"verdict"`
	} `json:"result"`
}

// cfVerdictMap はCodeforcesの判定文字列から正規判定への写像。
var cfVerdictMap = map[string]model.Verdict{
	"OK":                    model.VerdictAC,
	"WRONG_ANSWER":          model.VerdictWA,
	"TIME_LIMIT_EXCEEDED":   model.VerdictTLE,
	"MEMORY_LIMIT_EXCEEDED": model.VerdictMLE,
	"COMPILATION_ERROR":     model.VerdictCE,
	"RUNTIME_ERROR":         model.VerdictRE,
	"PRESENTATION_ERROR":    model.VerdictPE,
}

// FetchAttempts は指定ハンドルの全提出を取得して正規化する。
func (a *CodeforcesAdapter) FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error) {
	url := fmt.Sprintf(link.UserInfoLink, handle)

	var resp cfUserStatusResponse
	if err := a.client.GetJSON(ctx, url, nil, &resp); err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, model.NewParseError(a.Platform(), err)
		}
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	if resp.Status != "OK" {
		return nil, model.NewParseError(a.Platform(),
			fmt.Errorf("APIがエラーを返しました: %s", resp.Comment))
	}

	attempts := make([]FetchedAttempt, 0, len(resp.Result))
	for _, sub := range resp.Result {
		p := sub.Problem
		pid := fmt.Sprintf("%d%s", p.ContestID, p.Index)

		verdict, ok := cfVerdictMap[sub.Verdict]
		if !ok {
			verdict = model.VerdictUnknown
		}

		attempts = append(attempts, FetchedAttempt{
			Pid:         pid,
			ProblemName: a.client.CleanText(p.Name),
			ProblemURL:  fmt.Sprintf(link.ProblemLink, p.ContestID, p.Index),
			Points:      p.Rating,
			Tags:        p.Tags,
			Verdict:     verdict,
			AttemptAt:   time.Unix(sub.CreationTimeSeconds, 0).UTC(),
		})
	}

	a.logger.Info("Codeforcesの提出を取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(attempts)),
	)
	return attempts, nil
}

// cfProblemsResponse はproblemset.problems APIの応答スキーマ。
type cfProblemsResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  struct {
		Problems []struct {
			ContestID int      `json:"contestId"`
			Index     string   `json:"index"`
			Name      string   `json:"name"`
			Rating    *float64 `json:"rating"`
			Tags      []string `json:"tags"`
		} `json:"problems"`
	} `json:"result"`
}

// FetchProblemCatalog はproblemset.problems APIから全問題カタログを取得する。
func (a *CodeforcesAdapter) FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error) {
	var resp cfProblemsResponse
	if err := a.client.GetJSON(ctx, link.ProblemStatusLink, nil, &resp); err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, model.NewParseError(a.Platform(), err)
		}
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	if resp.Status != "OK" {
		return nil, model.NewParseError(a.Platform(),
			fmt.Errorf("APIがエラーを返しました: %s", resp.Comment))
	}

	catalog := make([]CatalogProblem, 0, len(resp.Result.Problems))
	for _, p := range resp.Result.Problems {
		catalog = append(catalog, CatalogProblem{
			Pid:    fmt.Sprintf("%d%s", p.ContestID, p.Index),
			Name:   a.client.CleanText(p.Name),
			URL:    fmt.Sprintf(link.ProblemLink, p.ContestID, p.Index),
			Points: p.Rating,
			Tags:   p.Tags,
		})
	}

	a.logger.Info("Codeforcesの問題カタログを取得しました",
		slog.Int("count", len(catalog)),
	)
	return catalog, nil
}

// ValidateToken はトークン不要の設定では常にValid=trueを返す。
// トークン必須に設定されている場合のみAPIの到達性を確認する。
func (a *CodeforcesAdapter) ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult {
	if !link.RequiresToken {
		return &model.TokenValidationResult{Valid: true, Message: "トークン不要のプラットフォームです"}
	}

	var resp cfUserStatusResponse
	if err := a.client.GetJSON(ctx, link.ProblemStatusLink, nil, &resp); err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("Codeforces APIへの接続に失敗しました: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}
	if resp.Status != "OK" {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("Codeforces APIがエラーを返しました: %s", resp.Comment),
			ErrorCode: model.TokenErrValidation,
		}
	}
	return &model.TokenValidationResult{Valid: true, Message: "接続は正常です"}
}

// compile-time interface check
var _ Adapter = (*CodeforcesAdapter)(nil)
