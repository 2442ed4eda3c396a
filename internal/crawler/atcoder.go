package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// AtCoderAdapter はkenkoooo.comのAtCoder Problems APIから提出記録を取得する。
// AtCoder本体にはユーザー提出の公開APIがないため、ミラーAPIを使用する。
type AtCoderAdapter struct {
	client *Client
	logger *slog.Logger
}

// NewAtCoderAdapter はAtCoderAdapterを生成する。
func NewAtCoderAdapter(client *Client, logger *slog.Logger) *AtCoderAdapter {
	return &AtCoderAdapter{client: client, logger: logger}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (a *AtCoderAdapter) Platform() model.Platform {
	return model.PlatformAtCoder
}

// atcoderSubmission はAtCoder Problems APIの提出レコード。
type atcoderSubmission struct {
	ID          int64   `json:"id"`
	EpochSecond int64   `json:"epoch_second"`
	ProblemID   string  `json:"problem_id"`
	ContestID   string  `json:"contest_id"`
	UserID      string  `json:"user_id"`
	Point       float64 `json:"point"`
	Result      string  `json:"result"`
}

// atcoderVerdictMap はAtCoderの判定文字列から正規判定への写像。
var atcoderVerdictMap = map[string]model.Verdict{
	"AC":  model.VerdictAC,
	"WA":  model.VerdictWA,
	"TLE": model.VerdictTLE,
	"MLE": model.VerdictMLE,
	"RE":  model.VerdictRE,
	"CE":  model.VerdictCE,
	"OLE": model.VerdictOLE,
}

// FetchAttempts は指定ユーザーの全提出を取得して正規化する。
func (a *AtCoderAdapter) FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error) {
	url := fmt.Sprintf(link.UserInfoLink, handle)

	var submissions []atcoderSubmission
	if err := a.client.GetJSON(ctx, url, nil, &submissions); err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, model.NewParseError(a.Platform(), err)
		}
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	attempts := make([]FetchedAttempt, 0, len(submissions))
	for _, sub := range submissions {
		verdict, ok := atcoderVerdictMap[sub.Result]
		if !ok {
			verdict = model.VerdictUnknown
		}

		var points *float64
		if sub.Point > 0 {
			v := sub.Point
			points = &v
		}

		attempts = append(attempts, FetchedAttempt{
			Pid:        sub.ProblemID,
			ProblemURL: fmt.Sprintf(link.ProblemLink, sub.ContestID, sub.ProblemID),
			Points:     points,
			Verdict:    verdict,
			AttemptAt:  time.Unix(sub.EpochSecond, 0).UTC(),
		})
	}

	a.logger.Info("AtCoderの提出を取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(attempts)),
	)
	return attempts, nil
}

// atcoderProblem はAtCoder Problemsの問題カタログのレコード。
type atcoderProblem struct {
	ID        string `json:"id"`
	ContestID string `json:"contest_id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
}

// FetchProblemCatalog はAtCoder Problemsのリソースから全問題カタログを取得する。
func (a *AtCoderAdapter) FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error) {
	var problems []atcoderProblem
	if err := a.client.GetJSON(ctx, link.ProblemStatusLink, nil, &problems); err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, model.NewParseError(a.Platform(), err)
		}
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	catalog := make([]CatalogProblem, 0, len(problems))
	for _, p := range problems {
		name := p.Name
		if name == "" {
			name = p.Title
		}
		catalog = append(catalog, CatalogProblem{
			Pid:  p.ID,
			Name: a.client.CleanText(name),
			URL:  fmt.Sprintf(link.ProblemLink, p.ContestID, p.ID),
		})
	}

	a.logger.Info("AtCoderの問題カタログを取得しました",
		slog.Int("count", len(catalog)),
	)
	return catalog, nil
}

// ValidateToken はトークン不要の設定では常にValid=trueを返す。
// トークン必須に設定されている場合のみミラーAPIの到達性を確認する。
func (a *AtCoderAdapter) ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult {
	if !link.RequiresToken {
		return &model.TokenValidationResult{Valid: true, Message: "トークン不要のプラットフォームです"}
	}

	var problems []map[string]any
	if err := a.client.GetJSON(ctx, link.ProblemStatusLink, nil, &problems); err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("AtCoder Problems APIへの接続に失敗しました: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}
	return &model.TokenValidationResult{Valid: true, Message: "接続は正常です"}
}

// compile-time interface check
var _ Adapter = (*AtCoderAdapter)(nil)
