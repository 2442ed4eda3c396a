package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/ojtracker/internal/model"
)

// HDUAdapter は杭電OJのステータスページをスクレイプして提出記録を取得する。
// HDUには公開APIがなく、ステータス表にはAccepted以外の行も並ぶが
// 提出者以外には詳細が見えないため、Accepted行のみを取り込む。
type HDUAdapter struct {
	client *Client
	logger *slog.Logger
}

// NewHDUAdapter はHDUAdapterを生成する。
func NewHDUAdapter(client *Client, logger *slog.Logger) *HDUAdapter {
	return &HDUAdapter{client: client, logger: logger}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (a *HDUAdapter) Platform() model.Platform {
	return model.PlatformHDU
}

// hduTimeLayout はステータス表の提出時刻の形式。
const hduTimeLayout = "2006-01-02 15:04:05"

// FetchAttempts はステータスページを解析してAccepted提出を正規化する。
// ステータス表の列: 0=RunID, 1=提出時刻, 2=判定, 3=問題ID。
func (a *HDUAdapter) FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error) {
	url := fmt.Sprintf(link.UserInfoLink, handle)
	doc, err := a.client.GetDocument(ctx, url, nil)
	if err != nil {
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	table := doc.Find("table.table_text").First()
	if table.Length() == 0 {
		return nil, model.NewParseError(a.Platform(),
			fmt.Errorf("ステータス表が見つかりません: %s", handle))
	}

	var attempts []FetchedAttempt
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() <= 5 {
			return
		}
		verdict := strings.TrimSpace(cols.Eq(2).Text())
		if !strings.EqualFold(verdict, "Accepted") {
			return
		}

		pid := strings.TrimSpace(cols.Eq(3).Text())
		if pid == "" {
			return
		}

		attemptAt, err := time.Parse(hduTimeLayout, strings.TrimSpace(cols.Eq(1).Text()))
		if err != nil {
			a.logger.Warn("HDUの提出時刻を解析できません",
				slog.String("handle", handle),
				slog.String("raw", cols.Eq(1).Text()),
			)
			return
		}

		attempts = append(attempts, FetchedAttempt{
			Pid:        pid,
			ProblemURL: fmt.Sprintf(link.ProblemLink, pid),
			Verdict:    model.VerdictAC,
			AttemptAt:  attemptAt.UTC(),
		})
	})

	a.logger.Info("HDUの提出を取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(attempts)),
	)
	return attempts, nil
}

// FetchProblemName は問題ページから問題名を取得する。
// ステータス表に問題名が含まれないため、未知の問題のみ遅延取得する。
func (a *HDUAdapter) FetchProblemName(ctx context.Context, link *model.PlatformLink, pid string) (string, error) {
	url := fmt.Sprintf(link.ProblemLink, pid)
	doc, err := a.client.GetDocument(ctx, url, nil)
	if err != nil {
		return "", model.NewNetworkError(a.Platform(), err)
	}

	title := strings.TrimSpace(doc.Find(".panel_title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return a.client.CleanText(title), nil
}

// FetchProblemCatalog はHDUにカタログの提供元がないため空を返す。
// 問題名は未知の問題に限ってFetchProblemNameで遅延取得する。
func (a *HDUAdapter) FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error) {
	return nil, nil
}

// ValidateToken はトークン不要の設定では常にValid=trueを返す。
// トークン必須に設定されている場合のみ到達性を確認する。
func (a *HDUAdapter) ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult {
	if !link.RequiresToken {
		return &model.TokenValidationResult{Valid: true, Message: "トークン不要のプラットフォームです"}
	}

	doc, err := a.client.GetDocument(ctx, link.HomepageLink, nil)
	if err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("HDUへの接続に失敗しました: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}

	title := doc.Find("title").First().Text()
	if !strings.Contains(title, "HDU") && !strings.Contains(title, "杭电") {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "HDUのトップページを確認できません",
			ErrorCode: model.TokenErrValidation,
		}
	}
	return &model.TokenValidationResult{Valid: true, Message: "接続は正常です"}
}

// compile-time interface check
var _ Adapter = (*HDUAdapter)(nil)
var _ ProblemEnricher = (*HDUAdapter)(nil)
