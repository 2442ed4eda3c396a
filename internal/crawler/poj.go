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

// POJAdapter は北京大学OJのステータスページをスクレイプして提出記録を取得する。
// 一部のページはログインセッション（JSESSIONID）がないと弾かれる。
type POJAdapter struct {
	client *Client
	logger *slog.Logger
}

// NewPOJAdapter はPOJAdapterを生成する。
func NewPOJAdapter(client *Client, logger *slog.Logger) *POJAdapter {
	return &POJAdapter{client: client, logger: logger}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (a *POJAdapter) Platform() model.Platform {
	return model.PlatformPOJ
}

// pojTimeLayout はステータス表の提出時刻の形式。
const pojTimeLayout = "2006-01-02 15:04:05"

// pojSessionCookie はログインセッションのCookie名。
const pojSessionCookie = "JSESSIONID"

// pojHeaders はセッションCookieを付与したリクエストヘッダを構築する。
func pojHeaders(link *model.PlatformLink) map[string]string {
	cookies := ParseCookies(link.AuthToken)
	header := CookieHeader(cookies, pojSessionCookie)
	if header == "" {
		return nil
	}
	return map[string]string{"Cookie": header}
}

// FetchAttempts はステータスページを解析してAccepted提出を正規化する。
// ステータス表の列: 0=RunID, 1=ユーザー, 2=問題ID, 3=判定, 8=提出時刻。
func (a *POJAdapter) FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error) {
	url := fmt.Sprintf(link.UserInfoLink, handle)
	doc, err := a.client.GetDocument(ctx, url, pojHeaders(link))
	if err != nil {
		return nil, model.NewNetworkError(a.Platform(), err)
	}

	table := doc.Find("table.a").First()
	if table.Length() == 0 {
		return nil, model.NewParseError(a.Platform(),
			fmt.Errorf("ステータス表が見つかりません: %s", handle))
	}

	var attempts []FetchedAttempt
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 9 {
			return
		}
		verdict := strings.TrimSpace(cols.Eq(3).Text())
		if !strings.EqualFold(verdict, "Accepted") {
			return
		}

		pid := strings.TrimSpace(cols.Eq(2).Text())
		if pid == "" {
			return
		}

		attemptAt, err := time.Parse(pojTimeLayout, strings.TrimSpace(cols.Eq(8).Text()))
		if err != nil {
			a.logger.Warn("POJの提出時刻を解析できません",
				slog.String("handle", handle),
				slog.String("raw", cols.Eq(8).Text()),
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

	a.logger.Info("POJの提出を取得しました",
		slog.String("handle", handle),
		slog.Int("count", len(attempts)),
	)
	return attempts, nil
}

// FetchProblemName は問題ページから問題名を取得する。
func (a *POJAdapter) FetchProblemName(ctx context.Context, link *model.PlatformLink, pid string) (string, error) {
	url := fmt.Sprintf(link.ProblemLink, pid)
	doc, err := a.client.GetDocument(ctx, url, pojHeaders(link))
	if err != nil {
		return "", model.NewNetworkError(a.Platform(), err)
	}

	title := strings.TrimSpace(doc.Find("div.ptt").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return a.client.CleanText(title), nil
}

// ValidateToken はセッションCookie付きでトップページの到達性を確認する。
// POJはセッション失効を明示的に返さないため、到達できれば有効とみなす。
// FetchProblemCatalog はカタログの提供元がないため空を返す。
// 問題名は未知の問題に限ってFetchProblemNameで遅延取得する。
func (a *POJAdapter) FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error) {
	return nil, nil
}

func (a *POJAdapter) ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult {
	if !link.RequiresToken {
		return &model.TokenValidationResult{Valid: true, Message: "トークン不要のプラットフォームです"}
	}
	if link.AuthToken == "" {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   "POJのセッショントークンが設定されていません",
			ErrorCode: model.TokenErrMissing,
		}
	}

	if _, err := a.client.GetDocument(ctx, link.HomepageLink, pojHeaders(link)); err != nil {
		return &model.TokenValidationResult{
			Valid:     false,
			Message:   fmt.Sprintf("POJへの接続に失敗しました: %v", err),
			ErrorCode: model.TokenErrValidation,
		}
	}
	return &model.TokenValidationResult{Valid: true, Message: "接続は正常です"}
}

// compile-time interface check
var _ Adapter = (*POJAdapter)(nil)
var _ ProblemEnricher = (*POJAdapter)(nil)
