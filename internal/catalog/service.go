// Package catalog は問題カタログの一括取り込み（管理系操作）を提供する。
// 通常の問題レコードは取り込みサイクルが遅延作成するため、カタログ取り込みは
// 未提出の問題もメタデータ込みで先行登録したい場合の補助操作。
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ojtracker/internal/crawler"
	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/repository"
)

// RefreshResult は1プラットフォームのカタログ取り込み結果。
type RefreshResult struct {
	Platform model.Platform `json:"platform"`
	Count    int            `json:"count"`
	Error    string         `json:"error,omitempty"`
}

// Service は登録済みアダプタから問題カタログを取得し、正規ストアへ反映する。
type Service struct {
	registry *crawler.Registry
	links    repository.LinkRepository
	problems repository.ProblemRepository
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(registry *crawler.Registry, links repository.LinkRepository, problems repository.ProblemRepository, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		links:    links,
		problems: problems,
		logger:   logger,
	}
}

// RefreshAll は全登録アダプタの問題カタログを取得してupsertする。
// 1プラットフォームの失敗は結果に畳み込み、他のプラットフォームの取り込みを
// 妨げない。カタログの提供元がないプラットフォームはCount=0で成功扱いになる。
func (s *Service) RefreshAll(ctx context.Context) []RefreshResult {
	adapters := s.registry.All()
	results := make([]RefreshResult, 0, len(adapters))

	for _, adapter := range adapters {
		results = append(results, s.refresh(ctx, adapter))
	}
	return results
}

func (s *Service) refresh(ctx context.Context, adapter crawler.Adapter) RefreshResult {
	platform := adapter.Platform()
	result := RefreshResult{Platform: platform}

	link, err := s.links.Get(ctx, platform)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if link == nil {
		result.Error = "プラットフォームのリンク設定がありません"
		return result
	}

	problems, err := adapter.FetchProblemCatalog(ctx, link)
	if err != nil {
		s.logger.Warn("問題カタログの取得に失敗しました",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()),
		)
		result.Error = err.Error()
		return result
	}

	for _, cp := range problems {
		p := &model.Problem{
			Platform: platform,
			Pid:      cp.Pid,
			Name:     cp.Name,
			URL:      cp.URL,
			Points:   cp.Points,
			Tags:     cp.Tags,
		}
		if err := s.problems.Upsert(ctx, p); err != nil {
			s.logger.Warn("問題カタログの保存に失敗しました",
				slog.String("platform", string(platform)),
				slog.String("pid", cp.Pid),
				slog.String("error", err.Error()),
			)
			result.Error = fmt.Sprintf("%d件目の保存に失敗しました: %v", result.Count+1, err)
			return result
		}
		result.Count++
	}

	s.logger.Info("問題カタログを取り込みました",
		slog.String("platform", string(platform)),
		slog.Int("count", result.Count),
	)
	return result
}
