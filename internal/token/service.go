// Package token はプラットフォーム認証トークンの管理操作を提供する。
// トークンの有効性検証（ネットワーク越し）、形式検証（ローカル）、
// 更新・削除を担う。取り込みパイプラインはトークンを読み取るだけで、
// 書き換えはこのパッケージ経由に限られる。
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ojtracker/internal/crawler"
	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/repository"
)

// ErrUnknownPlatform は未登録プラットフォームの指定を示す。
var ErrUnknownPlatform = errors.New("未対応のプラットフォームです")

// ErrLinkNotConfigured はリンク設定が未登録であることを示す。
var ErrLinkNotConfigured = errors.New("リンク設定がありません")

// FormatInfo はプラットフォームのトークン形式の説明。
type FormatInfo struct {
	Platform       model.Platform `json:"platform"`
	RequiresToken  bool           `json:"requires_token"`
	TokenFormat    string         `json:"token_format"`
	RequiredFields []string       `json:"required_fields,omitempty"`
}

// Service はトークン管理操作を提供する。
type Service struct {
	registry *crawler.Registry
	links    repository.LinkRepository
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(registry *crawler.Registry, links repository.LinkRepository, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		links:    links,
		logger:   logger,
	}
}

// Validate は指定プラットフォームのトークンの有効性を実際の通信で検証する。
// 検証失敗は結果オブジェクトで表現し、エラーは設定不備の場合のみ返す。
func (s *Service) Validate(ctx context.Context, platform model.Platform) (*model.TokenValidationResult, error) {
	adapter, link, err := s.resolve(ctx, platform)
	if err != nil {
		return nil, err
	}
	result := adapter.ValidateToken(ctx, link)
	if !result.Valid {
		s.logger.Warn("トークン検証に失敗しました",
			slog.String("platform", string(platform)),
			slog.String("error_code", result.ErrorCode),
		)
	}
	return result, nil
}

// ValidateAll は登録済み全プラットフォームのトークンを検証する。
// 個別の失敗は結果マップに載せ、全体としては常に成功する。
func (s *Service) ValidateAll(ctx context.Context) map[model.Platform]*model.TokenValidationResult {
	results := make(map[model.Platform]*model.TokenValidationResult)
	for _, adapter := range s.registry.All() {
		platform := adapter.Platform()
		link, err := s.links.Get(ctx, platform)
		if err != nil || link == nil {
			results[platform] = &model.TokenValidationResult{
				Valid:     false,
				Message:   "リンク設定がありません",
				ErrorCode: model.TokenErrValidation,
			}
			continue
		}
		results[platform] = adapter.ValidateToken(ctx, link)
	}
	return results
}

// UpdateToken はトークンを形式検証した上で保存する。
// 形式検証に失敗した場合は保存せず、検証結果をそのまま返す。
func (s *Service) UpdateToken(ctx context.Context, platform model.Platform, token string) (*model.TokenFormatValidationResult, error) {
	_, link, err := s.resolve(ctx, platform)
	if err != nil {
		return nil, err
	}

	result := crawler.ValidateTokenFormat(link.TokenFormat, token)
	if !result.Valid {
		return result, nil
	}

	link.AuthToken = token
	if err := s.links.Save(ctx, link); err != nil {
		return nil, fmt.Errorf("トークンの保存に失敗: %w", err)
	}

	s.logger.Info("トークンを更新しました", slog.String("platform", string(platform)))
	return result, nil
}

// DeleteToken は保存済みトークンを削除する。冪等。
func (s *Service) DeleteToken(ctx context.Context, platform model.Platform) error {
	_, link, err := s.resolve(ctx, platform)
	if err != nil {
		return err
	}

	link.AuthToken = ""
	if err := s.links.Save(ctx, link); err != nil {
		return fmt.Errorf("トークンの削除に失敗: %w", err)
	}

	s.logger.Info("トークンを削除しました", slog.String("platform", string(platform)))
	return nil
}

// Format は指定プラットフォームのトークン形式の説明を返す。
func (s *Service) Format(ctx context.Context, platform model.Platform) (*FormatInfo, error) {
	_, link, err := s.resolve(ctx, platform)
	if err != nil {
		return nil, err
	}
	return &FormatInfo{
		Platform:       platform,
		RequiresToken:  link.RequiresToken,
		TokenFormat:    link.TokenFormat,
		RequiredFields: crawler.RequiredTokenFields(link.TokenFormat),
	}, nil
}

// resolve はプラットフォームのアダプタとリンク設定を取得する。
func (s *Service) resolve(ctx context.Context, platform model.Platform) (crawler.Adapter, *model.PlatformLink, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	link, err := s.links.Get(ctx, platform)
	if err != nil {
		return nil, nil, fmt.Errorf("リンク設定の取得に失敗: %w", err)
	}
	if link == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrLinkNotConfigured, platform)
	}
	return adapter, link, nil
}
