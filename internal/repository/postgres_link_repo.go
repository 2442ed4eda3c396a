package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ojtracker/internal/model"
)

// PostgresLinkRepo はPostgreSQLを使用したプラットフォームリンク設定リポジトリ。
type PostgresLinkRepo struct {
	db *sql.DB
}

// NewPostgresLinkRepo はPostgresLinkRepoを生成する。
func NewPostgresLinkRepo(db *sql.DB) *PostgresLinkRepo {
	return &PostgresLinkRepo{db: db}
}

// Get は指定プラットフォームのリンク設定を取得する。見つからない場合はnilを返す。
func (r *PostgresLinkRepo) Get(ctx context.Context, platform model.Platform) (*model.PlatformLink, error) {
	link := &model.PlatformLink{}
	var platformVal string

	err := r.db.QueryRowContext(ctx,
		`SELECT platform, homepage_link, user_info_link, problem_link, problem_status_link,
		        auth_token, token_format, requires_token
		 FROM oj_links WHERE platform = $1`,
		string(platform),
	).Scan(
		&platformVal, &link.HomepageLink, &link.UserInfoLink, &link.ProblemLink,
		&link.ProblemStatusLink, &link.AuthToken, &link.TokenFormat, &link.RequiresToken,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リンク設定の取得に失敗しました: %w", err)
	}

	link.Platform = model.Platform(platformVal)
	return link, nil
}

// Save はリンク設定を保存する。存在しないプラットフォームは新規作成する。
func (r *PostgresLinkRepo) Save(ctx context.Context, link *model.PlatformLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oj_links (platform, homepage_link, user_info_link, problem_link,
		                       problem_status_link, auth_token, token_format, requires_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (platform) DO UPDATE SET
		    homepage_link = EXCLUDED.homepage_link,
		    user_info_link = EXCLUDED.user_info_link,
		    problem_link = EXCLUDED.problem_link,
		    problem_status_link = EXCLUDED.problem_status_link,
		    auth_token = EXCLUDED.auth_token,
		    token_format = EXCLUDED.token_format,
		    requires_token = EXCLUDED.requires_token,
		    updated_at = now()`,
		string(link.Platform), link.HomepageLink, link.UserInfoLink, link.ProblemLink,
		link.ProblemStatusLink, link.AuthToken, link.TokenFormat, link.RequiresToken,
	)
	if err != nil {
		return fmt.Errorf("リンク設定の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LinkRepository = (*PostgresLinkRepo)(nil)
