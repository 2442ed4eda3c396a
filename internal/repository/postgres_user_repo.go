package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用した追跡対象ユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// ListTrackedUsers は全追跡対象ユーザーをアカウント込みで取得する。
// ユーザー一覧とアカウント一覧を別クエリで引き、メモリ上で紐付ける。
func (r *PostgresUserRepo) ListTrackedUsers(ctx context.Context) ([]*model.TrackedUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, real_name, last_attempt_at
		 FROM users
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.TrackedUser
	byID := make(map[int64]*model.TrackedUser)
	for rows.Next() {
		u := &model.TrackedUser{}
		var lastAttemptAt sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.RealName, &lastAttemptAt); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		if lastAttemptAt.Valid {
			u.LastAttemptAt = &lastAttemptAt.Time
		}
		users = append(users, u)
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}

	accountRows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, platform, handle, active, last_sync_at
		 FROM oj_accounts
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	defer accountRows.Close()

	for accountRows.Next() {
		acc := model.PlatformAccount{}
		var platform string
		var lastSyncAt sql.NullTime
		if err := accountRows.Scan(&acc.ID, &acc.UserID, &platform, &acc.Handle, &acc.Active, &lastSyncAt); err != nil {
			return nil, fmt.Errorf("アカウント行の読み取りに失敗しました: %w", err)
		}
		acc.Platform = model.Platform(platform)
		if lastSyncAt.Valid {
			acc.LastSyncAt = &lastSyncAt.Time
		}
		if u, ok := byID[acc.UserID]; ok {
			u.Accounts = append(u.Accounts, acc)
		}
	}
	if err := accountRows.Err(); err != nil {
		return nil, fmt.Errorf("アカウント一覧の走査に失敗しました: %w", err)
	}

	return users, nil
}

// FindByUsername は指定ユーザー名のユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.TrackedUser, error) {
	u := &model.TrackedUser{}
	var lastAttemptAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, real_name, last_attempt_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.RealName, &lastAttemptAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	if lastAttemptAt.Valid {
		u.LastAttemptAt = &lastAttemptAt.Time
	}

	return u, nil
}

// SetLastAttemptAt はユーザーの最終試行時刻を更新する。
func (r *PostgresUserRepo) SetLastAttemptAt(ctx context.Context, userID int64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_attempt_at = $2, updated_at = now() WHERE id = $1`,
		userID, ts,
	)
	if err != nil {
		return fmt.Errorf("最終試行時刻の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
