package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/ojtracker/internal/model"
)

// PostgresAttemptRepo はPostgreSQLを使用した試行リポジトリ。
type PostgresAttemptRepo struct {
	db *sql.DB
}

// NewPostgresAttemptRepo はPostgresAttemptRepoを生成する。
func NewPostgresAttemptRepo(db *sql.DB) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{db: db}
}

// FindAllKeys は永続化済み全試行の同一性キー集合を返す。
// 試行テーブルは問題を内部IDで参照するため、キーの外部IDはJOINで復元する。
func (r *PostgresAttemptRepo) FindAllKeys(ctx context.Context) (map[model.AttemptKey]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.user_id, a.platform, p.pid, a.verdict, a.attempt_at
		 FROM attempts a
		 JOIN problems p ON a.problem_id = p.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("試行キー集合の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	keys := make(map[model.AttemptKey]struct{})
	for rows.Next() {
		a := model.Attempt{}
		var platform, verdict string
		if err := rows.Scan(&a.UserID, &platform, &a.Pid, &verdict, &a.AttemptAt); err != nil {
			return nil, fmt.Errorf("試行キー行の読み取りに失敗しました: %w", err)
		}
		a.Platform = model.Platform(platform)
		a.Verdict = model.Verdict(verdict)
		keys[a.Key()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("試行キー集合の走査に失敗しました: %w", err)
	}

	return keys, nil
}

// SaveAll はデルタを一括挿入する。
// 同一性キーの一意制約に衝突した行は並行書き込みとの良性の競合と
// みなして捨てる（ON CONFLICT DO NOTHING）。
func (r *PostgresAttemptRepo) SaveAll(ctx context.Context, attempts []*model.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("試行保存トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attempts (user_id, account_id, problem_id, platform, verdict, attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT uq_attempts_identity DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("試行挿入文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		var accountID sql.NullInt64
		if a.AccountID != nil {
			accountID = sql.NullInt64{Int64: *a.AccountID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			a.UserID, accountID, a.ProblemID, string(a.Platform), string(a.Verdict), a.AttemptAt,
		); err != nil {
			return fmt.Errorf("試行の挿入に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("試行保存トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListAllForProjection は全試行を問題・ユーザー名と結合して返す。
func (r *PostgresAttemptRepo) ListAllForProjection(ctx context.Context) ([]JoinedAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.username, a.platform, p.pid, p.name, p.url, p.points, p.tags, a.verdict, a.attempt_at
		 FROM attempts a
		 JOIN users u ON a.user_id = u.id
		 JOIN problems p ON a.problem_id = p.id
		 ORDER BY a.attempt_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("射影用試行一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var joined []JoinedAttempt
	for rows.Next() {
		var j JoinedAttempt
		var platform, verdict string
		var points sql.NullFloat64
		var tags pq.StringArray
		if err := rows.Scan(&j.Username, &platform, &j.Pid, &j.ProblemName, &j.URL, &points, &tags, &verdict, &j.AttemptAt); err != nil {
			return nil, fmt.Errorf("射影用試行行の読み取りに失敗しました: %w", err)
		}
		j.Platform = model.Platform(platform)
		j.Verdict = model.Verdict(verdict)
		if points.Valid {
			v := points.Float64
			j.Points = &v
		}
		j.Tags = []string(tags)
		joined = append(joined, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("射影用試行一覧の走査に失敗しました: %w", err)
	}

	return joined, nil
}

// compile-time interface check
var _ AttemptRepository = (*PostgresAttemptRepo)(nil)
