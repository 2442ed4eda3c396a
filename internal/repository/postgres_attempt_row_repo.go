package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ojtracker/internal/model"
)

// PostgresAttemptRowRepo はPostgreSQLを使用した非正規化射影リポジトリ。
type PostgresAttemptRowRepo struct {
	db *sql.DB
}

// NewPostgresAttemptRowRepo はPostgresAttemptRowRepoを生成する。
func NewPostgresAttemptRowRepo(db *sql.DB) *PostgresAttemptRowRepo {
	return &PostgresAttemptRowRepo{db: db}
}

// ReplaceAll は射影の全行を単一トランザクションで置き換える。
// 削除と再挿入が同一トランザクションでコミットされるため、並行する
// 読み手が空の射影を観測することはなく、挿入失敗時は旧行が残る。
func (r *PostgresAttemptRowRepo) ReplaceAll(ctx context.Context, attemptRows []*model.AttemptRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("射影置換トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attempt_rows`); err != nil {
		return fmt.Errorf("射影行の全削除に失敗しました: %w", err)
	}

	if len(attemptRows) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO attempt_rows (id, username, platform, pid, problem_name, url, points, tags, verdict, attempt_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		)
		if err != nil {
			return fmt.Errorf("射影挿入文の準備に失敗しました: %w", err)
		}
		defer stmt.Close()

		for _, row := range attemptRows {
			var points sql.NullFloat64
			if row.Points != nil {
				points = sql.NullFloat64{Float64: *row.Points, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				row.ID, row.Username, string(row.Platform), row.Pid, row.ProblemName,
				row.URL, points, row.Tags, string(row.Verdict), row.AttemptAt,
			); err != nil {
				return fmt.Errorf("射影行の挿入に失敗しました: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("射影置換トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// PageByUsername は指定ユーザーの行をattempt_at降順でページ取得する。
// pageは0始まり。行スライスと総件数を返す。
func (r *PostgresAttemptRowRepo) PageByUsername(ctx context.Context, username string, page, size int) ([]*model.AttemptRow, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_rows WHERE username = $1`,
		username,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("射影行の件数取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, platform, pid, problem_name, url, points, tags, verdict, attempt_at
		 FROM attempt_rows
		 WHERE username = $1
		 ORDER BY attempt_at DESC
		 LIMIT $2 OFFSET $3`,
		username, size, page*size,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("射影行のページ取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []*model.AttemptRow
	for rows.Next() {
		row := &model.AttemptRow{}
		var platform, verdict string
		var points sql.NullFloat64
		if err := rows.Scan(
			&row.ID, &row.Username, &platform, &row.Pid, &row.ProblemName,
			&row.URL, &points, &row.Tags, &verdict, &row.AttemptAt,
		); err != nil {
			return nil, 0, fmt.Errorf("射影行の読み取りに失敗しました: %w", err)
		}
		row.Platform = model.Platform(platform)
		row.Verdict = model.Verdict(verdict)
		if points.Valid {
			v := points.Float64
			row.Points = &v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("射影行の走査に失敗しました: %w", err)
	}

	return result, total, nil
}

// compile-time interface check
var _ AttemptRowRepository = (*PostgresAttemptRowRepo)(nil)
