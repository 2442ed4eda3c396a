package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/ojtracker/internal/model"
)

// PostgresProblemRepo はPostgreSQLを使用した問題リポジトリ。
type PostgresProblemRepo struct {
	db *sql.DB
}

// NewPostgresProblemRepo はPostgresProblemRepoを生成する。
func NewPostgresProblemRepo(db *sql.DB) *PostgresProblemRepo {
	return &PostgresProblemRepo{db: db}
}

// FindByPlatformAndPids は指定プラットフォームの外部ID集合に一致する問題を一括取得する。
func (r *PostgresProblemRepo) FindByPlatformAndPids(ctx context.Context, platform model.Platform, pids []string) ([]*model.Problem, error) {
	if len(pids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, platform, pid, name, url, points, tags
		 FROM problems
		 WHERE platform = $1 AND pid = ANY($2)`,
		string(platform), pq.Array(pids),
	)
	if err != nil {
		return nil, fmt.Errorf("問題の一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var problems []*model.Problem
	for rows.Next() {
		p := &model.Problem{}
		var platformVal string
		var points sql.NullFloat64
		var tags pq.StringArray
		if err := rows.Scan(&p.ID, &platformVal, &p.Pid, &p.Name, &p.URL, &points, &tags); err != nil {
			return nil, fmt.Errorf("問題行の読み取りに失敗しました: %w", err)
		}
		p.Platform = model.Platform(platformVal)
		if points.Valid {
			v := points.Float64
			p.Points = &v
		}
		p.Tags = []string(tags)
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("問題一覧の走査に失敗しました: %w", err)
	}

	return problems, nil
}

// Upsert は問題を挿入する。(platform, pid) が既存の場合は名前・URL・配点・
// タグを更新する。空の名前で既存の名前を上書きすることはない。
func (r *PostgresProblemRepo) Upsert(ctx context.Context, problem *model.Problem) error {
	var points sql.NullFloat64
	if problem.Points != nil {
		points = sql.NullFloat64{Float64: *problem.Points, Valid: true}
	}
	tags := problem.Tags
	if tags == nil {
		tags = []string{}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO problems (platform, pid, name, url, points, tags)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (platform, pid) DO UPDATE SET
		    name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE problems.name END,
		    url = CASE WHEN EXCLUDED.url <> '' THEN EXCLUDED.url ELSE problems.url END,
		    points = COALESCE(EXCLUDED.points, problems.points),
		    tags = CASE WHEN array_length(EXCLUDED.tags, 1) IS NOT NULL THEN EXCLUDED.tags ELSE problems.tags END,
		    updated_at = now()
		 RETURNING id`,
		string(problem.Platform), problem.Pid, problem.Name, problem.URL, points, pq.Array(tags),
	).Scan(&problem.ID)
	if err != nil {
		return fmt.Errorf("問題のupsertに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProblemRepository = (*PostgresProblemRepo)(nil)
