// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// UserRepository は追跡対象ユーザーのディレクトリとの境界インターフェース。
// ユーザー本体の管理はディレクトリ側の責務で、取り込みパイプラインは
// 一覧の読み取りと最終試行時刻の書き戻しのみを行う。
type UserRepository interface {
	// ListTrackedUsers は全追跡対象ユーザーを、紐付くプラットフォーム
	// アカウント込みで返す。
	ListTrackedUsers(ctx context.Context) ([]*model.TrackedUser, error)

	// FindByUsername は指定ユーザー名のユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.TrackedUser, error)

	// SetLastAttemptAt はユーザーの最終試行時刻を更新する。
	// 単調性（巻き戻し禁止）の判断は呼び出し側が行う。
	SetLastAttemptAt(ctx context.Context, userID int64, ts time.Time) error
}

// AttemptRepository は試行の正規ストア（追記専用）の永続化インターフェース。
type AttemptRepository interface {
	// FindAllKeys は永続化済み全試行の同一性キー集合を返す。
	// デルタ計算の突き合わせに使用する。
	FindAllKeys(ctx context.Context) (map[model.AttemptKey]struct{}, error)

	// SaveAll はデルタを一括挿入する。同一性キーの一意制約に衝突する行は
	// 並行書き込みとの良性の競合として黙って捨てる。
	SaveAll(ctx context.Context, attempts []*model.Attempt) error

	// ListAllForProjection は全試行を問題・ユーザー名と結合して返す。
	// 射影の全再構築専用。
	ListAllForProjection(ctx context.Context) ([]JoinedAttempt, error)
}

// JoinedAttempt は試行と問題・ユーザー名を結合した再構築用の中間行。
type JoinedAttempt struct {
	Username    string
	Platform    model.Platform
	Pid         string
	ProblemName string
	URL         string
	Points      *float64
	Tags        []string
	Verdict     model.Verdict
	AttemptAt   time.Time
}

// ProblemRepository は問題の正規レコードの永続化インターフェース。
type ProblemRepository interface {
	// FindByPlatformAndPids は指定プラットフォームの外部ID集合に一致する
	// 問題を一括取得する。
	FindByPlatformAndPids(ctx context.Context, platform model.Platform, pids []string) ([]*model.Problem, error)

	// Upsert は問題を挿入し、既存の場合は名前とタグのみ更新する。
	// 挿入・更新後のIDをproblem.IDに書き戻す。
	Upsert(ctx context.Context, problem *model.Problem) error
}

// LinkRepository はプラットフォームリンク設定の永続化インターフェース。
type LinkRepository interface {
	// Get は指定プラットフォームのリンク設定を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, platform model.Platform) (*model.PlatformLink, error)

	// Save はリンク設定を保存する（トークン更新を含む）。
	Save(ctx context.Context, link *model.PlatformLink) error
}

// AttemptRowRepository は非正規化射影の永続化インターフェース。
// 再構築は「全削除→全再挿入」で行い、差分更新はしない。
type AttemptRowRepository interface {
	// ReplaceAll は射影の全行を単一トランザクションで置き換える。
	// 失敗時は旧行がそのまま残り、読み手が空の射影を観測することはない。
	ReplaceAll(ctx context.Context, rows []*model.AttemptRow) error

	// PageByUsername は指定ユーザーの行をattempt_at降順でページ取得し、
	// 行スライスと総件数を返す。
	PageByUsername(ctx context.Context, username string, page, size int) ([]*model.AttemptRow, int64, error)
}
