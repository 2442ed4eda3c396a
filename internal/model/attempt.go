package model

import "time"

// Attempt はユーザーによる1回の提出結果（判定＋時刻）を表す。
// 正規ストアは追記専用で、取り込みが既存レコードを更新・削除することはない。
type Attempt struct {
	ID        int64
	UserID    int64
	AccountID *int64
	ProblemID int64
	// Pid は問題の外部ID。重複判定キーの構成要素としてDBの主キーに
	// 依存しないよう保持する。
	Pid       string
	Platform  Platform
	Verdict   Verdict
	AttemptAt time.Time
}

// AttemptKey は重複排除のための複合同一性キー。
// 比較可能な構造体をマップのキーにすることで、順序付けロジックと
// 同値判定の不一致による重複見逃しを構造的に排除する。
// AttemptAtはUTCの秒単位に切り詰める。同一秒・同一判定の複数リモート提出は
// 1回の試行として扱う。
type AttemptKey struct {
	UserID    int64
	Platform  Platform
	Pid       string
	Verdict   Verdict
	AttemptAt int64
}

// Key はこの試行の同一性キーを返す。
func (a *Attempt) Key() AttemptKey {
	return AttemptKey{
		UserID:    a.UserID,
		Platform:  a.Platform,
		Pid:       a.Pid,
		Verdict:   a.Verdict,
		AttemptAt: a.AttemptAt.UTC().Truncate(time.Second).Unix(),
	}
}
