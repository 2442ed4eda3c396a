package model

import (
	"strings"
	"time"
)

// Problem は外部プラットフォーム上の問題の正規レコードを表す。
// (Platform, Pid) が正規の識別子。初回目撃時に遅延作成され、
// 再目撃時は名前のみ更新される。取り込みが削除することはない。
type Problem struct {
	ID       int64
	Platform Platform
	Pid      string
	Name     string
	URL      string
	Points   *float64
	Tags     []string
}

// AttemptRow は非正規化射影の1行を表す。
// AttemptとProblemを結合してフラット化したもので、usernameをキーとした
// ページネーション読み取り専用。再構築のたびに全削除・全再生成される。
type AttemptRow struct {
	ID          string
	Username    string
	Platform    Platform
	Pid         string
	ProblemName string
	URL         string
	Points      *float64
	Tags        string // カンマ区切り
	Verdict     Verdict
	AttemptAt   time.Time
}

// TagList はカンマ区切りのタグ文字列をスライスに分解する。
func (r *AttemptRow) TagList() []string {
	if r.Tags == "" {
		return nil
	}
	parts := strings.Split(r.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags はタグ集合を射影格納用のカンマ区切り文字列に直列化する。
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}
