package model

import "time"

// TrackedUser は追跡対象のユーザーを表す。
// ユーザー本体はディレクトリ側が管理する。取り込みパイプラインは
// ユーザー一覧の読み取りとLastAttemptAtの書き戻しのみを行う。
type TrackedUser struct {
	ID            int64
	Username      string
	RealName      string
	LastAttemptAt *time.Time
	Accounts      []PlatformAccount
}

// AccountsFor は指定プラットフォームに紐付くアカウントのみを返す。
func (u *TrackedUser) AccountsFor(platform Platform) []PlatformAccount {
	var accounts []PlatformAccount
	for _, a := range u.Accounts {
		if a.Platform == platform {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

// PlatformAccount はユーザーと外部プラットフォームのアカウントの紐付けを表す。
// Handleはカンマ区切りで複数のリモートハンドルを含むことがある。
// (Platform, Handle) の組はユーザーをまたいでグローバルに一意。
type PlatformAccount struct {
	ID         int64
	UserID     int64
	Platform   Platform
	Handle     string
	Active     bool
	LastSyncAt *time.Time
}
