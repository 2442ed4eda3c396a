package model

import (
	"errors"
	"fmt"
)

// APIError はAPIレスポンスの統一エラーフォーマットを表す。
// 原因カテゴリと操作者への対処方法を含む。
type APIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewUserNotFoundError は指定ユーザーが存在しないエラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     "USER_NOT_FOUND",
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", username),
		Category: "client",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewUnknownPlatformError は未対応プラットフォームの指定エラーを生成する。
func NewUnknownPlatformError(platform string) *APIError {
	return &APIError{
		Code:     "UNKNOWN_PLATFORM",
		Message:  fmt.Sprintf("未対応のプラットフォームです: %s", platform),
		Category: "client",
		Action:   "対応プラットフォームの一覧を確認してください。",
	}
}

// NewSyncInProgressError は取り込み実行中の多重起動エラーを生成する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     "SYNC_IN_PROGRESS",
		Message:  "取り込みは既に実行中です。",
		Category: "client",
		Action:   "現在の取り込みが完了してから再度お試しください。",
	}
}

// CrawlError は外部プラットフォームとの通信・解析で発生した型付きエラーを表す。
// オーケストレータはエラーコードで分類し、タスク境界を越えて伝播させない。
type CrawlError struct {
	Platform Platform
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Err      error  // 元のエラー（なければnil）
}

// Error はerrorインターフェースを実装する。
func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Platform, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Platform, e.Code, e.Message)
}

// Unwrap はerrors.Is/As用に元のエラーを返す。
func (e *CrawlError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeNetwork       = "NETWORK_ERROR"
	ErrCodeParse         = "PARSE_ERROR"
	ErrCodeTokenExpired  = "TOKEN_EXPIRED"
	ErrCodeConfigMissing = "CONFIG_MISSING"
)

// NewNetworkError はプラットフォームへの通信失敗エラーを生成する。
func NewNetworkError(platform Platform, err error) *CrawlError {
	return &CrawlError{
		Platform: platform,
		Code:     ErrCodeNetwork,
		Message:  "プラットフォームへの通信に失敗しました",
		Err:      err,
	}
}

// NewParseError はリモート応答が期待スキーマに一致しないエラーを生成する。
func NewParseError(platform Platform, err error) *CrawlError {
	return &CrawlError{
		Platform: platform,
		Code:     ErrCodeParse,
		Message:  "リモート応答の解析に失敗しました",
		Err:      err,
	}
}

// NewTokenExpiredError は認証トークン失効エラーを生成する。
// 操作者へ再ログインを促すため、専用コードで区別できるようにする。
func NewTokenExpiredError(platform Platform, message string) *CrawlError {
	return &CrawlError{
		Platform: platform,
		Code:     ErrCodeTokenExpired,
		Message:  message,
	}
}

// NewConfigMissingError はプラットフォームのリンク設定が存在しないエラーを生成する。
func NewConfigMissingError(platform Platform) *CrawlError {
	return &CrawlError{
		Platform: platform,
		Code:     ErrCodeConfigMissing,
		Message:  "プラットフォームのリンク設定がありません",
	}
}

// IsTokenExpired はトークン失効エラーかどうかを判定する。
func IsTokenExpired(err error) bool {
	var ce *CrawlError
	return errors.As(err, &ce) && ce.Code == ErrCodeTokenExpired
}
