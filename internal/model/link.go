package model

// PlatformLink はプラットフォームごとのURLテンプレートと認証設定を表す。
// 取り込み中は読み取り専用で、トークン管理操作だけが書き換える。
type PlatformLink struct {
	Platform Platform
	// HomepageLink はプラットフォームのトップページ。
	HomepageLink string
	// UserInfoLink はユーザーの提出記録を取得するURLテンプレート。
	UserInfoLink string
	// ProblemLink は問題詳細ページのURLテンプレート。
	ProblemLink string
	// ProblemStatusLink は問題統計ページのURLテンプレート。
	ProblemStatusLink string
	// AuthToken はログイン後のトークン/Cookie文字列。
	AuthToken string
	// TokenFormat はトークン形式の説明（例: "__client_id=xxx; _uid=xxx"）。
	TokenFormat string
	// RequiresToken はこのプラットフォームがトークン認証を必要とするか。
	RequiresToken bool
}

// TokenValidationResult はトークンの有効性検証の結果を表す。
type TokenValidationResult struct {
	Valid     bool   `json:"valid"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

// TokenFormatValidationResult はトークン形式の事前検証（ネットワーク非依存）の結果を表す。
type TokenFormatValidationResult struct {
	Valid          bool     `json:"valid"`
	Message        string   `json:"message"`
	RequiredFields []string `json:"required_fields,omitempty"`
	MissingFields  []string `json:"missing_fields,omitempty"`
}

// トークン検証のエラーコード
const (
	TokenErrMissing    = "TOKEN_MISSING"
	TokenErrExpired    = "TOKEN_EXPIRED"
	TokenErrValidation = "VALIDATION_ERROR"
)
