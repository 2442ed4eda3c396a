package crawler

import (
	"fmt"
	"strings"

	"github.com/hitoshi/ojtracker/internal/model"
)

// ParseCookies はトークン文字列をCookie名と値のマップに分解する。
// "k1=v1; k2=v2" 形式と "name:value" 形式の両方を受け付ける。
// 空文字列は空マップを返す。
func ParseCookies(token string) map[string]string {
	token = strings.TrimSpace(token)
	if token == "" {
		return map[string]string{}
	}

	// "name:value" 形式（一部プラットフォームの旧形式）
	if !strings.Contains(token, "=") && strings.Contains(token, ":") {
		parts := strings.SplitN(token, ":", 2)
		return map[string]string{
			strings.TrimSpace(parts[0]): strings.TrimSpace(parts[1]),
		}
	}

	cookies := make(map[string]string)
	for _, pair := range strings.Split(token, ";") {
		pair = strings.TrimSpace(pair)
		if !strings.Contains(pair, "=") {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return cookies
}

// CookieHeader はCookieマップを送信用のCookieヘッダ値に組み立てる。
// 再現性のためkeysの順序で並べる。
func CookieHeader(cookies map[string]string, keys ...string) string {
	var parts []string
	for _, k := range keys {
		if v, ok := cookies[k]; ok && v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "; ")
}

// RequiredTokenFields はトークン形式テンプレートから必須Cookie名を抽出する。
// 形式は "__client_id=xxx; _uid=xxx" のように必須キーを列挙した文字列で、
// 値の部分はプレースホルダとして無視される。
func RequiredTokenFields(format string) []string {
	var fields []string
	for k := range ParseCookies(format) {
		fields = append(fields, k)
	}
	// マップ順序の揺れを避けるため、テンプレート内の出現順に並べ直す
	ordered := make([]string, 0, len(fields))
	for _, pair := range strings.Split(format, ";") {
		pair = strings.TrimSpace(pair)
		for _, sep := range []string{"=", ":"} {
			if idx := strings.Index(pair, sep); idx > 0 {
				key := strings.TrimSpace(pair[:idx])
				for _, f := range fields {
					if f == key {
						ordered = append(ordered, key)
					}
				}
				break
			}
		}
	}
	return ordered
}

// ValidateTokenFormat はトークンが形式テンプレートの必須フィールドを
// すべて含むかをネットワークアクセスなしで検証する。
// 形式テンプレートが空のプラットフォームは常に有効とみなす。
func ValidateTokenFormat(format, token string) *model.TokenFormatValidationResult {
	required := RequiredTokenFields(format)
	if len(required) == 0 {
		return &model.TokenFormatValidationResult{
			Valid:   true,
			Message: "このプラットフォームにトークン形式の要件はありません",
		}
	}

	provided := ParseCookies(token)
	var missing []string
	for _, field := range required {
		if v, ok := provided[field]; !ok || v == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return &model.TokenFormatValidationResult{
			Valid:          false,
			Message:        fmt.Sprintf("必須フィールドが不足しています: %s", strings.Join(missing, ", ")),
			RequiredFields: required,
			MissingFields:  missing,
		}
	}

	return &model.TokenFormatValidationResult{
		Valid:          true,
		Message:        "トークン形式は有効です",
		RequiredFields: required,
	}
}
