package crawler

import (
	"reflect"
	"testing"
)

// Cookie形式のトークンが正しくパースされることを検証
func TestParseCookies_CookiePairs(t *testing.T) {
	got := ParseCookies("__client_id=abc123; _uid=456")
	want := map[string]string{"__client_id": "abc123", "_uid": "456"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseCookies = %v, want %v", got, want)
	}
}

// name:value形式のトークンが正しくパースされることを検証
func TestParseCookies_ColonForm(t *testing.T) {
	got := ParseCookies("JSESSIONID:XYZ789")
	want := map[string]string{"JSESSIONID": "XYZ789"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseCookies = %v, want %v", got, want)
	}
}

// 空文字列は空マップになることを検証
func TestParseCookies_Empty(t *testing.T) {
	if got := ParseCookies(""); len(got) != 0 {
		t.Errorf("ParseCookies(\"\") = %v, want empty", got)
	}
	if got := ParseCookies("   "); len(got) != 0 {
		t.Errorf("ParseCookies(blank) = %v, want empty", got)
	}
}

// 値に=を含むCookieが最初の=でのみ分割されることを検証
func TestParseCookies_ValueContainsEquals(t *testing.T) {
	got := ParseCookies("LEETCODE_SESSION=eyJhbGciOi==")
	if got["LEETCODE_SESSION"] != "eyJhbGciOi==" {
		t.Errorf("value = %q, want %q", got["LEETCODE_SESSION"], "eyJhbGciOi==")
	}
}

// CookieHeaderが指定キー順に組み立てられることを検証
func TestCookieHeader_Order(t *testing.T) {
	cookies := map[string]string{"_uid": "1", "__client_id": "abc"}
	got := CookieHeader(cookies, "__client_id", "_uid")
	if got != "__client_id=abc; _uid=1" {
		t.Errorf("CookieHeader = %q", got)
	}
}

// 存在しないキーはCookieHeaderから除外されることを検証
func TestCookieHeader_MissingKey(t *testing.T) {
	got := CookieHeader(map[string]string{"a": "1"}, "a", "b")
	if got != "a=1" {
		t.Errorf("CookieHeader = %q, want %q", got, "a=1")
	}
}

// 形式テンプレートから必須フィールドが出現順に抽出されることを検証
func TestRequiredTokenFields(t *testing.T) {
	got := RequiredTokenFields("__client_id=xxx; _uid=xxx")
	want := []string{"__client_id", "_uid"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RequiredTokenFields = %v, want %v", got, want)
	}
}

// 形式テンプレートが空なら必須フィールドなしと判定されることを検証
func TestRequiredTokenFields_Empty(t *testing.T) {
	if got := RequiredTokenFields(""); len(got) != 0 {
		t.Errorf("RequiredTokenFields(\"\") = %v, want empty", got)
	}
}

// トークン形式検証の各パターンを検証
func TestValidateTokenFormat(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		token       string
		wantValid   bool
		wantMissing []string
	}{
		{
			name:      "形式要件なしのプラットフォームは常に有効",
			format:    "",
			token:     "",
			wantValid: true,
		},
		{
			name:      "全必須フィールドを含むトークンは有効",
			format:    "__client_id=xxx; _uid=xxx",
			token:     "__client_id=abc; _uid=123",
			wantValid: true,
		},
		{
			name:        "フィールド不足のトークンは無効",
			format:      "__client_id=xxx; _uid=xxx",
			token:       "__client_id=abc",
			wantValid:   false,
			wantMissing: []string{"_uid"},
		},
		{
			name:        "空トークンは全フィールド不足",
			format:      "LEETCODE_SESSION=xxx",
			token:       "",
			wantValid:   false,
			wantMissing: []string{"LEETCODE_SESSION"},
		},
		{
			name:        "値が空のフィールドは不足扱い",
			format:      "JSESSIONID=xxx",
			token:       "JSESSIONID=",
			wantValid:   false,
			wantMissing: []string{"JSESSIONID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateTokenFormat(tt.format, tt.token)
			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", result.Valid, tt.wantValid)
			}
			if !tt.wantValid && !reflect.DeepEqual(result.MissingFields, tt.wantMissing) {
				t.Errorf("MissingFields = %v, want %v", result.MissingFields, tt.wantMissing)
			}
		})
	}
}
