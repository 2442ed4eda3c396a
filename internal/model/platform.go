// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// Platform は外部ジャッジプラットフォームの識別子を表す。
type Platform string

const (
	// PlatformCodeforces はCodeforces（REST API）。
	PlatformCodeforces Platform = "codeforces"
	// PlatformLeetCode は力扣中国站（GraphQL API、要トークン）。
	PlatformLeetCode Platform = "leetcode"
	// PlatformAtCoder はAtCoder（kenkoooo AtCoder Problems API経由）。
	PlatformAtCoder Platform = "atcoder"
	// PlatformLuogu は洛谷（JSON API、要トークン）。
	PlatformLuogu Platform = "luogu"
	// PlatformHDU は杭電OJ（HTMLスクレイピング）。
	PlatformHDU Platform = "hdu"
	// PlatformPOJ は北大OJ（HTMLスクレイピング）。
	PlatformPOJ Platform = "poj"
)

// AllPlatforms は対応プラットフォームの一覧（表示・反復用の固定順）。
var AllPlatforms = []Platform{
	PlatformCodeforces,
	PlatformLeetCode,
	PlatformAtCoder,
	PlatformLuogu,
	PlatformHDU,
	PlatformPOJ,
}

// ParsePlatform は文字列をPlatformに変換する。大文字小文字は区別しない。
// 未知の名前の場合はエラーを返す。
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("未知のプラットフォームです: %q", s)
}

// String はstringerインターフェースを実装する。
func (p Platform) String() string {
	return string(p)
}
