// Package crawler は外部プラットフォームから提出記録を取得するアダプタ群を提供する。
// 各アダプタはプラットフォーム固有のプロトコル（REST、GraphQL、HTMLスクレイプ）を
// 隠蔽し、正規化済みの試行リストを返す。
package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

// FetchedAttempt はプラットフォームから取得した正規化済みの1試行を表す。
// 問題のメタデータは同じ応答に含まれることが多いため、一緒に運ぶ。
type FetchedAttempt struct {
	Pid         string
	ProblemName string
	ProblemURL  string
	Points      *float64
	Tags        []string
	Verdict     model.Verdict
	AttemptAt   time.Time
}

// CatalogProblem はプラットフォームの問題カタログの1件を表す。
type CatalogProblem struct {
	Pid    string
	Name   string
	URL    string
	Points *float64
	Tags   []string
}

// Adapter はプラットフォームアダプタのインターフェースを定義する。
// 実装は1プラットフォーム1型で、Registryに登録して使用する。
type Adapter interface {
	// Platform はこのアダプタが担当するプラットフォームを返す。
	Platform() model.Platform

	// FetchAttempts は指定ハンドルの全試行を取得して正規化する。
	// 認証失効はTOKEN_EXPIREDコードのCrawlErrorで返す。
	FetchAttempts(ctx context.Context, link *model.PlatformLink, handle string) ([]FetchedAttempt, error)

	// FetchProblemCatalog はプラットフォームの全問題カタログを取得する。
	// カタログの提供元がないプラットフォームは空を返す。
	FetchProblemCatalog(ctx context.Context, link *model.PlatformLink) ([]CatalogProblem, error)

	// ValidateToken は保存済みトークンの有効性を検証する。
	// トークン不要の設定では通信せず常にValid=trueを返す。
	// 検証結果は常に返り、通信エラーもValid=falseの結果に畳み込まれる。
	ValidateToken(ctx context.Context, link *model.PlatformLink) *model.TokenValidationResult
}

// ProblemEnricher はステータス一覧に問題名が含まれないプラットフォーム用の
// 補完インターフェース。オーケストレータは未知の問題に限って遅延取得する。
type ProblemEnricher interface {
	// FetchProblemName は問題ページから問題名を取得する。
	FetchProblemName(ctx context.Context, link *model.PlatformLink, pid string) (string, error)
}

// Registry はプラットフォームとアダプタの対応を保持する。
type Registry struct {
	adapters map[model.Platform]Adapter
	order    []model.Platform
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Platform]Adapter)}
}

// Register はアダプタを登録する。同一プラットフォームの二重登録はエラーを返す。
func (r *Registry) Register(a Adapter) error {
	p := a.Platform()
	if _, ok := r.adapters[p]; ok {
		return fmt.Errorf("アダプタが重複しています: %s", p)
	}
	r.adapters[p] = a
	r.order = append(r.order, p)
	return nil
}

// Get は指定プラットフォームのアダプタを返す。未登録の場合はok=falseを返す。
func (r *Registry) Get(platform model.Platform) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

// All は登録順の全アダプタを返す。
func (r *Registry) All() []Adapter {
	result := make([]Adapter, 0, len(r.order))
	for _, p := range r.order {
		result = append(result, r.adapters[p])
	}
	return result
}

// Platforms は登録順の全プラットフォームを返す。
func (r *Registry) Platforms() []model.Platform {
	return append([]model.Platform(nil), r.order...)
}
