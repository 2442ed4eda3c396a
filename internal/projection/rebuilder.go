// Package projection は試行の非正規化射影（読み取り専用ビュー）を提供する。
// 正規ストアから全行を結合・フラット化し、単一トランザクションの全置換で再構築する。
package projection

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/repository"
)

// ErrRebuildInProgress は射影再構築の多重起動を拒否したことを示す。
var ErrRebuildInProgress = errors.New("射影の再構築は既に実行中です")

// Recorder は射影再構築の計測インターフェース。
type Recorder interface {
	// ObserveRebuildDuration は再構築の所要時間を記録する。
	ObserveRebuildDuration(d time.Duration)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Rebuilder は非正規化射影の再構築とページ読み取りを提供する。
// 再構築はプロセス内でシングルフライトで実行される。
type Rebuilder struct {
	attempts repository.AttemptRepository
	rows     repository.AttemptRowRepository
	metrics  Recorder
	logger   *slog.Logger

	running atomic.Bool
}

// NewRebuilder はRebuilderを生成する。
func NewRebuilder(attempts repository.AttemptRepository, rows repository.AttemptRowRepository, metrics Recorder, logger *slog.Logger) *Rebuilder {
	return &Rebuilder{
		attempts: attempts,
		rows:     rows,
		metrics:  metrics,
		logger:   logger,
	}
}

// IsRunning は再構築が実行中かを返す。
func (r *Rebuilder) IsRunning() bool {
	return r.running.Load()
}

// Rebuild は射影を全削除・全再生成する。
// 既に実行中の場合はErrRebuildInProgressを返す。
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRebuildInProgress
	}
	defer r.running.Store(false)
	return r.rebuild(ctx)
}

func (r *Rebuilder) rebuild(ctx context.Context) error {
	start := time.Now()

	joined, err := r.attempts.ListAllForProjection(ctx)
	if err != nil {
		r.logger.Error("射影元データの取得に失敗しました", slog.String("error", err.Error()))
		return err
	}

	rows := make([]*model.AttemptRow, 0, len(joined))
	for _, j := range joined {
		rows = append(rows, &model.AttemptRow{
			ID:          uuid.NewString(),
			Username:    j.Username,
			Platform:    j.Platform,
			Pid:         j.Pid,
			ProblemName: j.ProblemName,
			URL:         j.URL,
			Points:      j.Points,
			Tags:        model.JoinTags(j.Tags),
			Verdict:     j.Verdict,
			AttemptAt:   j.AttemptAt,
		})
	}

	if err := r.rows.ReplaceAll(ctx, rows); err != nil {
		r.logger.Error("射影の置き換えに失敗しました",
			slog.Int("row_count", len(rows)),
			slog.String("error", err.Error()),
		)
		return err
	}

	duration := time.Since(start)
	r.metrics.ObserveRebuildDuration(duration)
	r.logger.Info("射影の再構築が完了しました",
		slog.Int("row_count", len(rows)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Worker は再構築依頼チャネルを消費し続ける。
// コンテキストがキャンセルされるまで実行を継続する。取り込み側の
// 非ブロッキング送信と対になっており、実行中に届いた依頼は
// バッファ1のチャネルに畳み込まれる。
func (r *Rebuilder) Worker(ctx context.Context, rebuildCh <-chan struct{}) {
	r.logger.Info("射影再構築ワーカーを開始しました")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("射影再構築ワーカーを停止しました")
			return
		case <-rebuildCh:
			if err := r.Rebuild(ctx); err != nil && !errors.Is(err, ErrRebuildInProgress) {
				r.logger.Error("射影の再構築に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// Page は指定ユーザーの射影行の1ページ。
type Page struct {
	Rows  []*model.AttemptRow
	Total int64
	Page  int
	Size  int
}

// GetPage は指定ユーザーの射影行をattempt_at降順でページ取得する。
// ページは0始まり。sizeは1〜100に正規化する（0以下はデフォルト20）。
func (r *Rebuilder) GetPage(ctx context.Context, username string, page, size int) (*Page, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	rows, total, err := r.rows.PageByUsername(ctx, username, page, size)
	if err != nil {
		return nil, err
	}
	return &Page{Rows: rows, Total: total, Page: page, Size: size}, nil
}
