package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler は取り込みサイクルを一定間隔で起動する。
// サイクルが前回から継続中の場合はスキップする（多重起動しない）。
type Scheduler struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(orchestrator *Orchestrator, logger *slog.Logger) *Scheduler {
	return &Scheduler{orchestrator: orchestrator, logger: logger}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.tick()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick は取り込みサイクルを1回同期実行する。実行中スキップは情報ログに落とす。
func (s *Scheduler) tick() {
	if err := s.orchestrator.RunOnce(); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Info("取り込みが実行中のためスキップしました")
			return
		}
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
