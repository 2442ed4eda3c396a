package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/ojtracker/internal/crawler"
	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/repository"
)

// ErrSyncInProgress は取り込みサイクルの多重起動を拒否したことを示す。
var ErrSyncInProgress = errors.New("取り込みは既に実行中です")

// Recorder は取り込みサイクルの計測インターフェース。
type Recorder interface {
	// RecordFetch はプラットフォーム×ハンドル単位のフェッチ結果を記録する。
	RecordFetch(platform model.Platform, success bool)
	// RecordAttemptsInserted は新規永続化された試行数を記録する。
	RecordAttemptsInserted(n int)
	// RecordFailedWrite はリトライ後も失敗した書き込みを記録する。
	RecordFailedWrite()
	// ObserveRunDuration は取り込みサイクルの所要時間を記録する。
	ObserveRunDuration(d time.Duration)
}

// Config は取り込みサイクルの動作パラメータ。
type Config struct {
	// MaxConcurrent はワーカープールの最大並列数。
	MaxConcurrent int
	// TaskTimeout はアダプタ×ユーザー1タスクのタイムアウト。
	TaskTimeout time.Duration
	// GlobalTimeout はサイクル全体のタイムアウト。
	GlobalTimeout time.Duration
	// RetryMaxAttempts は一過性エラーの最大試行回数。
	RetryMaxAttempts int
	// RetryBaseDelay はリトライ遅延の基準値。
	RetryBaseDelay time.Duration
}

// Orchestrator は全プラットフォーム×全ユーザーの取り込みサイクルを統括する。
// サイクルはプロセス内でシングルフライト（同時に1つだけ）で実行される。
type Orchestrator struct {
	registry *crawler.Registry
	users    repository.UserRepository
	attempts repository.AttemptRepository
	problems repository.ProblemRepository
	links    repository.LinkRepository
	metrics  Recorder
	logger   *slog.Logger
	cfg      Config

	// rebuildCh はサイクル完了時に射影再構築を依頼するチャネル。
	// バッファ1の非ブロッキング送信で、再構築側が追いつかなくても詰まらない。
	rebuildCh chan<- struct{}

	running       atomic.Bool
	lastCompleted atomic.Pointer[time.Time]
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator(
	registry *crawler.Registry,
	users repository.UserRepository,
	attempts repository.AttemptRepository,
	problems repository.ProblemRepository,
	links repository.LinkRepository,
	metrics Recorder,
	logger *slog.Logger,
	cfg Config,
	rebuildCh chan<- struct{},
) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Orchestrator{
		registry:  registry,
		users:     users,
		attempts:  attempts,
		problems:  problems,
		links:     links,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		rebuildCh: rebuildCh,
	}
}

// IsRunning は取り込みサイクルが実行中かを返す。
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// LastCompletedAt は直近に完了したサイクルの時刻を返す。未完了の場合はnil。
func (o *Orchestrator) LastCompletedAt() *time.Time {
	return o.lastCompleted.Load()
}

// TriggerRun は全プラットフォームの取り込みサイクルを非同期で開始する。
// 既に実行中の場合はErrSyncInProgressを返す。
func (o *Orchestrator) TriggerRun() error {
	return o.TriggerRunExcluding(nil)
}

// TriggerRunExcluding は指定プラットフォームを除外した取り込みサイクルを
// 非同期で開始する。既に実行中の場合はErrSyncInProgressを返す。
func (o *Orchestrator) TriggerRunExcluding(excluded []model.Platform) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}

	excludedSet := make(map[model.Platform]struct{}, len(excluded))
	for _, p := range excluded {
		excludedSet[p] = struct{}{}
	}

	go func() {
		defer o.running.Store(false)
		o.run(excludedSet)
	}()
	return nil
}

// RunOnce は取り込みサイクルを同期で1回実行する。スケジューラ用。
// 既に実行中の場合はErrSyncInProgressを返す。
func (o *Orchestrator) RunOnce() error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer o.running.Store(false)
	o.run(nil)
	return nil
}

// fetchedEntry はタスクが取得した1試行と由来アカウントの対。
// problemIDは問題解決フェーズで埋められる。0は解決失敗を意味する。
type fetchedEntry struct {
	attempt   crawler.FetchedAttempt
	userID    int64
	account   *model.PlatformAccount
	problemID int64
}

// run は取り込みサイクルの本体。HTTPリクエストから切り離して実行されるため、
// 独立したコンテキストに全体タイムアウトだけを載せる。
func (o *Orchestrator) run(excluded map[model.Platform]struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GlobalTimeout)
	defer cancel()

	start := time.Now()
	o.logger.Info("取り込みサイクルを開始します",
		slog.Int("excluded_count", len(excluded)),
	)

	users, err := o.users.ListTrackedUsers(ctx)
	if err != nil {
		o.logger.Error("ユーザー一覧の取得に失敗しました", slog.String("error", err.Error()))
		return
	}

	persistedKeys, err := o.attempts.FindAllKeys(ctx)
	if err != nil {
		o.logger.Error("永続化済み試行キーの取得に失敗しました", slog.String("error", err.Error()))
		return
	}

	// 取得結果の合流先。同一キーの重複は最初の書き込みが勝つ。
	var mu sync.Mutex
	merged := make(map[model.AttemptKey]*model.Attempt)
	perUserLatest := make(map[int64]time.Time)

	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, adapter := range o.registry.All() {
		if _, skip := excluded[adapter.Platform()]; skip {
			continue
		}
		for _, user := range users {
			if len(user.AccountsFor(adapter.Platform())) == 0 {
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(a crawler.Adapter, u *model.TrackedUser) {
				defer wg.Done()
				defer func() { <-sem }()

				entries := o.runTask(ctx, a, u)
				if len(entries) == 0 {
					return
				}

				mu.Lock()
				defer mu.Unlock()
				for _, e := range entries {
					if e.problemID == 0 {
						// 問題を解決できなかった試行は取り込まない（次回サイクルで再試行される）
						continue
					}
					att := o.toAttempt(e)
					key := att.Key()
					if _, ok := merged[key]; !ok {
						merged[key] = att
					}
					if latest, ok := perUserLatest[e.userID]; !ok || e.attempt.AttemptAt.After(latest) {
						perUserLatest[e.userID] = e.attempt.AttemptAt
					}
				}
			}(adapter, user)
		}
	}
	wg.Wait()

	// デルタ計算: 永続化済みキーに含まれない試行だけを残す
	var delta []*model.Attempt
	for key, att := range merged {
		if _, exists := persistedKeys[key]; !exists {
			delta = append(delta, att)
		}
	}

	inserted := 0
	if len(delta) > 0 {
		err := WithRetry(ctx, o.logger, "試行デルタの保存", o.cfg.RetryMaxAttempts, o.cfg.RetryBaseDelay,
			func(ctx context.Context) error {
				return o.attempts.SaveAll(ctx, delta)
			})
		if err != nil {
			o.metrics.RecordFailedWrite()
			o.logger.Error("試行デルタの保存に失敗しました",
				slog.Int("delta_count", len(delta)),
				slog.String("error", err.Error()),
			)
		} else {
			inserted = len(delta)
			o.metrics.RecordAttemptsInserted(inserted)
		}
	}

	o.flushLastAttemptTimes(ctx, users, perUserLatest)

	now := time.Now()
	o.lastCompleted.Store(&now)

	// 射影の再構築を依頼（再構築側が実行中なら次の完了時に拾われる）
	select {
	case o.rebuildCh <- struct{}{}:
	default:
	}

	duration := time.Since(start)
	o.metrics.ObserveRunDuration(duration)
	o.logger.Info("取り込みサイクルが完了しました",
		slog.Int("user_count", len(users)),
		slog.Int("fetched_count", len(merged)),
		slog.Int("inserted_count", inserted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}

// runTask はアダプタ×ユーザーの1タスクを実行し、取得した試行を返す。
// タスク内のエラーはログと計測に落とし、境界を越えて伝播させない。
func (o *Orchestrator) runTask(ctx context.Context, adapter crawler.Adapter, user *model.TrackedUser) []fetchedEntry {
	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	platform := adapter.Platform()

	link, err := o.links.Get(taskCtx, platform)
	if err != nil {
		o.logger.Error("リンク設定の取得に失敗しました",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()),
		)
		o.metrics.RecordFetch(platform, false)
		return nil
	}
	if link == nil {
		o.logger.Warn("リンク設定がありません", slog.String("platform", string(platform)))
		o.metrics.RecordFetch(platform, false)
		return nil
	}

	var entries []fetchedEntry
	for i := range user.Accounts {
		account := &user.Accounts[i]
		if account.Platform != platform || !account.Active {
			continue
		}
		for _, handle := range splitHandles(account.Handle) {
			fetched, err := adapter.FetchAttempts(taskCtx, link, handle)
			if err != nil {
				if model.IsTokenExpired(err) {
					o.logger.Warn("認証トークンが失効しています",
						slog.String("platform", string(platform)),
						slog.String("handle", handle),
					)
				} else {
					o.logger.Error("提出の取得に失敗しました",
						slog.String("platform", string(platform)),
						slog.String("handle", handle),
						slog.String("error", err.Error()),
					)
				}
				o.metrics.RecordFetch(platform, false)
				continue
			}
			o.metrics.RecordFetch(platform, true)

			for _, f := range fetched {
				entries = append(entries, fetchedEntry{attempt: f, userID: user.ID, account: account})
			}
		}
	}

	if len(entries) > 0 {
		o.resolveProblems(taskCtx, adapter, link, entries)
	}
	return entries
}

// resolveProblems はタスク内の試行が参照する問題の内部IDを解決する。
// 未知の問題は作成し、問題名のないプラットフォームは問題ページから補完する。
// 解決できなかった問題を参照する試行はProblemID=0のまま残り、変換時に捨てられる。
func (o *Orchestrator) resolveProblems(ctx context.Context, adapter crawler.Adapter, link *model.PlatformLink, entries []fetchedEntry) {
	platform := adapter.Platform()

	// pidごとに最も情報の多い1件に集約する
	byPid := make(map[string]*model.Problem)
	order := make([]string, 0)
	for _, e := range entries {
		f := e.attempt
		p, ok := byPid[f.Pid]
		if !ok {
			p = &model.Problem{
				Platform: platform,
				Pid:      f.Pid,
				URL:      f.ProblemURL,
			}
			byPid[f.Pid] = p
			order = append(order, f.Pid)
		}
		if p.Name == "" && f.ProblemName != "" {
			p.Name = f.ProblemName
		}
		if p.Points == nil && f.Points != nil {
			p.Points = f.Points
		}
		if len(p.Tags) == 0 && len(f.Tags) > 0 {
			p.Tags = f.Tags
		}
	}

	existing, err := o.problems.FindByPlatformAndPids(ctx, platform, order)
	if err != nil {
		o.logger.Error("問題の一括取得に失敗しました",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()),
		)
		return
	}
	existingByPid := make(map[string]*model.Problem, len(existing))
	for _, p := range existing {
		existingByPid[p.Pid] = p
	}

	enricher, canEnrich := adapter.(crawler.ProblemEnricher)
	resolved := make(map[string]int64, len(order))

	for _, pid := range order {
		candidate := byPid[pid]
		if prev, ok := existingByPid[pid]; ok {
			// 既知の問題: 名前が新たに判明した場合のみ書き戻す
			if prev.Name != "" || candidate.Name == "" {
				resolved[pid] = prev.ID
				continue
			}
			candidate.ID = prev.ID
		} else if candidate.Name == "" && canEnrich {
			// ステータス一覧に問題名がないプラットフォームは問題ページから補完する
			name, err := enricher.FetchProblemName(ctx, link, pid)
			if err != nil {
				o.logger.Warn("問題名の補完に失敗しました",
					slog.String("platform", string(platform)),
					slog.String("pid", pid),
					slog.String("error", err.Error()),
				)
			} else {
				candidate.Name = name
			}
		}

		err := WithRetry(ctx, o.logger, "問題のupsert", o.cfg.RetryMaxAttempts, o.cfg.RetryBaseDelay,
			func(ctx context.Context) error {
				return o.problems.Upsert(ctx, candidate)
			})
		if err != nil {
			o.metrics.RecordFailedWrite()
			o.logger.Error("問題の保存に失敗しました",
				slog.String("platform", string(platform)),
				slog.String("pid", pid),
				slog.String("error", err.Error()),
			)
			continue
		}
		resolved[pid] = candidate.ID
	}

	for i := range entries {
		entries[i].problemID = resolved[entries[i].attempt.Pid]
	}
}

// toAttempt は取得結果を永続化用の試行に変換する。
func (o *Orchestrator) toAttempt(e fetchedEntry) *model.Attempt {
	accountID := e.account.ID
	return &model.Attempt{
		UserID:    e.userID,
		AccountID: &accountID,
		ProblemID: e.problemID,
		Pid:       e.attempt.Pid,
		Platform:  e.account.Platform,
		Verdict:   e.attempt.Verdict,
		AttemptAt: e.attempt.AttemptAt,
	}
}

// flushLastAttemptTimes は各ユーザーの最終試行時刻を単調に更新する。
// 取得済みの値が保存済みの値より新しい場合のみ書き戻す（巻き戻し禁止）。
func (o *Orchestrator) flushLastAttemptTimes(ctx context.Context, users []*model.TrackedUser, perUserLatest map[int64]time.Time) {
	for _, user := range users {
		latest, ok := perUserLatest[user.ID]
		if !ok {
			continue
		}
		if user.LastAttemptAt != nil && !latest.After(*user.LastAttemptAt) {
			continue
		}

		userID := user.ID
		err := WithRetry(ctx, o.logger, "最終試行時刻の更新", o.cfg.RetryMaxAttempts, o.cfg.RetryBaseDelay,
			func(ctx context.Context) error {
				return o.users.SetLastAttemptAt(ctx, userID, latest)
			})
		if err != nil {
			o.metrics.RecordFailedWrite()
			o.logger.Error("最終試行時刻の更新に失敗しました",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// splitHandles はカンマ区切りのハンドル設定を個別のハンドルに分解する。
func splitHandles(s string) []string {
	var handles []string
	for _, h := range strings.Split(s, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			handles = append(handles, h)
		}
	}
	return handles
}
