// Package ingest は外部プラットフォームからの取り込みサイクルを提供する。
// オーケストレータ、ワーカープール、一過性エラーのリトライ戦略を含む。
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// transientPQCodes は並行書き込み間の競合として再試行できるPostgreSQLエラーコード。
//
//	23505: unique_violation（並行ライターとの良性の競合）
//	40001: serialization_failure
//	40P01: deadlock_detected
//	55P03: lock_not_available
var transientPQCodes = map[pq.ErrorCode]struct{}{
	"23505": {},
	"40001": {},
	"40P01": {},
	"55P03": {},
}

// IsTransient は再試行で成功する見込みのあるストレージエラーかを判定する。
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := transientPQCodes[pqErr.Code]
		return ok
	}
	return false
}

// WithRetry は一過性エラーに限って書き込み操作を再試行する。
// 遅延は線形に増加する（baseDelay × 試行回数）。
// 一過性でないエラーは即座に返し、全試行が尽きた場合は最後のエラーを返す。
// 呼び出し側はエラーを必ず観測できる（黙って飲み込まない）。
func WithRetry(ctx context.Context, logger *slog.Logger, name string, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		logger.Warn("一過性のストレージ競合が発生しました",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", lastErr.Error()),
		)

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt)):
		}
	}

	logger.Error("リトライ上限に達しました",
		slog.String("operation", name),
		slog.Int("max_attempts", maxAttempts),
		slog.String("error", lastErr.Error()),
	)
	return lastErr
}
