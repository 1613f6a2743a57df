package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

const (
	// initialBackoff は接続再試行の初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は接続再試行の最大遅延。
	maxBackoff = 8 * time.Second
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ConnectWithRetry はデータベースが起動するまで指数バックオフで接続を再試行する。
// attemptsは試行回数の上限（1未満は1とみなす）。ctxがキャンセルされた場合は直ちに戻る。
func ConnectWithRetry(ctx context.Context, databaseURL string, attempts int) (*sql.DB, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := Connect(ctx, databaseURL)
		if err == nil {
			return db, nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		delay := CalculateBackoff(i)
		slog.Warn("database not ready, retrying",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
