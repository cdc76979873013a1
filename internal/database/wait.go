package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialPingBackoff は接続確認リトライの初回遅延。
	initialPingBackoff = 500 * time.Millisecond
	// maxPingBackoff は接続確認リトライの最大遅延。
	maxPingBackoff = 8 * time.Second
)

// Pinger は接続確認が可能なDB。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingBackoff は失敗回数に基づく指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func PingBackoff(failures int) time.Duration {
	delay := initialPingBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxPingBackoff {
			return maxPingBackoff
		}
	}
	return delay
}

// WaitForReady はDBが応答するまで最大attempts回PingContextを繰り返す。
// コンテナ起動直後にDBがまだ受け付けていない場合に使う。
func WaitForReady(ctx context.Context, db Pinger, attempts int) error {
	return waitForReady(ctx, db, attempts, PingBackoff)
}

func waitForReady(ctx context.Context, db Pinger, attempts int, backoff func(int) time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := backoff(i)
		slog.Warn("database not ready, retrying",
			slog.Int("attempt", i+1),
			slog.Duration("retry_in", delay),
			slog.String("error", lastErr.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("database not ready after %d attempts: %w", attempts, lastErr)
}
