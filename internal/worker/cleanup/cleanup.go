// Package cleanup はセッションの自動削除ジョブを提供する。
// 最大有効期間（SESSION_MAX_AGE）を超過したリフレッシュハンドルを
// 定期バッチで削除する。期間超過のハンドルは削除前でも照会時に無効として扱われる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner は作成日時でセッションを一括削除するインターフェース。
type SessionPruner interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneRecorder は削除件数を記録するインターフェース。
type PruneRecorder interface {
	RecordSessionsPruned(count int64)
}

// CleanupJob は最大有効期間を超過したセッションの自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	sessions SessionPruner
	recorder PruneRecorder
	logger   *slog.Logger
	MaxAge   time.Duration // セッションの最大有効期間
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderはnilでもよい。
func NewCleanupJob(sessions SessionPruner, recorder PruneRecorder, logger *slog.Logger, maxAge time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
		MaxAge:   maxAge,
		now:      time.Now,
	}
}

// Run は最大有効期間を超過したセッションを削除する。
// created_atが now - MaxAge より古いセッションをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.MaxAge <= 0 {
		return fmt.Errorf("セッションの最大有効期間が設定されていません")
	}

	start := time.Now()
	cutoff := j.now().Add(-j.MaxAge)

	deletedCount, err := j.sessions.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("max_age", j.MaxAge),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsPruned(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("max_age", j.MaxAge),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("max_age", j.MaxAge),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
