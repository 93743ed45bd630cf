// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// リフレッシュ時にも期限切れセッションは参照されないが、
// 行はこのジョブで定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionSweeper は期限切れセッションを削除する。
// repository.SessionRepository が満たす。
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepRecorder は削除件数をメトリクスに記録する。
type SweepRecorder interface {
	RecordSessionsSwept(count int64)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 稼働中のトラフィックと並行して実行しても安全で、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions SessionSweeper
	logger   *slog.Logger
	metrics  SweepRecorder
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilでもよい。
func NewCleanupJob(sessions SessionSweeper, logger *slog.Logger, metrics SweepRecorder) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run はexpires_atが現在時刻より前のセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsSwept(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回Runを実行し、以後intervalごとに繰り返す。
// ctxがキャンセルされるまでブロックする。失敗はRun内でログに残し、次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
