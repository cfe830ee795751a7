package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/config"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/clock"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/metrics"
)

// ExpirySweeper はチェックインされないまま猶予を過ぎた approved 予約を no_show にする
type ExpirySweeper struct {
	repo      reservation.Repository
	clock     clock.Clock
	metrics   *metrics.Metrics
	after     time.Duration
	batchSize int
	timeout   time.Duration
}

func NewExpirySweeper(repo reservation.Repository, cfg config.ReservationConfig, clk clock.Clock, m *metrics.Metrics) *ExpirySweeper {
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = config.DefaultReservationConfig().SweepBatchSize
	}
	return &ExpirySweeper{
		repo:      repo,
		clock:     clk,
		metrics:   m,
		after:     cfg.CheckinGraceAfter,
		batchSize: batch,
		timeout:   cfg.SweepTimeout,
	}
}

// Sweep は start + after < now の未チェックイン approved 予約を一括で no_show にし、件数を返す。
// 何度実行しても結果は変わらない
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	now := s.clock.Now()
	total := 0
	for {
		n, err := s.repo.BulkMarkNoShow(ctx, now, s.after, s.batchSize)
		total += n
		if err != nil {
			s.metrics.ObserveSweep(total, time.Since(started))
			return total, err
		}
		if n < s.batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveSweep(total, time.Since(started))
			return total, err
		}
	}

	s.metrics.ObserveSweep(total, time.Since(started))
	if total > 0 {
		logger.Info("no_show に更新しました", zap.Int("count", total), zap.Time("cutoff", now.Add(-s.after)))
	}
	return total, nil
}
