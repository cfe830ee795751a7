package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
)

// NoShowSweeper は猶予切れの approved 予約を no_show にするインターフェース
type NoShowSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ExpiredReservationSweeper は一定間隔でスイープを実行するワーカー。
// 各予約操作の冒頭でも同じスイープが走るため、これは補助的な実行経路
type ExpiredReservationSweeper struct {
	sweeper  NoShowSweeper
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewExpiredReservationSweeper は新しいワーカーを作成
func NewExpiredReservationSweeper(s NoShowSweeper, interval time.Duration) *ExpiredReservationSweeper {
	return &ExpiredReservationSweeper{
		sweeper:  s,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はワーカーを開始し、停止されるまでブロックする
func (w *ExpiredReservationSweeper) Start(ctx context.Context) {
	logger.Info("no_show スイーパー開始", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("no_show スイーパー停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("no_show スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop はワーカーを停止し、実行中のスイープの終了を待つ
func (w *ExpiredReservationSweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *ExpiredReservationSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("no_show スイープ開始")

	count, err := w.sweeper.Sweep(ctx)
	if err != nil {
		log.Error("no_show スイープ失敗", zap.Int("count", count), zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("no_show に更新", zap.Int("count", count))
	} else {
		log.Debug("no_show 対象なし")
	}
}
