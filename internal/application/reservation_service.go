package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/config"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/transaction"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/clock"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/metrics"
)

// AssetLocker はプロセス間で共有するアセット単位のロック
type AssetLocker interface {
	LockAsset(ctx context.Context, assetID int64) (release func(context.Context) error, err error)
}

// Sweeper は no_show の一括更新を行う
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ReservationService は予約ライフサイクルを管理する。
// 各操作の冒頭で Sweep を実行し、確認から書き込みまでをアセットロック付きの1トランザクションで行う
type ReservationService struct {
	txManager transaction.Manager
	repo      reservation.Repository
	catalog   asset.Catalog
	sweeper   Sweeper
	locker    AssetLocker
	approval  ApprovalPolicy
	cfg       config.ReservationConfig
	clock     clock.Clock
	metrics   *metrics.Metrics
}

// NewReservationService は ReservationService を作成する。locker と metrics は nil でもよい
func NewReservationService(
	tm transaction.Manager,
	repo reservation.Repository,
	catalog asset.Catalog,
	sweeper Sweeper,
	locker AssetLocker,
	cfg config.ReservationConfig,
	clk clock.Clock,
	m *metrics.Metrics,
) *ReservationService {
	if clk == nil {
		clk = clock.Real()
	}
	return &ReservationService{
		txManager: tm, repo: repo, catalog: catalog, sweeper: sweeper,
		locker: locker, approval: ManualApproval{}, cfg: cfg, clock: clk, metrics: m,
	}
}

// WithApprovalPolicy は承認ポリシーを差し替える
func (s *ReservationService) WithApprovalPolicy(p ApprovalPolicy) *ReservationService {
	if p != nil {
		s.approval = p
	}
	return s
}

type CreateReservationInput struct {
	AssetID int64
	ActorID string
	Start   time.Time
	End     time.Time
}

// LifecycleResult はチェックイン・チェックアウト・キャンセルの結果
type LifecycleResult struct {
	Message       string
	ReservationID int64
}

func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	var created *reservation.Reservation
	err := s.run(ctx, "create", func(ctx context.Context) error {
		s.sweepBeforeOperation(ctx)

		now := s.clock.Now()
		iv := reservation.Interval{Start: input.Start.UTC(), End: input.End.UTC()}
		res := reservation.NewReservation(input.AssetID, input.ActorID, iv, now)
		if err := res.Validate(now); err != nil {
			return err
		}
		if err := s.ensureReservable(ctx, input.AssetID); err != nil {
			return err
		}

		err := s.withAssetLock(ctx, input.AssetID, func(tx transaction.Tx) error {
			blocking, err := s.repo.FindOverlapping(ctx, tx, input.AssetID, reservation.BlockingStatuses, iv)
			if err != nil {
				return err
			}
			if len(blocking) > 0 {
				return reservation.ErrAssetAlreadyReserved
			}

			own, err := s.repo.FindActorOverlapping(ctx, tx, input.AssetID, input.ActorID, reservation.ActorOverlapStatuses, iv)
			if err != nil {
				return err
			}
			if len(own) > 0 {
				return reservation.ErrActorOverlap
			}

			return s.repo.InsertPending(ctx, tx, res)
		})
		if err != nil {
			return err
		}

		created = res
		logger.Info("予約を作成しました", append(logger.Reservation(res.ID, res.AssetID, res.ActorID),
			zap.Time("start", iv.Start), zap.Duration("duration", iv.Duration()))...)
		return nil
	})
	return created, err
}

// CheckIn はチェックイン可能時間帯にある最も早い approved 予約を in_use にする
func (s *ReservationService) CheckIn(ctx context.Context, assetID int64, actorID string) (*LifecycleResult, error) {
	var result *LifecycleResult
	err := s.run(ctx, "checkin", func(ctx context.Context) error {
		s.sweepBeforeOperation(ctx)

		if err := validateActorAsset(assetID, actorID); err != nil {
			return err
		}
		if err := s.ensureReservable(ctx, assetID); err != nil {
			return err
		}

		return s.withAssetLock(ctx, assetID, func(tx transaction.Tx) error {
			now := s.clock.Now()
			// now ∈ [start-before, start+after] を開始時刻の範囲に置き換える
			from := now.Add(-s.cfg.CheckinGraceAfter)
			to := now.Add(s.cfg.CheckinGraceBefore)
			res, err := s.repo.FindOne(ctx, tx, reservation.Query{
				AssetID: assetID, ActorID: actorID, Status: reservation.StatusApproved,
				StartFrom: &from, StartTo: &to,
			})
			if errors.Is(err, reservation.ErrReservationNotFound) {
				return s.noApprovedInWindow(ctx, tx, assetID, actorID)
			}
			if err != nil {
				return err
			}
			if !res.InCheckinWindow(now, s.cfg.CheckinGraceBefore, s.cfg.CheckinGraceAfter) {
				return reservation.ErrNoApprovedInWindow
			}

			if err := res.CheckIn(now); err != nil {
				return err
			}
			ok, err := s.repo.UpdateStatus(ctx, tx, res, reservation.StatusApproved)
			if err != nil {
				return err
			}
			if !ok {
				return reservation.ErrConcurrentModification
			}

			result = &LifecycleResult{Message: "チェックインしました", ReservationID: res.ID}
			logger.Info("チェックインしました", logger.Reservation(res.ID, res.AssetID, res.ActorID)...)
			return nil
		})
	})
	return result, err
}

// noApprovedInWindow は利用中の予約があれば再チェックインとして扱う
func (s *ReservationService) noApprovedInWindow(ctx context.Context, tx transaction.Tx, assetID int64, actorID string) error {
	_, err := s.repo.FindOne(ctx, tx, reservation.Query{
		AssetID: assetID, ActorID: actorID, Status: reservation.StatusInUse,
	})
	switch {
	case err == nil:
		return reservation.ErrAlreadyCheckedIn
	case errors.Is(err, reservation.ErrReservationNotFound):
		return reservation.ErrNoApprovedInWindow
	default:
		return err
	}
}

func (s *ReservationService) CheckOut(ctx context.Context, assetID int64, actorID string) (*LifecycleResult, error) {
	var result *LifecycleResult
	err := s.run(ctx, "checkout", func(ctx context.Context) error {
		s.sweepBeforeOperation(ctx)

		if err := validateActorAsset(assetID, actorID); err != nil {
			return err
		}
		if err := s.ensureReservable(ctx, assetID); err != nil {
			return err
		}

		return s.withAssetLock(ctx, assetID, func(tx transaction.Tx) error {
			res, err := s.repo.FindOne(ctx, tx, reservation.Query{
				AssetID: assetID, ActorID: actorID, Status: reservation.StatusInUse,
			})
			if errors.Is(err, reservation.ErrReservationNotFound) {
				return reservation.ErrNoActiveReservation
			}
			if err != nil {
				return err
			}

			if err := res.CheckOut(s.clock.Now()); err != nil {
				return err
			}
			ok, err := s.repo.UpdateStatus(ctx, tx, res, reservation.StatusInUse)
			if err != nil {
				return err
			}
			if !ok {
				return reservation.ErrConcurrentModification
			}

			result = &LifecycleResult{Message: "チェックアウトしました", ReservationID: res.ID}
			logger.Info("チェックアウトしました", logger.Reservation(res.ID, res.AssetID, res.ActorID)...)
			return nil
		})
	})
	return result, err
}

func (s *ReservationService) CancelReservation(ctx context.Context, reservationID int64, actorID string) (*LifecycleResult, error) {
	var result *LifecycleResult
	err := s.run(ctx, "cancel", func(ctx context.Context) error {
		s.sweepBeforeOperation(ctx)

		if reservationID <= 0 {
			return reservation.ErrReservationIDRequired
		}
		if actorID == "" {
			return reservation.ErrActorIDRequired
		}
		current, err := s.repo.FindOne(ctx, nil, reservation.Query{ID: reservationID})
		if err != nil {
			return err
		}
		if err := s.ensureReservable(ctx, current.AssetID); err != nil {
			return err
		}

		return s.withAssetLock(ctx, current.AssetID, func(tx transaction.Tx) error {
			res, err := s.repo.FindOne(ctx, tx, reservation.Query{ID: reservationID})
			if err != nil {
				return err
			}

			from := res.Status
			if err := res.Cancel(actorID, s.clock.Now(), s.cfg.CancellationNotice); err != nil {
				return err
			}
			ok, err := s.repo.UpdateStatus(ctx, tx, res, from)
			if err != nil {
				return err
			}
			if !ok {
				return reservation.ErrConcurrentModification
			}

			result = &LifecycleResult{Message: "予約をキャンセルしました", ReservationID: res.ID}
			logger.Info("予約をキャンセルしました", logger.Reservation(res.ID, res.AssetID, res.ActorID)...)
			return nil
		})
	})
	return result, err
}

// ApproveReservation は pending 予約を承認する。
// アセットロック内で占有中の予約と重ならないことを確認してから approved にする
func (s *ReservationService) ApproveReservation(ctx context.Context, reservationID int64) (*reservation.Reservation, error) {
	var approved *reservation.Reservation
	err := s.run(ctx, "approve", func(ctx context.Context) error {
		s.sweepBeforeOperation(ctx)

		if reservationID <= 0 {
			return reservation.ErrReservationIDRequired
		}
		current, err := s.repo.FindOne(ctx, nil, reservation.Query{ID: reservationID})
		if err != nil {
			return err
		}
		if err := s.ensureReservable(ctx, current.AssetID); err != nil {
			return err
		}

		return s.withAssetLock(ctx, current.AssetID, func(tx transaction.Tx) error {
			res, err := s.repo.FindOne(ctx, tx, reservation.Query{ID: reservationID})
			if err != nil {
				return err
			}
			now := s.clock.Now()
			if res.Status != reservation.StatusPending {
				return reservation.ErrReservationNotPending
			}
			if !now.Before(res.Interval.End) {
				return reservation.ErrReservationEnded
			}
			if err := s.approval.Allow(ctx, res); err != nil {
				return fmt.Errorf("%w: %v", reservation.ErrApprovalDenied, err)
			}

			blocking, err := s.repo.FindOverlapping(ctx, tx, res.AssetID, reservation.BlockingStatuses, res.Interval)
			if err != nil {
				return err
			}
			if len(blocking) > 0 {
				return reservation.ErrAssetAlreadyReserved
			}

			if err := res.Approve(now); err != nil {
				return err
			}
			ok, err := s.repo.UpdateStatus(ctx, tx, res, reservation.StatusPending)
			if err != nil {
				return err
			}
			if !ok {
				return reservation.ErrConcurrentModification
			}

			approved = res
			logger.Info("予約を承認しました", logger.Reservation(res.ID, res.AssetID, res.ActorID)...)
			return nil
		})
	})
	return approved, err
}

func (s *ReservationService) GetReservation(ctx context.Context, id int64) (*reservation.Reservation, error) {
	if id <= 0 {
		return nil, reservation.ErrReservationIDRequired
	}
	return s.repo.FindOne(ctx, nil, reservation.Query{ID: id})
}

func (s *ReservationService) ListByAsset(ctx context.Context, assetID int64) ([]*reservation.Reservation, error) {
	if assetID <= 0 {
		return nil, reservation.ErrAssetIDRequired
	}
	return s.repo.ListByAsset(ctx, assetID)
}

func (s *ReservationService) ListByActor(ctx context.Context, actorID string) ([]*reservation.Reservation, error) {
	if actorID == "" {
		return nil, reservation.ErrActorIDRequired
	}
	return s.repo.ListByActor(ctx, actorID)
}

// run は操作タイムアウトを設定し、結果をメトリクスに記録する
func (s *ReservationService) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()
	}
	err := fn(ctx)
	s.metrics.ObserveOperation(op, err)
	if err != nil {
		logger.Debug("予約操作に失敗しました", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// sweepBeforeOperation の失敗は操作を止めない。次の操作で再実行される
func (s *ReservationService) sweepBeforeOperation(ctx context.Context) {
	if s.sweeper == nil {
		return
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		logger.Warn("no_show スイープに失敗しました", zap.Error(err))
	}
}

// withAssetLock は分散ロック（設定時）とトランザクション内のアセットロックを取得して fn を実行する
func (s *ReservationService) withAssetLock(ctx context.Context, assetID int64, fn func(tx transaction.Tx) error) error {
	if s.locker != nil {
		release, err := s.locker.LockAsset(ctx, assetID)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("アセットロックの解放に失敗しました", zap.Int64("asset_id", assetID), zap.Error(err))
			}
		}()
	}

	return transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.repo.LockAsset(ctx, tx, assetID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// ensureReservable は最新スナップショットのアセットが予約可能かを確認する
func (s *ReservationService) ensureReservable(ctx context.Context, assetID int64) error {
	a, err := s.catalog.GetLatest(ctx, assetID)
	if err != nil {
		return err
	}
	return a.EnsureReservable()
}

func validateActorAsset(assetID int64, actorID string) error {
	if assetID <= 0 {
		return reservation.ErrAssetIDRequired
	}
	if actorID == "" {
		return reservation.ErrActorIDRequired
	}
	return nil
}
