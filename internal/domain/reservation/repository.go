package reservation

import (
	"context"
	"time"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/transaction"
)

// Query は FindOne の検索条件。ゼロ値のフィールドは条件に含めない
type Query struct {
	ID      int64
	AssetID int64
	ActorID string
	Status  Status
	// StartFrom, StartTo は開始時刻の閉区間条件
	StartFrom *time.Time
	StartTo   *time.Time
}

// Matches は予約が条件を満たすかを返す
func (q Query) Matches(r *Reservation) bool {
	if q.ID != 0 && r.ID != q.ID {
		return false
	}
	if q.AssetID != 0 && r.AssetID != q.AssetID {
		return false
	}
	if q.ActorID != "" && r.ActorID != q.ActorID {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.StartFrom != nil && r.Interval.Start.Before(*q.StartFrom) {
		return false
	}
	if q.StartTo != nil && r.Interval.Start.After(*q.StartTo) {
		return false
	}
	return true
}

// Repository は予約リポジトリのインターフェース
// tx が nil の場合はトランザクション外で実行する
type Repository interface {
	// LockAsset はトランザクション終了までアセット単位のロックを保持する
	LockAsset(ctx context.Context, tx transaction.Tx, assetID int64) error

	// FindOverlapping は指定状態かつ区間が重なるアセットの予約を取得する
	FindOverlapping(ctx context.Context, tx transaction.Tx, assetID int64, statuses []Status, iv Interval) ([]*Reservation, error)

	// FindActorOverlapping は同一アクターの重なる予約を取得する
	FindActorOverlapping(ctx context.Context, tx transaction.Tx, assetID int64, actorID string, statuses []Status, iv Interval) ([]*Reservation, error)

	// InsertPending は pending 予約を挿入し ID を設定する
	InsertPending(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// FindOne は条件に合う予約を開始時刻順で1件取得する。該当なしは ErrReservationNotFound
	FindOne(ctx context.Context, tx transaction.Tx, q Query) (*Reservation, error)

	// UpdateStatus は現在の状態が from の場合のみ r.Status と r.UpdatedAt を保存する。
	// in_use への遷移では checkin_time IS NULL を条件に加えて r.CheckinTime も保存する
	UpdateStatus(ctx context.Context, tx transaction.Tx, r *Reservation, from Status) (bool, error)

	// BulkMarkNoShow は start + after < now でチェックインのない approved 予約を最大 limit 件 no_show にする
	BulkMarkNoShow(ctx context.Context, now time.Time, after time.Duration, limit int) (int, error)

	// ListByAsset はアセットの予約一覧を新しい順に取得する
	ListByAsset(ctx context.Context, assetID int64) ([]*Reservation, error)

	// ListByActor はアクターの予約一覧を新しい順に取得する
	ListByActor(ctx context.Context, actorID string) ([]*Reservation, error)
}
