//go:build integration
// +build integration

package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/config"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/transaction"
)

func setupDB(t *testing.T) (*sqlx.DB, func()) {
	cfg := config.Load()
	db, err := NewConnection(&cfg.Database)
	if err != nil {
		t.Skipf("DB接続エラー: %v", err)
	}
	if err := RunMigrations(db.DB, "../../../migrations"); err != nil {
		db.Close()
		t.Skipf("マイグレーションエラー: %v", err)
	}
	truncate := func() {
		db.Exec("DELETE FROM reservations")
		db.Exec("DELETE FROM assets")
	}
	truncate()
	return db, func() {
		truncate()
		db.Close()
	}
}

func insertReservation(t *testing.T, repo *ReservationRepository, txm *TxManager, assetID int64, actor string, start, end time.Time) *reservation.Reservation {
	t.Helper()
	iv, err := reservation.NewInterval(start, end)
	require.NoError(t, err)
	r := reservation.NewReservation(assetID, actor, iv, time.Now())
	err = transaction.Run(context.Background(), txm, func(tx transaction.Tx) error {
		return repo.InsertPending(context.Background(), tx, r)
	})
	require.NoError(t, err)
	return r
}

// withStatus は状態を書き換えた予約のコピーを返す
func withStatus(r *reservation.Reservation, status reservation.Status, at time.Time) *reservation.Reservation {
	c := *r
	c.Status = status
	c.UpdatedAt = at
	return &c
}

func TestReservationRepository_Lifecycle(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewReservationRepository(db)
	txm := NewTxManager(db)
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	r := insertReservation(t, repo, txm, 5, "u1", start, start.Add(time.Hour))
	assert.NotZero(t, r.ID)

	found, err := repo.FindOne(ctx, nil, reservation.Query{ID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPending, found.Status)
	assert.True(t, found.Interval.Start.Equal(start))

	approvedAt := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	ok, err := repo.UpdateStatus(ctx, nil, withStatus(r, reservation.StatusApproved, approvedAt), reservation.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	// updated_at は呼び出し側の時刻で保存される
	found, err = repo.FindOne(ctx, nil, reservation.Query{ID: r.ID})
	require.NoError(t, err)
	assert.True(t, found.UpdatedAt.Equal(approvedAt))

	// from が一致しない更新は 0 行
	ok, err = repo.UpdateStatus(ctx, nil, withStatus(r, reservation.StatusApproved, approvedAt), reservation.StatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	checkin := start.Add(-5 * time.Minute)
	inUse := withStatus(r, reservation.StatusInUse, checkin)
	inUse.CheckinTime = &checkin
	ok, err = repo.UpdateStatus(ctx, nil, inUse, reservation.StatusApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err = repo.FindOne(ctx, nil, reservation.Query{AssetID: 5, Status: reservation.StatusInUse})
	require.NoError(t, err)
	require.NotNil(t, found.CheckinTime)
	assert.True(t, found.CheckinTime.Equal(checkin))
	assert.True(t, found.UpdatedAt.Equal(checkin))

	_, err = repo.FindOne(ctx, nil, reservation.Query{ID: r.ID + 1000})
	assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
}

func TestReservationRepository_ExclusionConstraint(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewReservationRepository(db)
	txm := NewTxManager(db)
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	a := insertReservation(t, repo, txm, 5, "u1", start, start.Add(time.Hour))
	b := insertReservation(t, repo, txm, 5, "u2", start.Add(30*time.Minute), start.Add(90*time.Minute))

	now := time.Now().UTC()
	ok, err := repo.UpdateStatus(ctx, nil, withStatus(a, reservation.StatusApproved, now), reservation.StatusPending)
	require.NoError(t, err)
	require.True(t, ok)

	// ロックを経由しない承認でも排他制約が重複を拒否する
	_, err = repo.UpdateStatus(ctx, nil, withStatus(b, reservation.StatusApproved, now), reservation.StatusPending)
	assert.ErrorIs(t, err, reservation.ErrAssetAlreadyReserved)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	// 同一アクターの重複 pending は拒否される
	iv, _ := reservation.NewInterval(start.Add(10*time.Minute), start.Add(20*time.Minute))
	dup := reservation.NewReservation(5, "u2", iv, time.Now())
	err = transaction.Run(ctx, txm, func(tx transaction.Tx) error {
		return repo.InsertPending(ctx, tx, dup)
	})
	assert.ErrorIs(t, err, reservation.ErrActorOverlap)

	// 接するだけの区間は許可される
	next := insertReservation(t, repo, txm, 5, "u3", start.Add(time.Hour), start.Add(2*time.Hour))
	ok, err = repo.UpdateStatus(ctx, nil, withStatus(next, reservation.StatusApproved, now), reservation.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReservationRepository_BulkMarkNoShow(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewReservationRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	// 過去の開始時刻は作成時検証を通らないため直接挿入する
	for i := 0; i < 5; i++ {
		start := now.Add(-time.Duration(i+1) * time.Hour)
		_, err := db.Exec(`INSERT INTO reservations (asset_id, actor_id, start_time, end_time, status)
			VALUES ($1, 'u1', $2, $3, 'approved')`, int64(100+i), start, start.Add(30*time.Minute))
		require.NoError(t, err)
	}

	n, err := repo.BulkMarkNoShow(ctx, now, 10*time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.BulkMarkNoShow(ctx, now, 10*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.BulkMarkNoShow(ctx, now, 10*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	var stamped int
	require.NoError(t, db.Get(&stamped, `SELECT COUNT(*) FROM reservations WHERE status = 'no_show' AND updated_at = $1`, now))
	assert.Equal(t, 5, stamped)
}

func TestReservationRepository_LockAssetSerializes(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewReservationRepository(db)
	txm := NewTxManager(db)
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)

	const workers = 10
	var (
		wg      sync.WaitGroup
		created int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			iv, _ := reservation.NewInterval(start, start.Add(time.Hour))
			r := reservation.NewReservation(9, "same-actor", iv, time.Now())
			err := transaction.Run(ctx, txm, func(tx transaction.Tx) error {
				if err := repo.LockAsset(ctx, tx, 9); err != nil {
					return err
				}
				existing, err := repo.FindActorOverlapping(ctx, tx, 9, "same-actor", reservation.ActorOverlapStatuses, iv)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return reservation.ErrActorOverlap
				}
				return repo.InsertPending(ctx, tx, r)
			})
			if err == nil {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created)
}

func TestAssetRepository(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewAssetRepository(db)
	room := int64(10)

	require.NoError(t, repo.Upsert(ctx, &asset.Asset{ID: 10, Kind: asset.KindSpace, Reservable: true, ModelVersionID: 1}))
	require.NoError(t, repo.Upsert(ctx, &asset.Asset{ID: 11, Kind: asset.KindEquipment, Reservable: true, CurrentSpaceID: &room, ModelVersionID: 1}))
	require.NoError(t, repo.Upsert(ctx, &asset.Asset{ID: 11, Kind: asset.KindEquipment, Reservable: false, ModelVersionID: 2}))

	a, err := repo.GetByID(ctx, 11, 1)
	require.NoError(t, err)
	require.NotNil(t, a.CurrentSpaceID)
	assert.Equal(t, room, *a.CurrentSpaceID)

	latest, err := repo.GetLatest(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.ModelVersionID)
	assert.False(t, latest.Reservable)

	_, err = repo.GetByID(ctx, 99, 1)
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)

	list, err := repo.ListByVersion(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	inRoom, err := repo.ListBySpace(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, inRoom, 1)
	assert.Equal(t, int64(11), inRoom[0].ID)
}
