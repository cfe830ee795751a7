package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/transaction"
)

// 制約名
const (
	constraintAssetNoOverlap = "reservations_asset_no_overlap"
	constraintActorNoOverlap = "reservations_actor_no_overlap"
	constraintIntervalCheck  = "reservations_interval_check"
)

const reservationColumns = `id, asset_id, actor_id, start_time, end_time, status, checkin_time, created_at, updated_at`

type reservationRow struct {
	ID          int64      `db:"id"`
	AssetID     int64      `db:"asset_id"`
	ActorID     string     `db:"actor_id"`
	StartTime   time.Time  `db:"start_time"`
	EndTime     time.Time  `db:"end_time"`
	Status      string     `db:"status"`
	CheckinTime *time.Time `db:"checkin_time"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r *reservationRow) toEntity() *reservation.Reservation {
	res := &reservation.Reservation{
		ID: r.ID, AssetID: r.AssetID, ActorID: r.ActorID,
		Interval:  reservation.Interval{Start: r.StartTime.UTC(), End: r.EndTime.UTC()},
		Status:    reservation.Status(r.Status),
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.CheckinTime != nil {
		t := r.CheckinTime.UTC()
		res.CheckinTime = &t
	}
	return res
}

func toEntities(rows []reservationRow) []*reservation.Reservation {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

func statusStrings(statuses []reservation.Status) pq.StringArray {
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// LockAsset はトランザクションスコープのアドバイザリロックを取得する。
// ロックはコミットまたはロールバックで自動的に解放される
func (r *ReservationRepository) LockAsset(ctx context.Context, tx transaction.Tx, assetID int64) error {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return wrap("アセットロック", errors.New("トランザクションが必要です"))
	}
	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, assetID); err != nil {
		return wrap("アセットロック", err)
	}
	return nil
}

func (r *ReservationRepository) FindOverlapping(ctx context.Context, tx transaction.Tx, assetID int64, statuses []reservation.Status, iv reservation.Interval) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE asset_id = $1 AND status = ANY($2) AND start_time < $4 AND end_time > $3
		ORDER BY start_time`
	if err := sqlx.SelectContext(ctx, queryer(r.db, tx), &rows, query, assetID, statusStrings(statuses), iv.Start, iv.End); err != nil {
		return nil, wrap("重複予約の取得", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) FindActorOverlapping(ctx context.Context, tx transaction.Tx, assetID int64, actorID string, statuses []reservation.Status, iv reservation.Interval) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE asset_id = $1 AND actor_id = $2 AND status = ANY($3) AND start_time < $5 AND end_time > $4
		ORDER BY start_time`
	if err := sqlx.SelectContext(ctx, queryer(r.db, tx), &rows, query, assetID, actorID, statusStrings(statuses), iv.Start, iv.End); err != nil {
		return nil, wrap("アクター重複予約の取得", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) InsertPending(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	query := `INSERT INTO reservations (asset_id, actor_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	row := queryer(r.db, tx).QueryRowxContext(ctx, query,
		res.AssetID, res.ActorID, res.Interval.Start, res.Interval.End,
		string(reservation.StatusPending), res.CreatedAt, res.UpdatedAt)
	if err := row.Scan(&res.ID); err != nil {
		return mapWriteError("予約作成", err)
	}
	res.Status = reservation.StatusPending
	return nil
}

func (r *ReservationRepository) FindOne(ctx context.Context, tx transaction.Tx, q reservation.Query) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE ($1::bigint = 0 OR id = $1)
		  AND ($2::bigint = 0 OR asset_id = $2)
		  AND ($3::text = '' OR actor_id = $3)
		  AND ($4::text = '' OR status = $4)
		  AND ($5::timestamptz IS NULL OR start_time >= $5)
		  AND ($6::timestamptz IS NULL OR start_time <= $6)
		ORDER BY start_time
		LIMIT 1`
	err := sqlx.GetContext(ctx, queryer(r.db, tx), &row, query,
		q.ID, q.AssetID, q.ActorID, string(q.Status), q.StartFrom, q.StartTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, wrap("予約取得", err)
	}
	return row.toEntity(), nil
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, from reservation.Status) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	updatedAt := res.UpdatedAt.UTC()
	if res.Status == reservation.StatusInUse && res.CheckinTime != nil {
		query := `UPDATE reservations SET status = $1, checkin_time = $2, updated_at = $3
			WHERE id = $4 AND status = $5 AND checkin_time IS NULL`
		result, err = queryer(r.db, tx).ExecContext(ctx, query, string(res.Status), res.CheckinTime.UTC(), updatedAt, res.ID, string(from))
	} else {
		query := `UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
		result, err = queryer(r.db, tx).ExecContext(ctx, query, string(res.Status), updatedAt, res.ID, string(from))
	}
	if err != nil {
		return false, mapWriteError("予約状態更新", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrap("予約状態更新", err)
	}
	return rows > 0, nil
}

// BulkMarkNoShow は SKIP LOCKED で他トランザクションが処理中の行を避けながら一括更新する
func (r *ReservationRepository) BulkMarkNoShow(ctx context.Context, now time.Time, after time.Duration, limit int) (int, error) {
	query := `UPDATE reservations SET status = 'no_show', updated_at = $3
		WHERE id IN (
			SELECT id FROM reservations
			WHERE status = 'approved' AND checkin_time IS NULL AND start_time < $1
			ORDER BY start_time
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'approved' AND checkin_time IS NULL`
	now = now.UTC()
	result, err := r.db.ExecContext(ctx, query, now.Add(-after), limit, now)
	if err != nil {
		return 0, wrap("no_show 一括更新", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, wrap("no_show 一括更新", err)
	}
	return int(rows), nil
}

func (r *ReservationRepository) ListByAsset(ctx context.Context, assetID int64) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE asset_id = $1 ORDER BY start_time DESC, id DESC`
	if err := r.db.SelectContext(ctx, &rows, query, assetID); err != nil {
		return nil, wrap("アセット予約一覧取得", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) ListByActor(ctx context.Context, actorID string) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE actor_id = $1 ORDER BY start_time DESC, id DESC`
	if err := r.db.SelectContext(ctx, &rows, query, actorID); err != nil {
		return nil, wrap("アクター予約一覧取得", err)
	}
	return toEntities(rows), nil
}

// mapWriteError は制約違反をドメインエラーに変換する
func mapWriteError(op string, err error) error {
	if pgErr, ok := pqError(err); ok {
		switch string(pgErr.Code) {
		case codeExclusionViolation:
			if pgErr.Constraint == constraintActorNoOverlap {
				return reservation.ErrActorOverlap
			}
			return reservation.ErrAssetAlreadyReserved
		case codeCheckViolation:
			if pgErr.Constraint == constraintIntervalCheck {
				return reservation.ErrInvalidInterval
			}
		}
	}
	return wrap(op, err)
}

var _ reservation.Repository = (*ReservationRepository)(nil)
