// Package memory はプロセス内で完結する Repository / Catalog / TxManager の実装。
// トランザクションはストア全体の排他ロックで直列化されるため、
// 予約の確認から書き込みまでが他のトランザクションと交差しない
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/transaction"
)

// ErrTxDone は終了済みトランザクションの再利用
var ErrTxDone = errors.New("トランザクションは既に終了しています")

// Store は予約とアセットを保持するインメモリストア
type Store struct {
	mu           sync.Mutex
	reservations map[int64]reservation.Reservation
	assets       map[string]asset.Asset
	nextID       int64
}

// NewStore は空のストアを作成する
func NewStore() *Store {
	return &Store{
		reservations: make(map[int64]reservation.Reservation),
		assets:       make(map[string]asset.Asset),
	}
}

type memTx struct {
	store    *Store
	snapshot map[int64]reservation.Reservation
	nextID   int64
	once     sync.Once
	done     bool
}

func (t *memTx) finish(restore bool) error {
	err := ErrTxDone
	t.once.Do(func() {
		if restore {
			t.store.reservations = t.snapshot
			t.store.nextID = t.nextID
		}
		t.done = true
		t.store.mu.Unlock()
		err = nil
	})
	return err
}

func (t *memTx) Commit() error   { return t.finish(false) }
func (t *memTx) Rollback() error { return t.finish(true) }

// Begin はストアの排他ロックを取得してトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	locked := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-ctx.Done():
		// ロック取得後に即解放する
		go func() {
			<-locked
			s.mu.Unlock()
		}()
		return nil, ctx.Err()
	}

	snapshot := make(map[int64]reservation.Reservation, len(s.reservations))
	for id, r := range s.reservations {
		snapshot[id] = r
	}
	return &memTx{store: s, snapshot: snapshot, nextID: s.nextID}, nil
}

// within は tx があればそのまま、なければ一時的にロックを取って fn を実行する
func (s *Store) within(tx transaction.Tx, fn func() error) error {
	if tx == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn()
	}
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return errors.New("memory: 別ストアのトランザクションです")
	}
	if mt.done {
		return ErrTxDone
	}
	return fn()
}

// LockAsset はストア全体がトランザクションで排他済みのため追加のロックは不要
func (s *Store) LockAsset(_ context.Context, tx transaction.Tx, _ int64) error {
	return s.within(tx, func() error { return nil })
}

func (s *Store) FindOverlapping(_ context.Context, tx transaction.Tx, assetID int64, statuses []reservation.Status, iv reservation.Interval) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := s.within(tx, func() error {
		out = s.filter(func(r *reservation.Reservation) bool {
			return r.AssetID == assetID && hasStatus(statuses, r.Status) && r.Interval.Overlaps(iv)
		})
		return nil
	})
	return out, err
}

func (s *Store) FindActorOverlapping(_ context.Context, tx transaction.Tx, assetID int64, actorID string, statuses []reservation.Status, iv reservation.Interval) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := s.within(tx, func() error {
		out = s.filter(func(r *reservation.Reservation) bool {
			return r.AssetID == assetID && r.ActorID == actorID && hasStatus(statuses, r.Status) && r.Interval.Overlaps(iv)
		})
		return nil
	})
	return out, err
}

func (s *Store) InsertPending(_ context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	return s.within(tx, func() error {
		s.nextID++
		r.ID = s.nextID
		r.Status = reservation.StatusPending
		s.reservations[r.ID] = *r
		return nil
	})
}

func (s *Store) FindOne(_ context.Context, tx transaction.Tx, q reservation.Query) (*reservation.Reservation, error) {
	var found *reservation.Reservation
	err := s.within(tx, func() error {
		matches := s.filter(q.Matches)
		if len(matches) == 0 {
			return reservation.ErrReservationNotFound
		}
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Interval.Start.Before(matches[j].Interval.Start)
		})
		found = matches[0]
		return nil
	})
	return found, err
}

func (s *Store) UpdateStatus(_ context.Context, tx transaction.Tx, res *reservation.Reservation, from reservation.Status) (bool, error) {
	var updated bool
	err := s.within(tx, func() error {
		r, ok := s.reservations[res.ID]
		if !ok || r.Status != from {
			return nil
		}
		if res.Status == reservation.StatusInUse && res.CheckinTime != nil {
			if r.CheckinTime != nil {
				return nil
			}
			t := res.CheckinTime.UTC()
			r.CheckinTime = &t
		}
		r.Status = res.Status
		r.UpdatedAt = res.UpdatedAt.UTC()
		s.reservations[res.ID] = r
		updated = true
		return nil
	})
	return updated, err
}

func (s *Store) BulkMarkNoShow(_ context.Context, now time.Time, after time.Duration, limit int) (int, error) {
	var count int
	err := s.within(nil, func() error {
		expired := s.filter(func(r *reservation.Reservation) bool {
			return r.IsExpiredNoShow(now, after)
		})
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].Interval.Start.Before(expired[j].Interval.Start)
		})
		for _, r := range expired {
			if limit > 0 && count >= limit {
				break
			}
			if err := r.MarkNoShow(now); err != nil {
				return err
			}
			s.reservations[r.ID] = *r
			count++
		}
		return nil
	})
	return count, err
}

func (s *Store) ListByAsset(_ context.Context, assetID int64) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := s.within(nil, func() error {
		out = s.filter(func(r *reservation.Reservation) bool { return r.AssetID == assetID })
		return nil
	})
	sortNewestFirst(out)
	return out, err
}

func (s *Store) ListByActor(_ context.Context, actorID string) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := s.within(nil, func() error {
		out = s.filter(func(r *reservation.Reservation) bool { return r.ActorID == actorID })
		return nil
	})
	sortNewestFirst(out)
	return out, err
}

// filter は呼び出し側がロックを保持している前提で、条件に合う予約のコピーを返す
func (s *Store) filter(pred func(*reservation.Reservation) bool) []*reservation.Reservation {
	var out []*reservation.Reservation
	for _, r := range s.reservations {
		r := r
		if pred(&r) {
			out = append(out, &r)
		}
	}
	return out
}

func hasStatus(statuses []reservation.Status, s reservation.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func sortNewestFirst(rs []*reservation.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Interval.Start.Equal(rs[j].Interval.Start) {
			return rs[i].ID > rs[j].ID
		}
		return rs[i].Interval.Start.After(rs[j].Interval.Start)
	})
}

// PutReservation は任意の状態の予約を直接保存する（初期データ投入用）
func (s *Store) PutReservation(r *reservation.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	} else if r.ID > s.nextID {
		s.nextID = r.ID
	}
	s.reservations[r.ID] = *r
}

// GetReservation は保存済みの予約のコピーを返す
func (s *Store) GetReservation(id int64) (*reservation.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, false
	}
	return &r, true
}

// PutAsset はアセットを登録する
func (s *Store) PutAsset(a *asset.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.Key()] = *a
}

func (s *Store) Upsert(_ context.Context, a *asset.Asset) error {
	s.PutAsset(a)
	return nil
}

func (s *Store) GetByID(_ context.Context, id, versionID int64) (*asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[(&asset.Asset{ID: id, ModelVersionID: versionID}).Key()]
	if !ok {
		return nil, asset.ErrAssetNotFound
	}
	return &a, nil
}

func (s *Store) GetLatest(_ context.Context, id int64) (*asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *asset.Asset
	for _, a := range s.assets {
		a := a
		if a.ID == id && (latest == nil || a.ModelVersionID > latest.ModelVersionID) {
			latest = &a
		}
	}
	if latest == nil {
		return nil, asset.ErrAssetNotFound
	}
	return latest, nil
}

func (s *Store) ListByVersion(_ context.Context, versionID int64) ([]*asset.Asset, error) {
	return s.listAssets(func(a *asset.Asset) bool { return a.ModelVersionID == versionID }), nil
}

func (s *Store) ListBySpace(_ context.Context, spaceID, versionID int64) ([]*asset.Asset, error) {
	return s.listAssets(func(a *asset.Asset) bool {
		return a.ModelVersionID == versionID && a.CurrentSpaceID != nil && *a.CurrentSpaceID == spaceID
	}), nil
}

func (s *Store) listAssets(pred func(*asset.Asset) bool) []*asset.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*asset.Asset
	for _, a := range s.assets {
		a := a
		if pred(&a) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var (
	_ reservation.Repository = (*Store)(nil)
	_ asset.Store            = (*Store)(nil)
	_ transaction.Manager    = (*Store)(nil)
)
