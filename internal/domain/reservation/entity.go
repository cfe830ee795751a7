package reservation

import (
	"time"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusInUse     Status = "in_use"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// BlockingStatuses はアセットを占有する状態。
// no_show は終端かつ非占有として扱い、枠を解放する
var BlockingStatuses = []Status{StatusApproved, StatusInUse}

// ActorOverlapStatuses は同一アクターの重複判定に使う状態
var ActorOverlapStatuses = []Status{StatusPending, StatusApproved}

// transitions は有効な状態遷移の一覧
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusInUse, StatusCancelled, StatusNoShow},
	StatusInUse:    {StatusCompleted},
}

// CanTransitionTo は s から next への遷移が許可されているかを返す
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal は終端状態かを返す
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid は定義済みの状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInUse, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Interval は半開区間 [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval は UTC に正規化した区間を作成する
func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start.UTC(), End: end.UTC()}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate は Start < End を検証する
func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return ErrIntervalRequired
	}
	if !iv.Start.Before(iv.End) {
		return ErrInvalidInterval
	}
	return nil
}

// Overlaps は半開区間同士が重なるかを返す。端点が接するだけなら重ならない
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Duration は区間の長さを返す
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Reservation は予約エンティティを表す
type Reservation struct {
	ID          int64
	AssetID     int64
	ActorID     string
	Interval    Interval
	Status      Status
	CheckinTime *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReservation は pending 状態の予約を作成する
func NewReservation(assetID int64, actorID string, iv Interval, now time.Time) *Reservation {
	now = now.UTC()
	return &Reservation{
		AssetID:   assetID,
		ActorID:   actorID,
		Interval:  iv,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate は作成時の検証を行う
func (r *Reservation) Validate(now time.Time) error {
	if r.AssetID <= 0 {
		return ErrAssetIDRequired
	}
	if r.ActorID == "" {
		return ErrActorIDRequired
	}
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	if !r.Interval.Start.After(now) {
		return ErrStartInPast
	}
	return nil
}

// IsBlocking はアセットを占有しているかを返す
func (r *Reservation) IsBlocking() bool {
	for _, s := range BlockingStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// IsCheckedIn はチェックイン済みかを返す
func (r *Reservation) IsCheckedIn() bool {
	return r.CheckinTime != nil
}

// InCheckinWindow は now が [Start-before, Start+after] に入っているかを返す
func (r *Reservation) InCheckinWindow(now time.Time, before, after time.Duration) bool {
	opens := r.Interval.Start.Add(-before)
	closes := r.Interval.Start.Add(after)
	return !now.Before(opens) && !now.After(closes)
}

// IsExpiredNoShow はチェックインされないまま猶予を過ぎた approved 予約かを返す
func (r *Reservation) IsExpiredNoShow(now time.Time, after time.Duration) bool {
	return r.Status == StatusApproved && r.CheckinTime == nil && now.After(r.Interval.Start.Add(after))
}

// transition は状態遷移を検証してから適用する
func (r *Reservation) transition(next Status, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return invalidTransition(r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now.UTC()
	return nil
}

// Approve は pending から approved へ遷移する
func (r *Reservation) Approve(now time.Time) error {
	if r.Status != StatusPending {
		return ErrReservationNotPending
	}
	return r.transition(StatusApproved, now)
}

// CheckIn は approved から in_use へ遷移し、チェックイン時刻を記録する
func (r *Reservation) CheckIn(now time.Time) error {
	if r.IsCheckedIn() {
		return ErrAlreadyCheckedIn
	}
	if err := r.transition(StatusInUse, now); err != nil {
		return err
	}
	t := now.UTC()
	r.CheckinTime = &t
	return nil
}

// CheckOut は in_use から completed へ遷移する
func (r *Reservation) CheckOut(now time.Time) error {
	if r.Status != StatusInUse {
		return ErrReservationNotInUse
	}
	return r.transition(StatusCompleted, now)
}

// Cancel はアクター・状態・事前通知期限を検証してキャンセルする
func (r *Reservation) Cancel(actorID string, now time.Time, notice time.Duration) error {
	if r.ActorID != actorID {
		return ErrNotReservationOwner
	}
	if r.Status == StatusInUse {
		return ErrReservationInUse
	}
	if r.Status.IsTerminal() {
		return ErrReservationNotCancellable
	}
	if r.Interval.Start.Sub(now) < notice {
		return ErrCancellationTooLate
	}
	return r.transition(StatusCancelled, now)
}

// MarkNoShow は approved から no_show へ遷移する
func (r *Reservation) MarkNoShow(now time.Time) error {
	if r.IsCheckedIn() {
		return ErrAlreadyCheckedIn
	}
	return r.transition(StatusNoShow, now)
}
