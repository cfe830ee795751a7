package asset

import "fmt"

// Kind はアセットの種類
type Kind string

const (
	KindSpace     Kind = "space"
	KindEquipment Kind = "equipment"
)

// IsValid は定義済みの種類かを返す
func (k Kind) IsValid() bool {
	return k == KindSpace || k == KindEquipment
}

// Asset は予約可能な単位（空間または機材）を表す。
// ID はモデルのバージョン内で一意
type Asset struct {
	ID             int64
	Kind           Kind
	Reservable     bool
	CurrentSpaceID *int64
	ModelVersionID int64
}

// Key はキャッシュ等で使う (ID, バージョン) の識別子
func (a *Asset) Key() string {
	return fmt.Sprintf("%d:%d", a.ID, a.ModelVersionID)
}

// EnsureReservable は予約不可のアセットに対してエラーを返す
func (a *Asset) EnsureReservable() error {
	if !a.Reservable {
		return ErrAssetNotReservable
	}
	return nil
}

// Validate はスナップショットへ登録する前の検証を行う
func (a *Asset) Validate() error {
	if a.ID <= 0 {
		return ErrAssetIDRequired
	}
	if a.ModelVersionID <= 0 {
		return ErrModelVersionRequired
	}
	if !a.Kind.IsValid() {
		return ErrInvalidKind
	}
	if a.CurrentSpaceID != nil && *a.CurrentSpaceID <= 0 {
		return ErrInvalidSpaceID
	}
	return nil
}
