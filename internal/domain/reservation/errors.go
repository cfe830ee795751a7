package reservation

import (
	"fmt"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
)

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound       = apperror.New(apperror.ErrNotFound, "予約が見つかりません")
	ErrNoApprovedInWindow        = apperror.New(apperror.ErrNotFound, "チェックイン可能な時間帯の承認済み予約がありません")
	ErrNoActiveReservation       = apperror.New(apperror.ErrNotFound, "チェックアウト可能な利用中の予約がありません")
	ErrAssetAlreadyReserved      = apperror.New(apperror.ErrConflict, "この時間帯のアセットは既に予約されています")
	ErrActorOverlap              = apperror.New(apperror.ErrConflict, "同じ時間帯に重複する予約が既にあります")
	ErrConcurrentModification    = apperror.New(apperror.ErrConflict, "予約の状態が同時に変更されました")
	ErrNotReservationOwner       = apperror.New(apperror.ErrAuthorization, "この予約をキャンセルする権限がありません")
	ErrAlreadyCheckedIn          = apperror.New(apperror.ErrPolicy, "既にチェックイン済みです")
	ErrReservationInUse          = apperror.New(apperror.ErrPolicy, "利用中の予約はキャンセルできません")
	ErrReservationNotCancellable = apperror.New(apperror.ErrPolicy, "この予約はキャンセルできません")
	ErrCancellationTooLate       = apperror.New(apperror.ErrPolicy, "キャンセルは開始24時間前までです")
	ErrReservationNotPending     = apperror.New(apperror.ErrPolicy, "予約は承認待ちではありません")
	ErrReservationNotInUse       = apperror.New(apperror.ErrPolicy, "予約は利用中ではありません")
	ErrReservationEnded          = apperror.New(apperror.ErrPolicy, "予約時間は既に終了しています")
	ErrApprovalDenied            = apperror.New(apperror.ErrPolicy, "承認ポリシーにより拒否されました")
	ErrInvalidTransition         = apperror.New(apperror.ErrPolicy, "許可されていない状態遷移です")
	ErrReservationIDRequired     = apperror.New(apperror.ErrValidation, "予約IDは必須です")
	ErrAssetIDRequired           = apperror.New(apperror.ErrValidation, "アセットIDは必須です")
	ErrActorIDRequired           = apperror.New(apperror.ErrValidation, "アクターIDは必須です")
	ErrIntervalRequired          = apperror.New(apperror.ErrValidation, "開始時刻と終了時刻は必須です")
	ErrInvalidInterval           = apperror.New(apperror.ErrValidation, "終了時刻は開始時刻より後である必要があります")
	ErrStartInPast               = apperror.New(apperror.ErrValidation, "過去の時刻には予約できません")
)

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
