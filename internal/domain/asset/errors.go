package asset

import "github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"

// Asset ドメインのエラー定義
var (
	ErrAssetNotFound      = apperror.New(apperror.ErrNotFound, "指定バージョンのアセットが見つかりません")
	ErrAssetNotReservable = apperror.New(apperror.ErrPolicy, "このアセットは予約できません")

	ErrAssetIDRequired      = apperror.New(apperror.ErrValidation, "アセットIDは正の整数である必要があります")
	ErrModelVersionRequired = apperror.New(apperror.ErrValidation, "モデルバージョンは正の整数である必要があります")
	ErrInvalidKind          = apperror.New(apperror.ErrValidation, "アセットの種類は space または equipment です")
	ErrInvalidSpaceID       = apperror.New(apperror.ErrValidation, "所在空間IDは正の整数である必要があります")
)
