package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
)

var errInvalidAssetQuery = apperror.New(apperror.ErrValidation, "IDは正の整数である必要があります")

// AssetService はアセットカタログの読み取りとスナップショットの登録を提供する
type AssetService struct {
	catalog asset.Store
}

func NewAssetService(catalog asset.Store) *AssetService {
	return &AssetService{catalog: catalog}
}

// PublishAsset はモデルバージョンのアセットを登録または更新する。
// 既存の予約には影響せず、以降の予約操作は最新バージョンの予約可否に従う
func (s *AssetService) PublishAsset(ctx context.Context, a *asset.Asset) (*asset.Asset, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.catalog.Upsert(ctx, a); err != nil {
		return nil, err
	}
	logger.Info("アセットを登録しました",
		zap.Int64("asset_id", a.ID), zap.Int64("model_version_id", a.ModelVersionID), zap.Bool("reservable", a.Reservable))
	return a, nil
}

func (s *AssetService) GetAsset(ctx context.Context, id, versionID int64) (*asset.Asset, error) {
	if id <= 0 || versionID <= 0 {
		return nil, errInvalidAssetQuery
	}
	return s.catalog.GetByID(ctx, id, versionID)
}

func (s *AssetService) ListByVersion(ctx context.Context, versionID int64) ([]*asset.Asset, error) {
	if versionID <= 0 {
		return nil, errInvalidAssetQuery
	}
	return s.catalog.ListByVersion(ctx, versionID)
}

func (s *AssetService) ListBySpace(ctx context.Context, spaceID, versionID int64) ([]*asset.Asset, error) {
	if spaceID <= 0 || versionID <= 0 {
		return nil, errInvalidAssetQuery
	}
	return s.catalog.ListBySpace(ctx, spaceID, versionID)
}

// IsReservable は指定バージョンのアセットが存在し予約可能かを返す
func (s *AssetService) IsReservable(ctx context.Context, id, versionID int64) (bool, error) {
	a, err := s.GetAsset(ctx, id, versionID)
	if err != nil {
		return false, err
	}
	return a.Reservable, nil
}
