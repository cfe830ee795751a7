package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
)

const assetColumns = `id, model_version_id, kind, reservable, current_space_id`

type assetRow struct {
	ID             int64  `db:"id"`
	ModelVersionID int64  `db:"model_version_id"`
	Kind           string `db:"kind"`
	Reservable     bool   `db:"reservable"`
	CurrentSpaceID *int64 `db:"current_space_id"`
}

func (r *assetRow) toEntity() *asset.Asset {
	return &asset.Asset{
		ID: r.ID, Kind: asset.Kind(r.Kind), Reservable: r.Reservable,
		CurrentSpaceID: r.CurrentSpaceID, ModelVersionID: r.ModelVersionID,
	}
}

// AssetRepository はインベントリスナップショットの assets テーブルを読む
type AssetRepository struct{ db *sqlx.DB }

func NewAssetRepository(db *sqlx.DB) *AssetRepository { return &AssetRepository{db: db} }

// Upsert はアセットを登録または更新する
func (r *AssetRepository) Upsert(ctx context.Context, a *asset.Asset) error {
	query := `INSERT INTO assets (id, model_version_id, kind, reservable, current_space_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, model_version_id)
		DO UPDATE SET kind = EXCLUDED.kind, reservable = EXCLUDED.reservable, current_space_id = EXCLUDED.current_space_id`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.ModelVersionID, string(a.Kind), a.Reservable, a.CurrentSpaceID); err != nil {
		return wrap("アセット登録", err)
	}
	return nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id, versionID int64) (*asset.Asset, error) {
	var row assetRow
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 AND model_version_id = $2`
	if err := r.db.GetContext(ctx, &row, query, id, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, asset.ErrAssetNotFound
		}
		return nil, wrap("アセット取得", err)
	}
	return row.toEntity(), nil
}

func (r *AssetRepository) GetLatest(ctx context.Context, id int64) (*asset.Asset, error) {
	var row assetRow
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 ORDER BY model_version_id DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, asset.ErrAssetNotFound
		}
		return nil, wrap("最新アセット取得", err)
	}
	return row.toEntity(), nil
}

func (r *AssetRepository) ListByVersion(ctx context.Context, versionID int64) ([]*asset.Asset, error) {
	var rows []assetRow
	query := `SELECT ` + assetColumns + ` FROM assets WHERE model_version_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, versionID); err != nil {
		return nil, wrap("アセット一覧取得", err)
	}
	return toAssets(rows), nil
}

func (r *AssetRepository) ListBySpace(ctx context.Context, spaceID, versionID int64) ([]*asset.Asset, error) {
	var rows []assetRow
	query := `SELECT ` + assetColumns + ` FROM assets WHERE current_space_id = $1 AND model_version_id = $2 ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, spaceID, versionID); err != nil {
		return nil, wrap("空間内アセット取得", err)
	}
	return toAssets(rows), nil
}

func toAssets(rows []assetRow) []*asset.Asset {
	result := make([]*asset.Asset, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

var _ asset.Store = (*AssetRepository)(nil)
