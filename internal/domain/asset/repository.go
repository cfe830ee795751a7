package asset

import "context"

// Catalog はアセットカタログ（在庫スナップショット）の読み取りインターフェース
type Catalog interface {
	// GetByID は指定バージョンのアセットを取得する。該当なしは ErrAssetNotFound
	GetByID(ctx context.Context, id, versionID int64) (*Asset, error)

	// GetLatest は最新バージョンのアセットを取得する。該当なしは ErrAssetNotFound
	GetLatest(ctx context.Context, id int64) (*Asset, error)

	// ListByVersion はバージョン内の全アセットを取得する
	ListByVersion(ctx context.Context, versionID int64) ([]*Asset, error)

	// ListBySpace は空間に含まれるアセットを取得する
	ListBySpace(ctx context.Context, spaceID, versionID int64) ([]*Asset, error)
}

// Writer はスナップショットへの書き込みインターフェース
type Writer interface {
	// Upsert は (ID, バージョン) 単位でアセットを登録または更新する
	Upsert(ctx context.Context, a *Asset) error
}

// Store は読み書き両方を提供するカタログ
type Store interface {
	Catalog
	Writer
}
