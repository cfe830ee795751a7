package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/metrics"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

type cachedAsset struct {
	ID             int64  `json:"id"`
	Kind           string `json:"kind"`
	Reservable     bool   `json:"reservable"`
	CurrentSpaceID *int64 `json:"current_space_id,omitempty"`
	ModelVersionID int64  `json:"model_version_id"`
}

func fromAsset(a *asset.Asset) cachedAsset {
	return cachedAsset{
		ID: a.ID, Kind: string(a.Kind), Reservable: a.Reservable,
		CurrentSpaceID: a.CurrentSpaceID, ModelVersionID: a.ModelVersionID,
	}
}

func (c cachedAsset) toEntity() *asset.Asset {
	return &asset.Asset{
		ID: c.ID, Kind: asset.Kind(c.Kind), Reservable: c.Reservable,
		CurrentSpaceID: c.CurrentSpaceID, ModelVersionID: c.ModelVersionID,
	}
}

// AssetCache はアセットカタログのキャッシュを管理する
type AssetCache struct {
	client *redis.Client
}

// NewAssetCache は新しいAssetCacheインスタンスを作成する
func NewAssetCache(client *redis.Client) *AssetCache {
	return &AssetCache{client: client}
}

// Get はキャッシュからアセット一覧を取得する
func (c *AssetCache) Get(ctx context.Context, key string) ([]*asset.Asset, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var items []cachedAsset
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗: %w", err)
	}
	result := make([]*asset.Asset, len(items))
	for i := range items {
		result[i] = items[i].toEntity()
	}
	return result, nil
}

// Set はアセット一覧をキャッシュに保存する
func (c *AssetCache) Set(ctx context.Context, key string, assets []*asset.Asset, ttl time.Duration) error {
	items := make([]cachedAsset, len(assets))
	for i, a := range assets {
		items[i] = fromAsset(a)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はキャッシュを無効化する
func (c *AssetCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func assetKey(id, versionID int64) string { return fmt.Sprintf("assets:id:%d:%d", id, versionID) }
func latestKey(id int64) string           { return fmt.Sprintf("assets:latest:%d", id) }
func versionKey(versionID int64) string   { return fmt.Sprintf("assets:version:%d", versionID) }
func spaceKey(spaceID, versionID int64) string {
	return fmt.Sprintf("assets:space:%d:%d", spaceID, versionID)
}

// CachedCatalog は asset.Store のリードスルーキャッシュ。
// キャッシュ障害時は下位のカタログにそのままフォールバックし、書き込み時は関連キーを削除する
type CachedCatalog struct {
	next    asset.Store
	cache   *AssetCache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedCatalog は CachedCatalog を作成する。metrics は nil でもよい
func NewCachedCatalog(next asset.Store, cache *AssetCache, ttl time.Duration, m *metrics.Metrics) *CachedCatalog {
	return &CachedCatalog{next: next, cache: cache, ttl: ttl, metrics: m}
}

func (c *CachedCatalog) GetByID(ctx context.Context, id, versionID int64) (*asset.Asset, error) {
	list, err := c.readThrough(ctx, assetKey(id, versionID), func() ([]*asset.Asset, error) {
		a, err := c.next.GetByID(ctx, id, versionID)
		if err != nil {
			return nil, err
		}
		return []*asset.Asset{a}, nil
	})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

func (c *CachedCatalog) GetLatest(ctx context.Context, id int64) (*asset.Asset, error) {
	list, err := c.readThrough(ctx, latestKey(id), func() ([]*asset.Asset, error) {
		a, err := c.next.GetLatest(ctx, id)
		if err != nil {
			return nil, err
		}
		return []*asset.Asset{a}, nil
	})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

func (c *CachedCatalog) ListByVersion(ctx context.Context, versionID int64) ([]*asset.Asset, error) {
	return c.readThrough(ctx, versionKey(versionID), func() ([]*asset.Asset, error) {
		return c.next.ListByVersion(ctx, versionID)
	})
}

func (c *CachedCatalog) ListBySpace(ctx context.Context, spaceID, versionID int64) ([]*asset.Asset, error) {
	return c.readThrough(ctx, spaceKey(spaceID, versionID), func() ([]*asset.Asset, error) {
		return c.next.ListBySpace(ctx, spaceID, versionID)
	})
}

// Upsert は下位ストアに書き込んでからキャッシュを無効化する。
// 所在空間が変わった場合に備えて、更新前の空間のキーも削除する
func (c *CachedCatalog) Upsert(ctx context.Context, a *asset.Asset) error {
	previous, err := c.next.GetByID(ctx, a.ID, a.ModelVersionID)
	if err != nil && !errors.Is(err, asset.ErrAssetNotFound) {
		return err
	}
	if err := c.next.Upsert(ctx, a); err != nil {
		return err
	}

	if err := c.InvalidateAsset(ctx, a); err != nil {
		logger.Warn("アセットキャッシュの無効化に失敗しました", zap.String("asset", a.Key()), zap.Error(err))
	}
	if previous != nil && previous.CurrentSpaceID != nil {
		if err := c.cache.Invalidate(ctx, spaceKey(*previous.CurrentSpaceID, previous.ModelVersionID)); err != nil {
			logger.Warn("アセットキャッシュの無効化に失敗しました", zap.String("asset", previous.Key()), zap.Error(err))
		}
	}
	return nil
}

// InvalidateAsset はアセットに関わるキャッシュを削除する
func (c *CachedCatalog) InvalidateAsset(ctx context.Context, a *asset.Asset) error {
	keys := []string{assetKey(a.ID, a.ModelVersionID), latestKey(a.ID), versionKey(a.ModelVersionID)}
	if a.CurrentSpaceID != nil {
		keys = append(keys, spaceKey(*a.CurrentSpaceID, a.ModelVersionID))
	}
	return c.cache.Invalidate(ctx, keys...)
}

func (c *CachedCatalog) readThrough(ctx context.Context, key string, load func() ([]*asset.Asset, error)) ([]*asset.Asset, error) {
	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.ObserveCache("hit")
		return cached, nil
	case errors.Is(err, ErrCacheMiss):
		c.metrics.ObserveCache("miss")
	default:
		c.metrics.ObserveCache("error")
		logger.Warn("アセットキャッシュの取得に失敗しました", zap.String("key", key), zap.Error(err))
	}

	list, err := load()
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, list, c.ttl); err != nil {
		logger.Warn("アセットキャッシュの保存に失敗しました", zap.String("key", key), zap.Error(err))
	}
	return list, nil
}

var _ asset.Store = (*CachedCatalog)(nil)
