package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/metrics"
)

var (
	ErrLockNotAcquired = apperror.New(apperror.ErrConflict, "ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

const (
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	extendScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// LockManager は分散ロックを管理する
type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

// AcquireLock はロックを取得する
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := fmt.Sprintf("lock:%s", key)
	lockValue := uuid.New().String()

	// SetNX を使用してロックを取得（キーが存在しない場合のみ設定）
	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &DistributedLock{
		client: m.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// AcquireLockWithRetry はリトライ付きでロックを取得する
func (m *LockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (*DistributedLock, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		lastErr = err
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, lastErr
}

// Key はロックの Redis キーを返す
func (l *DistributedLock) Key() string { return l.key }

// Release はロックを解放する（Lua スクリプトで安全に解放）
func (l *DistributedLock) Release(ctx context.Context) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("ロック延長に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	l.ttl = ttl
	return nil
}

// AssetLocker はアセット単位の分散ロック。
// データベースのアドバイザリロックの手前で、複数プロセス間の競合を早めに直列化する
type AssetLocker struct {
	manager    *LockManager
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
	metrics    *metrics.Metrics
}

// NewAssetLocker は AssetLocker を作成する。metrics は nil でもよい
func NewAssetLocker(manager *LockManager, ttl time.Duration, m *metrics.Metrics) *AssetLocker {
	return &AssetLocker{
		manager:    manager,
		ttl:        ttl,
		maxRetries: 50,
		retryDelay: 50 * time.Millisecond,
		metrics:    m,
	}
}

// LockAsset は lock:asset:<id> を取得し、解放関数を返す。
// 解放されるまで TTL の半分ごとに有効期限を延長する
func (l *AssetLocker) LockAsset(ctx context.Context, assetID int64) (func(context.Context) error, error) {
	start := time.Now()
	lock, err := l.manager.AcquireLockWithRetry(ctx, AssetLockKey(assetID), l.ttl, l.maxRetries, l.retryDelay)
	l.metrics.ObserveLock("acquire", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-done
		return lock.Release(ctx)
	}, nil
}

// keepAlive は stop が閉じられるか延長に失敗するまでロックを延長し続ける
func (l *AssetLocker) keepAlive(lock *DistributedLock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			start := time.Now()
			err := lock.Extend(ctx, l.ttl)
			cancel()
			l.metrics.ObserveLock("extend", err, time.Since(start))
			if err != nil {
				logger.Warn("アセットロックの延長に失敗しました", zap.String("key", lock.Key()), zap.Error(err))
				return
			}
		}
	}
}

// AssetLockKey は lock: 接頭辞を除いたアセットロックのキー
func AssetLockKey(assetID int64) string {
	return fmt.Sprintf("asset:%d", assetID)
}
