// Package clock は時刻取得を抽象化する。
// 本番では Real を、テストでは Fake を注入して時間帯の境界を決定的に検証する
package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻を返す
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real はシステム時計を UTC で返す Clock
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

// FakeClock はテスト用の手動で進める時計
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Fake は指定時刻で停止した FakeClock を作成する
func Fake(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

// Now は現在の偽時刻を返す
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set は偽時刻を設定する
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// Advance は偽時刻を d だけ進める
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
