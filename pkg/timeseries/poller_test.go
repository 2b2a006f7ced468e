package timeseries

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerStopsWhenTickReturnsFalse(t *testing.T) {
	var count int32
	p := NewPoller(5*time.Millisecond, func(ctx context.Context) bool {
		return atomic.AddInt32(&count, 1) < 3
	})

	p.Start(context.Background())

	assert.Eventually(t, func() bool {
		return !p.IsRunning()
	}, time.Second, 5*time.Millisecond)

	// falseを返した後に追加のtickは発生しない
	final := atomic.LoadInt32(&count)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, final, atomic.LoadInt32(&count))
	assert.Equal(t, int32(3), final)
}

func TestPollerStopIsIdempotent(t *testing.T) {
	p := NewPoller(5*time.Millisecond, func(ctx context.Context) bool {
		return true
	})

	p.Start(context.Background())
	assert.True(t, p.IsRunning())

	p.Stop()
	p.Stop() // 二重呼び出しも安全
	assert.False(t, p.IsRunning())
}

func TestPollerStopBeforeStart(t *testing.T) {
	p := NewPoller(time.Millisecond, func(ctx context.Context) bool { return true })
	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestPollerNoOverlap(t *testing.T) {
	var inFlight int32
	var overlapped int32
	p := NewPoller(time.Millisecond, func(ctx context.Context) bool {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.AddInt32(&overlapped, 1)
		}
		time.Sleep(5 * time.Millisecond) // 間隔より長い処理
		atomic.AddInt32(&inFlight, -1)
		return true
	})

	p.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapped), "tick bodies must never overlap")
}

func TestPollerDoubleStart(t *testing.T) {
	var count int32
	p := NewPoller(5*time.Millisecond, func(ctx context.Context) bool {
		atomic.AddInt32(&count, 1)
		return true
	})

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // 2回目は無視される

	time.Sleep(18 * time.Millisecond)
	p.Stop()

	// 2本のループが回っていればこの時間で明確に多くなる
	assert.LessOrEqual(t, atomic.LoadInt32(&count), int32(4))
}

func TestPollerParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(time.Millisecond, func(ctx context.Context) bool { return true })

	p.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		return !p.IsRunning()
	}, time.Second, time.Millisecond)
}

func TestPollerReleasesContextWhenTickReturnsFalse(t *testing.T) {
	var tickCtx context.Context
	p := NewPoller(time.Millisecond, func(ctx context.Context) bool {
		tickCtx = ctx
		return false
	})

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(parent)

	assert.Eventually(t, func() bool {
		return !p.IsRunning()
	}, time.Second, time.Millisecond)

	// falseで抜けた場合も派生コンテキストは解放される（親は生きたまま）
	select {
	case <-tickCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context was not released")
	}
	assert.NoError(t, parent.Err())
}
