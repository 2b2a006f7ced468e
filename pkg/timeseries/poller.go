package timeseries

import (
	"context"
	"sync"
	"time"
)

// Poller 一定間隔でコールバックを実行するキャンセル可能なタスク。
// setIntervalの置き換えとして、次の実行は前回のコールバックが
// 返ってから間隔を数え直すため、実行が重なることはない。
type Poller struct {
	interval time.Duration
	tick     func(ctx context.Context) bool // falseを返すと停止

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

// NewPoller はポーラーを作成する。tickがfalseを返すかStopが呼ばれるまで
// interval間隔で実行を繰り返す
func NewPoller(interval time.Duration, tick func(ctx context.Context) bool) *Poller {
	return &Poller{interval: interval, tick: tick}
}

// Start はポーリングを開始する。既に動作中なら何もしない
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})

	go p.loop(runCtx)
}

func (p *Poller) loop(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		cancel := p.cancel
		p.running = false
		p.mu.Unlock()
		// tickがfalseを返して抜けた場合も派生コンテキストを解放する
		if cancel != nil {
			cancel()
		}
		close(p.done)
	}()

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// コールバックは同期実行。戻るまで次のタイマーを張らないため
		// 1ジョブにつき同時実行は常に1つ
		if !p.tick(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		timer.Reset(p.interval)
	}
}

// Stop はポーリングを停止し、ループの終了を待つ。二重呼び出しは安全
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// IsRunning は動作中かどうかを返す
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
