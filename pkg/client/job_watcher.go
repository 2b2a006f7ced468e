package client

import (
	"context"
	"log"
	"sync"
	"time"

	"sales-forecast-api/pkg/models"
	"sales-forecast-api/pkg/timeseries"
)

// PollEventKind ポーリングで観測されるイベントの種別
type PollEventKind int

const (
	// EventStatusReported サーバーからの状態応答
	EventStatusReported PollEventKind = iota
	// EventStatusCheckFailed 状態確認自体の失敗（ネットワーク/HTTP）
	EventStatusCheckFailed
)

// PollEvent 状態遷移関数への入力イベント
type PollEvent struct {
	Kind   PollEventKind
	Status string // EventStatusReported の場合のみ
	Error  string
}

// Effect 遷移に伴う副作用
type Effect int

const (
	// EffectNone 副作用なし（ポーリング継続）
	EffectNone Effect = iota
	// EffectStopPolling タイマー停止
	EffectStopPolling
	// EffectEmitFinished 完了イベントの通知（後続フェッチは呼び出し側が駆動）
	EffectEmitFinished
	// EffectEmitFailed 失敗イベントの通知（エラーメッセージ付き）
	EffectEmitFailed
)

// TransitionResult 遷移結果。次状態と副作用のリスト
type TransitionResult struct {
	Next    string
	Error   string
	Effects []Effect
}

// Transition はジョブ状態機械の純粋な遷移関数。
// submitted/processing が進行中、finished/failed が終端。
// 状態確認の失敗は合成failedへ倒す（無限ポーリングを避けるため再試行しない）
func Transition(current string, ev PollEvent) TransitionResult {
	// 終端からの遷移は存在しない
	if current == models.JobStatusFinished || current == models.JobStatusFailed {
		return TransitionResult{Next: current}
	}

	if ev.Kind == EventStatusCheckFailed {
		msg := "ジョブ状態の確認に失敗しました"
		if ev.Error != "" {
			msg += ": " + ev.Error
		}
		return TransitionResult{
			Next:    models.JobStatusFailed,
			Error:   msg,
			Effects: []Effect{EffectStopPolling, EffectEmitFailed},
		}
	}

	switch ev.Status {
	case models.JobStatusFinished:
		return TransitionResult{
			Next:    models.JobStatusFinished,
			Effects: []Effect{EffectStopPolling, EffectEmitFinished},
		}
	case models.JobStatusFailed:
		msg := ev.Error
		if msg == "" {
			msg = "分析に失敗しました"
		}
		return TransitionResult{
			Next:    models.JobStatusFailed,
			Error:   msg,
			Effects: []Effect{EffectStopPolling, EffectEmitFailed},
		}
	case models.JobStatusSubmitted, models.JobStatusProcessing:
		return TransitionResult{Next: ev.Status}
	default:
		// 未知の状態は現状維持でポーリング継続
		return TransitionResult{Next: current}
	}
}

// JobUpdate 監視中のジョブに関する通知
type JobUpdate struct {
	JobID    string
	Status   string
	Error    string
	Terminal bool
}

// JobWatcher 1つの分析ジョブを提出から終端までポーリングで追跡する。
// 状態確認リクエストは常に同時1本で、終端イベントはちょうど1回だけ通知される
type JobWatcher struct {
	client   *Client
	jobID    string
	interval time.Duration
	poller   *timeseries.Poller

	mu       sync.Mutex
	state    string
	stopped  bool
	terminal bool

	updates chan JobUpdate
}

// WatcherOption JobWatcherの構成オプション
type WatcherOption func(*JobWatcher)

// WithPollInterval はポーリング間隔を変更する（既定5秒）
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *JobWatcher) { w.interval = d }
}

// NewJobWatcher はジョブ監視を作成する
func NewJobWatcher(c *Client, jobID string, opts ...WatcherOption) *JobWatcher {
	w := &JobWatcher{
		client:   c,
		jobID:    jobID,
		interval: 5 * time.Second,
		state:    models.JobStatusSubmitted,
		updates:  make(chan JobUpdate, 8),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.poller = timeseries.NewPoller(w.interval, w.tick)
	return w
}

// Updates は状態変化と終端イベントの通知チャネルを返す。
// 終端通知の後にクローズされる
func (w *JobWatcher) Updates() <-chan JobUpdate {
	return w.updates
}

// State は最後に観測した状態を返す
func (w *JobWatcher) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start は監視を開始する
func (w *JobWatcher) Start(ctx context.Context) {
	w.poller.Start(ctx)
}

// Stop は監視を中断する。二重呼び出しは安全で、停止後に届いた応答が
// 状態へ反映されることはない
func (w *JobWatcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	// ポーラー停止は実行中のtickの完了を待つため、この後にチャネルへ
	// 書き込む者はいない
	w.poller.Stop()

	w.mu.Lock()
	alreadyClosed := w.terminal
	w.terminal = true
	w.mu.Unlock()
	if !alreadyClosed {
		close(w.updates)
	}
}

// tick は1回の状態確認。falseを返すとポーリングが停止する
func (w *JobWatcher) tick(ctx context.Context) bool {
	job, err := w.client.JobStatus(ctx, w.jobID)

	// キャンセル済みなら応答は破棄する（遅延応答による状態汚染の防止）
	w.mu.Lock()
	if w.stopped || w.terminal {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}

	var ev PollEvent
	if err != nil {
		ev = PollEvent{Kind: EventStatusCheckFailed, Error: err.Error()}
	} else {
		ev = PollEvent{Kind: EventStatusReported, Status: job.Status, Error: job.Error}
	}

	w.mu.Lock()
	prev := w.state
	result := Transition(prev, ev)
	w.state = result.Next

	stop := false
	emitTerminal := false
	for _, effect := range result.Effects {
		switch effect {
		case EffectStopPolling:
			stop = true
		case EffectEmitFinished, EffectEmitFailed:
			emitTerminal = true
		}
	}
	if emitTerminal {
		w.terminal = true
	}
	changed := result.Next != prev
	w.mu.Unlock()

	if emitTerminal {
		log.Printf("[ジョブ監視] job=%s が終端状態 %s に到達しました", w.jobID, result.Next)
		w.updates <- JobUpdate{JobID: w.jobID, Status: result.Next, Error: result.Error, Terminal: true}
		close(w.updates)
		return false
	}
	if changed {
		w.updates <- JobUpdate{JobID: w.jobID, Status: result.Next}
	}
	return !stop
}
