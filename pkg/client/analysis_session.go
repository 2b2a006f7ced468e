package client

import (
	"context"
	"fmt"
	"log"
	"sync"

	"sales-forecast-api/pkg/models"
)

// AnalysisSession ジョブ完了後の依存フェッチを逐次実行で管理する。
// 概要 → 既定カラム → フィルター構成の順序が前提になっているため、
// 並行には発行しない。フィルター変更が多重に発生した場合は
// 後勝ち（先行シーケンスの中断）で直列化する
type AnalysisSession struct {
	client *Client
	jobID  string

	mu             sync.Mutex
	summary        *models.AnalysisSummary
	filters        models.ColumnFilters
	selectedColumn string
	detail         *models.ColumnDetail

	toggleGen    uint64
	toggleCancel context.CancelFunc
}

// NewAnalysisSession は完了済みジョブに対するセッションを作成する
func NewAnalysisSession(c *Client, jobID string) *AnalysisSession {
	return &AnalysisSession{client: c, jobID: jobID}
}

// JobID は対象ジョブのIDを返す
func (s *AnalysisSession) JobID() string {
	return s.jobID
}

// OnJobFinished はジョブ完了イベントを受けて後続の読み取りを順番に実行する:
// 概要 → 既定の調査カラム（概要の先頭カラム）→ フィルター構成。
// フィルター構成の取得はカラム一覧の存在を前提とするため順序は固定
func (s *AnalysisSession) OnJobFinished(ctx context.Context) error {
	summary, err := s.client.AnalysisSummary(ctx, s.jobID)
	if err != nil {
		return fmt.Errorf("概要の取得に失敗しました: %w", err)
	}

	s.mu.Lock()
	s.summary = &summary
	if len(summary.Columns) > 0 {
		s.selectedColumn = summary.Columns[0].Name
	}
	s.mu.Unlock()

	filters, err := s.client.FilterConfig(ctx, s.jobID)
	if err != nil {
		return fmt.Errorf("フィルター構成の取得に失敗しました: %w", err)
	}

	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()

	log.Printf("[分析セッション] job=%s 概要とフィルター構成を読み込みました (columns=%d)", s.jobID, len(summary.Columns))
	return nil
}

// Summary は最後に取得した概要を返す
func (s *AnalysisSession) Summary() *models.AnalysisSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Filters は最後に取得したフィルター構成を返す
func (s *AnalysisSession) Filters() models.ColumnFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// SelectedColumn は現在調査中のカラム名を返す
func (s *AnalysisSession) SelectedColumn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedColumn
}

// Detail は最後に取得したカラム詳細を返す
func (s *AnalysisSession) Detail() *models.ColumnDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}

// SelectColumn は調査対象カラムを切り替えて詳細を取得する。
// 高カーディナリティカラムの場合、詳細はヒストグラム等を持たず
// IsHighCardinalityが立つ。その先はExportColumnによるCSVダウンロードのみ
func (s *AnalysisSession) SelectColumn(ctx context.Context, name string) (models.ColumnDetail, error) {
	detail, err := s.client.ColumnDetail(ctx, s.jobID, name)
	if err != nil {
		return models.ColumnDetail{}, fmt.Errorf("カラム %s の詳細取得に失敗しました: %w", name, err)
	}

	s.mu.Lock()
	s.selectedColumn = name
	s.detail = &detail
	s.mu.Unlock()
	return detail, nil
}

// ExportColumn は高カーディナリティカラムの全詳細CSVをダウンロードする
func (s *AnalysisSession) ExportColumn(ctx context.Context, name string) (string, []byte, error) {
	return s.client.ExportColumn(ctx, s.jobID, name)
}

// ToggleColumn はカラムの採用状態を切り替え、構成送信 → 構成再取得 →
// 概要再取得を順番に実行する。自動除外されたカラムは切り替えられない。
// 先行する切り替えシーケンスが進行中の場合はそれを中断して引き継ぐ
// （後勝ちポリシー）
func (s *AnalysisSession) ToggleColumn(ctx context.Context, name string, include bool) error {
	s.mu.Lock()
	if reason, ok := s.filters.AutoExcluded[name]; ok {
		s.mu.Unlock()
		return &ValidationError{
			Field:   "column",
			Message: fmt.Sprintf("カラム %s は自動除外されているため変更できません（理由: %s）", name, reason),
		}
	}

	// 現在の採用集合から新しい集合を作る
	newIncluded := make([]string, 0, len(s.filters.IncludedColumns)+1)
	for _, col := range s.filters.IncludedColumns {
		if col != name {
			newIncluded = append(newIncluded, col)
		}
	}
	if include {
		newIncluded = append(newIncluded, name)
	}

	// 進行中のシーケンスを打ち切る
	if s.toggleCancel != nil {
		s.toggleCancel()
	}
	toggleCtx, cancel := context.WithCancel(ctx)
	s.toggleCancel = cancel
	s.toggleGen++
	gen := s.toggleGen
	s.mu.Unlock()

	defer cancel()
	return s.runToggleSequence(toggleCtx, gen, newIncluded)
}

// runToggleSequence は構成送信→構成再取得→概要再取得を実行し、
// 自分より新しい切り替えが始まっていた場合は結果を適用しない
func (s *AnalysisSession) runToggleSequence(ctx context.Context, gen uint64, included []string) error {
	// (1) 採用集合をサーバーへ送信
	filters, err := s.client.UpdateFilterConfig(ctx, s.jobID, included)
	if err != nil {
		return fmt.Errorf("フィルター構成の更新に失敗しました: %w", err)
	}
	if !s.applyFilters(gen, filters) {
		return nil // 新しい切り替えに引き継がれた
	}

	// (2) サーバー側の自動除外ルールを反映するため構成を再取得
	filters, err = s.client.FilterConfig(ctx, s.jobID)
	if err != nil {
		return fmt.Errorf("フィルター構成の再取得に失敗しました: %w", err)
	}
	if !s.applyFilters(gen, filters) {
		return nil
	}

	// (3) 採用集合の変化でカラム統計が変わるため概要を再取得
	summary, err := s.client.AnalysisSummary(ctx, s.jobID)
	if err != nil {
		return fmt.Errorf("概要の再取得に失敗しました: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.toggleGen {
		return nil
	}
	s.summary = &summary
	return nil
}

// applyFilters は世代が最新の場合のみ構成を反映する
func (s *AnalysisSession) applyFilters(gen uint64, filters models.ColumnFilters) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.toggleGen {
		return false
	}
	s.filters = filters
	return true
}
