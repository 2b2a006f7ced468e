// Package timeseries は実績系列と予測系列を1本の描画用系列に統合する
// 純粋な変換処理を提供する。日付はYYYY-MM-DD固定幅文字列で、
// 辞書順比較がそのまま時系列順比較になることを前提とする。
package timeseries

import (
	"sort"

	"sales-forecast-api/pkg/models"
)

// ReconciledSeries 実績と予測を日付ラベルで整列させた統合系列。
// 各値スライスはLabelsと同じ長さで、該当日付にデータが無い位置はnil。
type ReconciledSeries struct {
	Labels          []string   `json:"labels"`
	ActualValues    []*float64 `json:"actual_values"`
	PredictedValues []*float64 `json:"predicted_values"`
	LowerValues     []*float64 `json:"lower_values"`
	UpperValues     []*float64 `json:"upper_values"`
	TransitionDate  string     `json:"transition_date,omitempty"` // 実績と予測の境界日。無い場合は空
}

// Len はラベル数を返す
func (s *ReconciledSeries) Len() int {
	return len(s.Labels)
}

// IndexOf はラベル中の日付位置を返す（無ければ-1）
func (s *ReconciledSeries) IndexOf(date string) int {
	for i, l := range s.Labels {
		if l == date {
			return i
		}
	}
	return -1
}

// ReconcileOptions 統合時のオプション
type ReconcileOptions struct {
	// BoundaryDate 明示的な境界日（学習終了日など）。指定があれば
	// 最終実績日より優先される
	BoundaryDate string
}

// Reconcile は実績と予測（と任意の信頼区間）を、日付の和集合を昇順に
// 並べた1本の系列へ統合する。境界日の位置では予測値を実績値に
// 揃えて（アンカー点）、2本の折れ線が同一点で接続されるようにする。
// 入力順や重複日付に依存しない決定的な結果を返す。
func Reconcile(history []models.HistoryPoint, forecast []models.ForecastPoint, opts ReconcileOptions) ReconciledSeries {
	if len(history) == 0 && len(forecast) == 0 {
		return ReconciledSeries{
			Labels:          []string{},
			ActualValues:    []*float64{},
			PredictedValues: []*float64{},
			LowerValues:     []*float64{},
			UpperValues:     []*float64{},
		}
	}

	// 1. 日付の和集合を昇順・重複なしで構築
	labelSet := make(map[string]struct{}, len(history)+len(forecast))
	for _, p := range history {
		labelSet[p.Date] = struct{}{}
	}
	for _, p := range forecast {
		labelSet[p.Date] = struct{}{}
	}
	labels := make([]string, 0, len(labelSet))
	for d := range labelSet {
		labels = append(labels, d)
	}
	sort.Strings(labels)

	// 2. 日付→値のルックアップ。入力内の重複日付は後勝ち
	//    （防御的な方針であり、呼び出し側が依存してよい保証ではない）
	actualMap := make(map[string]float64, len(history))
	for _, p := range history {
		actualMap[p.Date] = p.Actual
	}
	forecastMap := make(map[string]models.ForecastPoint, len(forecast))
	for _, p := range forecast {
		forecastMap[p.Date] = p
	}

	// 3. ラベルに沿って各系列を整列（欠損はnil）
	actuals := make([]*float64, len(labels))
	predicted := make([]*float64, len(labels))
	lower := make([]*float64, len(labels))
	upper := make([]*float64, len(labels))
	for i, label := range labels {
		if v, ok := actualMap[label]; ok {
			actuals[i] = ptr(v)
		}
		if fp, ok := forecastMap[label]; ok {
			predicted[i] = ptr(fp.Predicted)
			if fp.Lower != nil {
				lower[i] = ptr(*fp.Lower)
			}
			if fp.Upper != nil {
				upper[i] = ptr(*fp.Upper)
			}
		}
	}

	series := ReconciledSeries{
		Labels:          labels,
		ActualValues:    actuals,
		PredictedValues: predicted,
		LowerValues:     lower,
		UpperValues:     upper,
	}

	// 4. 境界日の決定: 明示指定 > 最終実績日。ラベルに一致が無ければ
	//    その日付以降の最初のラベルへフォールバック
	rawBoundary := opts.BoundaryDate
	if rawBoundary == "" {
		if last := lastHistoryDate(history); last != "" {
			rawBoundary = last
		}
	}
	if rawBoundary != "" {
		idx := sort.SearchStrings(labels, rawBoundary)
		if idx < len(labels) {
			series.TransitionDate = labels[idx]

			// 5. アンカー点: 境界日に実績があれば予測側をその値で上書きし、
			//    折れ線の断絶を防ぐ。信頼区間も欠けていれば同じ値で閉じる
			if a := actuals[idx]; a != nil {
				predicted[idx] = ptr(*a)
				if lower[idx] == nil {
					lower[idx] = ptr(*a)
				}
				if upper[idx] == nil {
					upper[idx] = ptr(*a)
				}
			}
		}
	}

	return series
}

// lastHistoryDate は実績の最終日付を返す（入力順に依存しないよう最大値を取る）
func lastHistoryDate(history []models.HistoryPoint) string {
	last := ""
	for _, p := range history {
		if p.Date > last {
			last = p.Date
		}
	}
	return last
}

func ptr(v float64) *float64 {
	return &v
}
