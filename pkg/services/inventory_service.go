package services

import (
	"fmt"
	"math"
	"sort"

	"sales-forecast-api/pkg/models"
)

// InventoryService 予測結果ストアを参照して安全在庫を計算するサービス
type InventoryService struct {
	skuStore *SkuResultStore
	pcStore  *PCResultStore
}

// NewInventoryService 新しい在庫サービスを作成
func NewInventoryService(skuStore *SkuResultStore, pcStore *PCResultStore) *InventoryService {
	return &InventoryService{skuStore: skuStore, pcStore: pcStore}
}

// DemandStats 履歴から算出した需要統計
type DemandStats struct {
	Mean float64
	Std  float64
}

// GetSkuDemandStats はSKU予測レコードの履歴から需要の平均と標準偏差を計算する。
// 標準偏差には最低2点の実績が必要
func (s *InventoryService) GetSkuDemandStats(productCode, model string) (*DemandStats, error) {
	record := s.skuStore.Find(productCode, model)
	if record == nil {
		return nil, fmt.Errorf("SKU %s（モデル %s）の履歴データが見つかりません", productCode, model)
	}
	return demandStatsFromHistory(record.History, productCode)
}

// GetPCDemandStats は製品×顧客レコードの履歴から需要統計を計算する
func (s *InventoryService) GetPCDemandStats(customerCode, productCode, model string) (*DemandStats, error) {
	record := s.pcStore.Find(customerCode, productCode, model)
	if record == nil {
		return nil, fmt.Errorf("C=%s, P=%s, M=%s のレコードが見つかりません", customerCode, productCode, model)
	}
	return demandStatsFromHistory(record.History, productCode)
}

func demandStatsFromHistory(history []models.HistoryPoint, label string) (*DemandStats, error) {
	actuals := make([]float64, 0, len(history))
	for _, h := range history {
		actuals = append(actuals, h.Actual)
	}
	if len(actuals) < 2 {
		return nil, fmt.Errorf("履歴データが不足しています（%d件）: %s", len(actuals), label)
	}
	return &DemandStats{
		Mean: calculateMean(actuals),
		Std:  calculateSampleStdDev(actuals),
	}, nil
}

// CalculateSafetyStock は安全在庫を計算する:
// z * sqrt(需要分散 * リードタイム + 需要平均^2 * リードタイム分散)
func CalculateSafetyStock(demandStd, demandMean, serviceLevel, leadTime, leadTimeStd float64) (float64, error) {
	if !(serviceLevel > 0 && serviceLevel < 1) {
		return 0, fmt.Errorf("サービスレベルは (0, 1) の範囲で指定してください: %v", serviceLevel)
	}

	z := normalQuantile(serviceLevel)
	ss := z * math.Sqrt(demandStd*demandStd*leadTime+demandMean*demandMean*leadTimeStd*leadTimeStd)
	return roundTo(ss, 2), nil
}

// BuildChartData は履歴と予測を種別付きの1本の系列へ再構成する。
// 日付昇順に並べて折れ線の連続性を保証する
func BuildChartData(history []models.HistoryPoint, forecast []models.ForecastPoint) []models.ChartDataItem {
	items := make([]models.ChartDataItem, 0, len(history)+len(forecast))
	for _, h := range history {
		v := h.Actual
		items = append(items, models.ChartDataItem{Date: h.Date, Value: &v, Kind: models.ChartPointHistory})
	}
	for _, f := range forecast {
		v := f.Predicted
		items = append(items, models.ChartDataItem{Date: f.Date, Value: &v, Kind: models.ChartPointForecast})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Date < items[j].Date })
	return items
}

// normalQuantile は標準正規分布の分位点（norm.ppfに相当）を返す。
// 逆誤差関数との関係 z = sqrt(2) * erfinv(2p - 1) を用いる
func normalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// calculateMean は算術平均を計算する
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateSampleStdDev は標本標準偏差（n-1で割る）を計算する
func calculateSampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := calculateMean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func roundTo(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
