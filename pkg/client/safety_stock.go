package client

import (
	"context"
	"sort"

	"sales-forecast-api/pkg/models"
)

// SafetyStockParams 安全在庫計算のユーザー入力
type SafetyStockParams struct {
	ServiceLevel    float64 // (0, 1)
	LeadTimeDays    float64 // > 0
	LeadTimeStdDays float64 // >= 0
}

// Validate は各フィールドを検証し、不正な場合はフィールド名付きの
// ValidationErrorを返す。検証が通るまでネットワーク呼び出しは行われない
func (p SafetyStockParams) Validate() error {
	if !(p.ServiceLevel > 0 && p.ServiceLevel < 1) {
		return &ValidationError{Field: "serviceLevel", Message: "サービスレベルは (0, 1) の範囲で指定してください"}
	}
	if p.LeadTimeDays <= 0 {
		return &ValidationError{Field: "leadTime", Message: "リードタイムは 0 より大きい値を指定してください"}
	}
	if p.LeadTimeStdDays < 0 {
		return &ValidationError{Field: "leadTimeStd", Message: "リードタイム標準偏差に負の値は指定できません"}
	}
	return nil
}

// SafetyStockOutcome 安全在庫計算の結果。Historyと Forecastは
// サーバーが返したチャートオーバーライドを系列別に再構成したもので、
// 以降の統合表示では元の系列をこれで置き換える
type SafetyStockOutcome struct {
	SafetyStock float64
	DemandMean  float64
	DemandStd   float64
	History     []models.HistoryPoint
	Forecast    []models.ForecastPoint
}

// CalculatePCSafetyStock は検証 → 送信 → オーバーライド系列の再構成を行う。
// recordは事前に成功した予測結果で、無い場合は計算できない
func (c *Client) CalculatePCSafetyStock(ctx context.Context, record *models.PCForecastRecord, params SafetyStockParams) (*SafetyStockOutcome, error) {
	if record == nil {
		return nil, &ValidationError{Field: "record", Message: "安全在庫の計算には先に予測を実行してください"}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.PCSafetyStock(ctx, models.PCSafetyStockRequest{
		CustomerID:   record.CustomerCode,
		ProductID:    record.ProductCode,
		Model:        record.Model,
		ServiceLevel: params.ServiceLevel,
		LeadTime:     params.LeadTimeDays,
		LeadTimeStd:  params.LeadTimeStdDays,
	})
	if err != nil {
		return nil, err
	}

	history, forecast := SplitChartOverride(resp.ChartData)
	return &SafetyStockOutcome{
		SafetyStock: resp.SafetyStock,
		DemandMean:  resp.DemandMean,
		DemandStd:   resp.DemandStd,
		History:     history,
		Forecast:    forecast,
	}, nil
}

// SplitChartOverride はチャートオーバーライド系列を種別で分割し、
// 統合処理が受け取る実績/予測の形へ変換する。値がnilの点は捨てる
func SplitChartOverride(items []models.ChartDataItem) ([]models.HistoryPoint, []models.ForecastPoint) {
	history := make([]models.HistoryPoint, 0, len(items))
	forecast := make([]models.ForecastPoint, 0, len(items))
	for _, item := range items {
		if item.Value == nil {
			continue
		}
		switch item.Kind {
		case models.ChartPointHistory:
			history = append(history, models.HistoryPoint{Date: item.Date, Actual: *item.Value})
		case models.ChartPointForecast:
			forecast = append(forecast, models.ForecastPoint{Date: item.Date, Predicted: *item.Value})
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })
	sort.Slice(forecast, func(i, j int) bool { return forecast[i].Date < forecast[j].Date })
	return history, forecast
}
