package client

import (
	"context"

	"sales-forecast-api/pkg/models"
	"sales-forecast-api/pkg/timeseries"
)

// ChartView 画面へそのまま渡せる統合系列とスタイル設定の組
type ChartView struct {
	Series timeseries.ReconciledSeries
	Config timeseries.ChartConfig
}

// SkuForecastChart はSKU予測を取得し、実績と予測を統合した
// 描画用の系列へ変換して返す。境界日には学習終了日を使う
func (c *Client) SkuForecastChart(ctx context.Context, productCode, model string) (models.SkuForecastResponse, ChartView, error) {
	resp, err := c.SkuForecast(ctx, productCode, model)
	if err != nil {
		return resp, ChartView{}, err
	}
	view := ChartView{
		Series: timeseries.Reconcile(resp.ChartData.History, resp.ChartData.Forecast, timeseries.ReconcileOptions{
			BoundaryDate: resp.ChartData.TrainEndDate,
		}),
		Config: timeseries.DefaultChartConfig(),
	}
	return resp, view, nil
}

// Chart は安全在庫計算が返したオーバーライド系列を統合する。
// 以前の予測結果から作った系列はこの結果で置き換える
func (o *SafetyStockOutcome) Chart() ChartView {
	return ChartView{
		Series: timeseries.Reconcile(o.History, o.Forecast, timeseries.ReconcileOptions{}),
		Config: timeseries.DefaultChartConfig(),
	}
}
