package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSalesCSVRequiresColumns(t *testing.T) {
	svc := NewForecastService()

	_, err := svc.ParseSalesCSV(strings.NewReader("product_id,date\nP1,2024-01-01\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantity_sold")

	_, err = svc.ParseSalesCSV(strings.NewReader("product_id,date,quantity_sold\nP1,2024-01-01,3\n"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_id")
}

func TestParseSalesCSVSkipsInvalidRows(t *testing.T) {
	svc := NewForecastService()
	csv := strings.Join([]string{
		"Product_ID,Date,Quantity_Sold",
		"P1,2024-01-01,3",
		"P1,not-a-date,4",
		"P1,2024-01-02,abc",
		",2024-01-03,5",
		"P1,2024-01-03,7",
	}, "\n")

	rows, err := svc.ParseSalesCSV(strings.NewReader(csv), false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-01", rows[0].Date)
	assert.Equal(t, 7.0, rows[1].Quantity)
}

func TestParseSalesCSVRejectsEmptyData(t *testing.T) {
	svc := NewForecastService()
	_, err := svc.ParseSalesCSV(strings.NewReader("product_id,date,quantity_sold\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "有効な売上データがありません")
}

func TestResampleDailyZeroFillsGaps(t *testing.T) {
	rows := []salesRow{
		{ProductID: "P1", Date: "2024-01-01", Quantity: 3},
		{ProductID: "P1", Date: "2024-01-01", Quantity: 2},
		{ProductID: "P1", Date: "2024-01-04", Quantity: 5},
	}

	series := resampleDaily(rows, false)
	points := series[groupKey{ProductID: "P1"}]
	require.Len(t, points, 4)
	assert.Equal(t, 5.0, points[0].Actual) // 同日2件は合算
	assert.Equal(t, 0.0, points[1].Actual)
	assert.Equal(t, 0.0, points[2].Actual)
	assert.Equal(t, "2024-01-04", points[3].Date)
}

func TestResampleDailyGroupsByCustomer(t *testing.T) {
	rows := []salesRow{
		{ProductID: "P1", CustomerID: "C1", Date: "2024-01-01", Quantity: 3},
		{ProductID: "P1", CustomerID: "C2", Date: "2024-01-01", Quantity: 4},
	}

	series := resampleDaily(rows, true)
	assert.Len(t, series, 2)
	assert.Equal(t, 3.0, series[groupKey{ProductID: "P1", CustomerID: "C1"}][0].Actual)
}

func TestForecastNaiveRepeatsLastValue(t *testing.T) {
	preds := forecastNaive([]float64{3, 5, 8}, 3)
	assert.Equal(t, []float64{8, 8, 8}, preds)

	// 負の実績は0に切り上げる
	preds = forecastNaive([]float64{3, -2}, 2)
	assert.Equal(t, []float64{0, 0}, preds)
}

func TestForecastMovingAverage(t *testing.T) {
	// window=7 > データ長なので全体平均からスタートする
	preds := forecastMovingAverage([]float64{2, 4, 6}, 2, 7)
	require.Len(t, preds, 2)
	assert.InDelta(t, 4.0, preds[0], 1e-9)
	assert.InDelta(t, 4.0, preds[1], 1e-9)
}

func TestForecastLinearTrend(t *testing.T) {
	// 完全な直線 y = 2x + 1 はそのまま外挿される
	preds := forecastLinearTrend([]float64{1, 3, 5, 7}, 2)
	require.Len(t, preds, 2)
	assert.InDelta(t, 9.0, preds[0], 1e-9)
	assert.InDelta(t, 11.0, preds[1], 1e-9)

	// 1点しか無い場合はnaiveにフォールバック
	preds = forecastLinearTrend([]float64{5}, 2)
	assert.Equal(t, []float64{5, 5}, preds)
}

func TestClampHorizon(t *testing.T) {
	svc := NewForecastService()
	assert.Equal(t, 7, svc.clampHorizon(0))
	assert.Equal(t, 7, svc.clampHorizon(-1))
	assert.Equal(t, 30, svc.clampHorizon(30))
	assert.Equal(t, 365, svc.clampHorizon(1000))
}

func TestForecastByProductStartsAfterLastDate(t *testing.T) {
	svc := NewForecastService()
	csv := strings.Join([]string{
		"product_id,date,quantity_sold",
		"P1,2024-01-01,3",
		"P1,2024-01-02,5",
		"P2,2024-01-02,4",
	}, "\n")

	resp, err := svc.ForecastByProduct(strings.NewReader(csv), 2, "naive")
	require.NoError(t, err)
	assert.Equal(t, "naive", resp.Meta.Model)
	assert.Equal(t, 2, resp.Meta.Horizon)

	// グループは製品コード順、予測は最終実績日の翌日から
	require.Len(t, resp.Forecast, 4)
	assert.Equal(t, "P1", resp.Forecast[0].ProductID)
	assert.Equal(t, "2024-01-03", resp.Forecast[0].Date)
	assert.Equal(t, 5.0, resp.Forecast[0].Forecast)
	assert.Equal(t, "P2", resp.Forecast[2].ProductID)
	assert.Equal(t, "2024-01-03", resp.Forecast[2].Date)
}

func TestForecastByProductCustomerKeepsCustomerID(t *testing.T) {
	svc := NewForecastService()
	csv := strings.Join([]string{
		"product_id,customer_id,date,quantity_sold",
		"P1,C1,2024-01-01,3",
		"P1,C2,2024-01-01,6",
	}, "\n")

	resp, err := svc.ForecastByProductCustomer(strings.NewReader(csv), 1, "naive")
	require.NoError(t, err)
	require.Len(t, resp.Forecast, 2)
	assert.Equal(t, "C1", resp.Forecast[0].CustomerID)
	assert.Equal(t, "C2", resp.Forecast[1].CustomerID)
}
