package timeseries

import (
	"testing"

	"sales-forecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 {
	return &v
}

func TestReconcileUnionAndSort(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-01", Actual: 10},
		{Date: "2024-01-02", Actual: 12},
	}
	forecast := []models.ForecastPoint{
		{Date: "2024-01-02", Predicted: 11},
		{Date: "2024-01-03", Predicted: 13},
	}

	series := Reconcile(history, forecast, ReconcileOptions{})

	// ラベルは両系列の日付の和集合を昇順・重複なしで並べたもの
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, series.Labels)
	assert.Equal(t, "2024-01-02", series.TransitionDate)

	// 整列: 実績は [10, 12, nil]
	require.Len(t, series.ActualValues, 3)
	assert.Equal(t, 10.0, *series.ActualValues[0])
	assert.Equal(t, 12.0, *series.ActualValues[1])
	assert.Nil(t, series.ActualValues[2])

	// 予測は境界日でアンカーされ [nil, 12, 13]
	assert.Nil(t, series.PredictedValues[0])
	assert.Equal(t, 12.0, *series.PredictedValues[1])
	assert.Equal(t, 13.0, *series.PredictedValues[2])
}

func TestReconcileRowLengthInvariant(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-03-04", Actual: 3},
		{Date: "2024-03-01", Actual: 1},
	}
	forecast := []models.ForecastPoint{
		{Date: "2024-03-09", Predicted: 9, Lower: f(7), Upper: f(11)},
	}

	series := Reconcile(history, forecast, ReconcileOptions{})

	n := series.Len()
	assert.Equal(t, n, len(series.ActualValues))
	assert.Equal(t, n, len(series.PredictedValues))
	assert.Equal(t, n, len(series.LowerValues))
	assert.Equal(t, n, len(series.UpperValues))
}

func TestReconcileAnchorContinuity(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-01", Actual: 10},
		{Date: "2024-01-02", Actual: 12},
	}
	forecast := []models.ForecastPoint{
		{Date: "2024-01-02", Predicted: 11, Lower: f(9), Upper: f(13)},
		{Date: "2024-01-03", Predicted: 13, Lower: f(11), Upper: f(15)},
	}

	series := Reconcile(history, forecast, ReconcileOptions{})

	idx := series.IndexOf(series.TransitionDate)
	require.NotEqual(t, -1, idx)

	// 境界日では予測値が実績値に揃えられている
	require.NotNil(t, series.PredictedValues[idx])
	require.NotNil(t, series.ActualValues[idx])
	assert.Equal(t, *series.ActualValues[idx], *series.PredictedValues[idx])
}

func TestReconcileEmptyInputs(t *testing.T) {
	series := Reconcile(nil, nil, ReconcileOptions{})

	assert.Empty(t, series.Labels)
	assert.Empty(t, series.ActualValues)
	assert.Empty(t, series.PredictedValues)
	assert.Empty(t, series.LowerValues)
	assert.Empty(t, series.UpperValues)
	assert.Equal(t, "", series.TransitionDate)
}

func TestReconcileForecastOnly(t *testing.T) {
	forecast := []models.ForecastPoint{
		{Date: "2024-02-01", Predicted: 5},
	}

	series := Reconcile(nil, forecast, ReconcileOptions{})

	assert.Equal(t, []string{"2024-02-01"}, series.Labels)
	assert.Nil(t, series.ActualValues[0])
	assert.Equal(t, 5.0, *series.PredictedValues[0])
	// 実績が無ければ境界日も無い
	assert.Equal(t, "", series.TransitionDate)
}

func TestReconcileHistoryOnly(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-02-01", Actual: 4},
		{Date: "2024-02-02", Actual: 6},
	}

	series := Reconcile(history, nil, ReconcileOptions{})

	assert.Equal(t, []string{"2024-02-01", "2024-02-02"}, series.Labels)
	assert.Equal(t, "2024-02-02", series.TransitionDate)
}

func TestReconcileExplicitBoundary(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-01", Actual: 10},
		{Date: "2024-01-08", Actual: 12},
	}
	forecast := []models.ForecastPoint{
		{Date: "2024-01-15", Predicted: 14},
	}

	// 明示境界日が最終実績日より優先される
	series := Reconcile(history, forecast, ReconcileOptions{BoundaryDate: "2024-01-01"})
	assert.Equal(t, "2024-01-01", series.TransitionDate)

	// ラベルに一致が無い場合はその日付以降の最初のラベルへ
	series = Reconcile(history, forecast, ReconcileOptions{BoundaryDate: "2024-01-10"})
	assert.Equal(t, "2024-01-15", series.TransitionDate)

	// 以降のラベルも無ければ境界なし
	series = Reconcile(history, forecast, ReconcileOptions{BoundaryDate: "2024-02-01"})
	assert.Equal(t, "", series.TransitionDate)
}

func TestReconcileDuplicateDatesLastWins(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-01", Actual: 10},
		{Date: "2024-01-01", Actual: 20},
	}

	series := Reconcile(history, nil, ReconcileOptions{})

	require.Equal(t, []string{"2024-01-01"}, series.Labels)
	assert.Equal(t, 20.0, *series.ActualValues[0])
}

func TestReconcileUnsortedInput(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-03", Actual: 3},
		{Date: "2024-01-01", Actual: 1},
		{Date: "2024-01-02", Actual: 2},
	}

	series := Reconcile(history, nil, ReconcileOptions{})

	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, series.Labels)
	// 入力順に関わらず最終実績日が境界になる
	assert.Equal(t, "2024-01-03", series.TransitionDate)
}

func TestReconcileIdempotent(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-01", Actual: 10},
		{Date: "2024-01-02", Actual: 12},
	}
	forecast := []models.ForecastPoint{
		{Date: "2024-01-02", Predicted: 11, Lower: f(9), Upper: f(13)},
		{Date: "2024-01-03", Predicted: 13},
	}

	first := Reconcile(history, forecast, ReconcileOptions{})
	second := Reconcile(history, forecast, ReconcileOptions{})

	assert.Equal(t, first, second)
}

func TestReconcileCIAnchorFill(t *testing.T) {
	history := []models.HistoryPoint{
		{Date: "2024-01-02", Actual: 12},
	}
	forecast := []models.ForecastPoint{
		{Date: "2024-01-03", Predicted: 13, Lower: f(11), Upper: f(15)},
	}

	series := Reconcile(history, forecast, ReconcileOptions{})

	idx := series.IndexOf("2024-01-02")
	require.NotEqual(t, -1, idx)
	// 境界日に信頼区間が無ければアンカー値で閉じる
	assert.Equal(t, 12.0, *series.LowerValues[idx])
	assert.Equal(t, 12.0, *series.UpperValues[idx])
}
