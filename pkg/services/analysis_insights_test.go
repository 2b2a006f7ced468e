package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeQuality(t *testing.T) {
	dataset := &Dataset{
		Columns: []string{"Region", "Quantity"},
		Rows: [][]string{
			{"East", "3"},
			{"West", ""},
			{"East", "3"},
			{"", "5"},
		},
	}

	quality := computeQuality(dataset)

	// 8セル中2セルが欠損
	assert.InDelta(t, 0.75, quality.Completeness, 1e-9)
	assert.Equal(t, 1, quality.DuplicateRows)
	assert.Greater(t, quality.MemoryUsageMB, 0.0)
}

func TestComputeQualityEmptyDataset(t *testing.T) {
	quality := computeQuality(&Dataset{Columns: []string{"A"}})

	assert.Equal(t, 1.0, quality.Completeness)
	assert.Equal(t, 0, quality.DuplicateRows)
}

func TestComputeInsightsTrend(t *testing.T) {
	dataset := &Dataset{
		Columns: []string{"Date", "Quantity"},
		Rows: [][]string{
			{"2024-01-02", "2"},
			{"2024-01-01", "3"},
			{"2024-01-01", "5"},
			{"2024-01-03", "0"},
		},
	}

	insights := computeInsights(dataset)
	trend := insights.TimeSeriesAnalysis
	require.NotNil(t, trend)

	assert.Equal(t, "Date", trend.DatetimeColumn)
	assert.Equal(t, "Quantity", trend.ValueColumn)
	assert.Equal(t, "Daily", trend.Frequency)

	// 日次合計を日付昇順で並べ、合計0の日は落とす
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, trend.TrendData.Index)
	assert.Equal(t, [][]float64{{8}, {2}}, trend.TrendData.Data)
}

func TestComputeInsightsTopCategoricalCounts(t *testing.T) {
	dataset := &Dataset{
		Columns: []string{"Region", "Constant", "NearUnique"},
		Rows: [][]string{
			{"East", "JP", "a"},
			{"East", "JP", "b"},
			{"West", "JP", "c"},
			{"East", "JP", "d"},
			{"West", "JP", "e"},
			{"East", "JP", "a"},
		},
	}

	insights := computeInsights(dataset)

	// 単一値のカラムとユニーク比率の高いカラムは示唆に含めない
	require.Contains(t, insights.TopCategoricalCounts, "Region")
	assert.NotContains(t, insights.TopCategoricalCounts, "Constant")
	assert.NotContains(t, insights.TopCategoricalCounts, "NearUnique")
	assert.Equal(t, map[string]int{"East": 4, "West": 2}, insights.TopCategoricalCounts["Region"])
}

func TestFindDatetimeColumnByName(t *testing.T) {
	// 型推定で日付にならなくても、名前と値から日付カラムを拾う
	dataset := &Dataset{
		Columns: []string{"Region", "ShipTime"},
		Rows: [][]string{
			{"East", "2024-01-01"},
			{"West", "n/a"},
			{"East", "n/a"},
			{"West", "n/a"},
		},
	}

	assert.Equal(t, 1, findDatetimeColumn(dataset))

	none := &Dataset{Columns: []string{"Region"}, Rows: [][]string{{"East"}}}
	assert.Equal(t, -1, findDatetimeColumn(none))
}

func TestComputeCorrelation(t *testing.T) {
	dataset := &Dataset{
		Columns: []string{"Region", "Quantity", "Price"},
		Rows: [][]string{
			{"East", "1", "10"},
			{"West", "2", "20"},
			{"East", "3", "30"},
			{"West", "4", "40"},
		},
	}

	matrix := computeCorrelation(dataset)
	require.NotNil(t, matrix)

	assert.Equal(t, []string{"Quantity", "Price"}, matrix.Columns)
	assert.Equal(t, 1.0, matrix.Matrix[0][0])
	assert.Equal(t, 1.0, matrix.Matrix[1][1])
	assert.Equal(t, 1.0, matrix.Matrix[0][1])
	assert.Equal(t, matrix.Matrix[0][1], matrix.Matrix[1][0])
}

func TestComputeCorrelationNegative(t *testing.T) {
	dataset := &Dataset{
		Columns: []string{"X", "Y"},
		Rows: [][]string{
			{"1", "9"},
			{"2", "7"},
			{"3", "5"},
			{"4", "3"},
		},
	}

	matrix := computeCorrelation(dataset)
	require.NotNil(t, matrix)
	assert.Equal(t, -1.0, matrix.Matrix[0][1])
}

func TestComputeCorrelationTooFewNumericColumns(t *testing.T) {
	dataset := &Dataset{
		Columns: []string{"Region", "Quantity"},
		Rows: [][]string{
			{"East", "1"},
			{"West", "2"},
		},
	}

	assert.Nil(t, computeCorrelation(dataset))
}

func TestPearsonCorrelationSkipsMissingPairs(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	x := []*float64{f(1), nil, f(2), f(3)}
	y := []*float64{f(2), f(9), nil, f(6)}

	// 両方に値のある行 (1,2) と (3,6) だけで計算する
	assert.Equal(t, 1.0, pearsonCorrelation(x, y))

	// 分散0のカラムは0扱い
	constants := []*float64{f(5), f(5), f(5)}
	values := []*float64{f(1), f(2), f(3)}
	assert.Equal(t, 0.0, pearsonCorrelation(constants, values))
}

func TestQualityInsightsCorrelationViaService(t *testing.T) {
	svc := NewAnalysisService(0.9, 1000)
	jobID := uploadAndWait(t, svc, "sales.csv", testSalesCSV)

	quality, err := svc.Quality(jobID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, quality.Completeness)
	assert.Equal(t, 0, quality.DuplicateRows)

	insights, err := svc.Insights(jobID)
	require.NoError(t, err)
	require.NotNil(t, insights.TimeSeriesAnalysis)
	assert.Equal(t, "Date", insights.TimeSeriesAnalysis.DatetimeColumn)

	// 数値カラムはQuantity1本だけなので相関行列は作れない
	matrix, err := svc.Correlation(jobID)
	require.NoError(t, err)
	assert.Nil(t, matrix)

	_, err = svc.Quality("unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
