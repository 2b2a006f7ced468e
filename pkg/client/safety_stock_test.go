package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"sales-forecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafetyStockParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		params SafetyStockParams
		field  string
	}{
		{"サービスレベルが1以上", SafetyStockParams{ServiceLevel: 1.2, LeadTimeDays: 7}, "serviceLevel"},
		{"サービスレベルがちょうど1", SafetyStockParams{ServiceLevel: 1, LeadTimeDays: 7}, "serviceLevel"},
		{"サービスレベルが0", SafetyStockParams{ServiceLevel: 0, LeadTimeDays: 7}, "serviceLevel"},
		{"リードタイムが0", SafetyStockParams{ServiceLevel: 0.95, LeadTimeDays: 0}, "leadTime"},
		{"リードタイムが負", SafetyStockParams{ServiceLevel: 0.95, LeadTimeDays: -1}, "leadTime"},
		{"標準偏差が負", SafetyStockParams{ServiceLevel: 0.95, LeadTimeDays: 7, LeadTimeStdDays: -0.5}, "leadTimeStd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, SafetyStockParams{ServiceLevel: 0.95, LeadTimeDays: 7, LeadTimeStdDays: 0}.Validate())
}

func TestCalculatePCSafetyStockValidatesBeforeNetwork(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	record := &models.PCForecastRecord{CustomerCode: "C1", ProductCode: "P1", Model: "lightgbm"}

	_, err := c.CalculatePCSafetyStock(context.Background(), record, SafetyStockParams{
		ServiceLevel: 1.2,
		LeadTimeDays: 7,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "serviceLevel", verr.Field)

	// 検証が通るまでネットワーク呼び出しは行わない
	assert.Zero(t, atomic.LoadInt32(&requests))
}

func TestCalculatePCSafetyStockRequiresRecord(t *testing.T) {
	c := NewClient("http://localhost:0")
	_, err := c.CalculatePCSafetyStock(context.Background(), nil, SafetyStockParams{
		ServiceLevel: 0.95,
		LeadTimeDays: 7,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "record", verr.Field)
}

func TestCalculatePCSafetyStockSplitsChartOverride(t *testing.T) {
	v1, v2, v3 := 10.0, 12.0, 14.0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pc-forecast/safety-stock", r.URL.Path)

		var req models.PCSafetyStockRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "C1", req.CustomerID)
		assert.Equal(t, "P1", req.ProductID)

		json.NewEncoder(w).Encode(models.SafetyStockResponse{
			SafetyStock: 32.9,
			DemandMean:  50,
			DemandStd:   10,
			ChartData: []models.ChartDataItem{
				{Date: "2024-01-03", Value: &v3, Kind: models.ChartPointForecast},
				{Date: "2024-01-02", Value: &v2, Kind: models.ChartPointHistory},
				{Date: "2024-01-01", Value: &v1, Kind: models.ChartPointHistory},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	record := &models.PCForecastRecord{CustomerCode: "C1", ProductCode: "P1", Model: "lightgbm"}

	outcome, err := c.CalculatePCSafetyStock(context.Background(), record, SafetyStockParams{
		ServiceLevel: 0.95,
		LeadTimeDays: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 32.9, outcome.SafetyStock)

	// オーバーライド系列は種別で分割され、日付昇順に並ぶ
	require.Len(t, outcome.History, 2)
	assert.Equal(t, "2024-01-01", outcome.History[0].Date)
	assert.Equal(t, "2024-01-02", outcome.History[1].Date)
	require.Len(t, outcome.Forecast, 1)
	assert.Equal(t, 14.0, outcome.Forecast[0].Predicted)
}

func TestSplitChartOverrideDropsNilValues(t *testing.T) {
	v := 5.0
	history, forecast := SplitChartOverride([]models.ChartDataItem{
		{Date: "2024-01-01", Value: nil, Kind: models.ChartPointHistory},
		{Date: "2024-01-02", Value: &v, Kind: models.ChartPointHistory},
		{Date: "2024-01-03", Value: nil, Kind: models.ChartPointForecast},
	})
	require.Len(t, history, 1)
	assert.Equal(t, "2024-01-02", history[0].Date)
	assert.Empty(t, forecast)
}
