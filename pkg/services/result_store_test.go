package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResultFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSkuResultStoreNormalizesLegacyKeys(t *testing.T) {
	dir := t.TempDir()
	// 旧世代の出力: ds/y/yhat系のキー名、数値のproduct_code、タイポ入りモデル名
	writeResultFile(t, dir, "result.json", `[{
		"product_code": 12345,
		"model": "LighGBM",
		"train_end_date": "2024-01-02T00:00:00",
		"history": [
			{"ds": "2024-01-02T00:00:00", "y": 5},
			{"ds": "2024-01-01T00:00:00", "y": 3}
		],
		"forecast": [
			{"ds": "2024-01-04", "yhat": 8, "yhat_lower_80": 6, "yhat_upper_80": 10},
			{"ds": "2024-01-03", "yhat": 7},
			{"ds": "2024-01-02", "yhat": 9}
		]
	}]`)

	store := NewSkuResultStore(dir)
	rec := store.Find("12345", "lightgbm")
	require.NotNil(t, rec)
	assert.Equal(t, "12345", rec.ProductCode)
	assert.Equal(t, "2024-01-02", rec.TrainEndDate)

	// 履歴は日付昇順
	require.Len(t, rec.History, 2)
	assert.Equal(t, "2024-01-01", rec.History[0].Date)
	assert.Equal(t, 3.0, rec.History[0].Actual)

	// 学習期間内（train_end_date以前）の予測点は捨てられる
	require.Len(t, rec.Forecast, 2)
	assert.Equal(t, "2024-01-03", rec.Forecast[0].Date)
	assert.Equal(t, "2024-01-04", rec.Forecast[1].Date)
	require.NotNil(t, rec.Forecast[1].Lower)
	assert.Equal(t, 6.0, *rec.Forecast[1].Lower)
}

func TestSkuResultStoreModelsSorted(t *testing.T) {
	dir := t.TempDir()
	writeResultFile(t, dir, "a.json", `{"product_code": "P1", "model": "prophet", "history": [], "forecast": []}`)
	writeResultFile(t, dir, "b.json", `{"product_code": "P2", "model": "lightgbm", "history": [], "forecast": []}`)

	store := NewSkuResultStore(dir)
	assert.Equal(t, []string{"lightgbm", "prophet"}, store.Models())
}

func TestSkuResultStoreReloadsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeResultFile(t, dir, "result.json", `{"product_code": "P1", "model": "naive", "history": [], "forecast": []}`)

	store := NewSkuResultStore(dir)
	require.NotNil(t, store.Find("P1", "naive"))
	assert.Nil(t, store.Find("P2", "naive"))

	writeResultFile(t, dir, "result.json", `{"product_code": "P2", "model": "naive", "history": [], "forecast": []}`)
	// mtimeの粒度が粗い環境でも確実に変化を検知させる
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(2*time.Second)))

	assert.Nil(t, store.Find("P1", "naive"))
	require.NotNil(t, store.Find("P2", "naive"))
}

func TestSkuResultStoreSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeResultFile(t, dir, "broken.json", `{not json`)
	writeResultFile(t, dir, "missing_code.json", `{"model": "naive", "history": [], "forecast": []}`)
	writeResultFile(t, dir, "ok.json", `{"product_code": "P1", "model": "naive", "history": [], "forecast": []}`)

	store := NewSkuResultStore(dir)
	assert.Equal(t, []string{"naive"}, store.Models())
	assert.NotNil(t, store.Find("P1", "naive"))
}

func TestPCResultStoreFindIsCustomerCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeResultFile(t, dir, "pc.json", `[{
		"customer_code": "Cust-001",
		"product_code": "P1",
		"model": "lightgbm",
		"history": [
			{"date": "2024-01-01", "actual": 3},
			{"date": "2024-01-02", "actual": 5}
		],
		"forecast": [{"date": "2024-01-03", "forecast": 6}]
	}]`)

	store := NewPCResultStore(dir)
	rec := store.Find("CUST-001", "P1", "LightGBM")
	require.NotNil(t, rec)
	assert.Equal(t, "Cust-001", rec.CustomerCode)
	assert.Equal(t, 8.0, rec.TotalQty)
	assert.Nil(t, store.Find("other", "P1", "lightgbm"))
}

func TestPCResultStoreModelsSorted(t *testing.T) {
	dir := t.TempDir()
	writeResultFile(t, dir, "pc.json", `[
		{"customer_code": "C1", "product_code": "P1", "model": "prophet", "history": [], "forecast": []},
		{"customer_code": "C1", "product_code": "P2", "model": "lightgbm", "history": [], "forecast": []},
		{"customer_code": "C2", "product_code": "P1", "model": "prophet", "history": [], "forecast": []}
	]`)

	store := NewPCResultStore(dir)
	assert.Equal(t, []string{"lightgbm", "prophet"}, store.Models())
}
