package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"sales-forecast-api/pkg/models"
)

// ForecastService アップロードされた売上CSVから需要予測を行うサービス
type ForecastService struct {
	defaultHorizon int
	maxHorizon     int
}

// NewForecastService ForecastServiceのインスタンスを作成
func NewForecastService() *ForecastService {
	return &ForecastService{
		defaultHorizon: 7,
		maxHorizon:     365,
	}
}

// salesRow CSVから読み取った売上1行
type salesRow struct {
	ProductID  string
	CustomerID string
	Date       string
	Quantity   float64
}

// groupKey 予測単位（製品、または製品×顧客）
type groupKey struct {
	ProductID  string
	CustomerID string
}

// ParseSalesCSV 売上CSVを読み取る。requireCustomerがtrueの場合はcustomer_id列も必須
func (s *ForecastService) ParseSalesCSV(r io.Reader, requireCustomer bool) ([]salesRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("CSVの読み取りに失敗しました: %w", err)
	}

	productIdx := findColumnIndex(header, "product_id")
	dateIdx := findColumnIndex(header, "date")
	qtyIdx := findColumnIndex(header, "quantity_sold")
	customerIdx := findColumnIndex(header, "customer_id")

	required := []string{}
	if productIdx < 0 {
		required = append(required, "product_id")
	}
	if dateIdx < 0 {
		required = append(required, "date")
	}
	if qtyIdx < 0 {
		required = append(required, "quantity_sold")
	}
	if requireCustomer && customerIdx < 0 {
		required = append(required, "customer_id")
	}
	if len(required) > 0 {
		return nil, fmt.Errorf("CSVに必須列がありません: %s", strings.Join(required, ", "))
	}

	var rows []salesRow
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if productIdx >= len(record) || dateIdx >= len(record) || qtyIdx >= len(record) {
			skipped++
			continue
		}

		date := normalizeDate(strings.TrimSpace(record[dateIdx]))
		if _, err := time.Parse("2006-01-02", date); err != nil {
			skipped++
			continue
		}

		qty, err := strconv.ParseFloat(strings.TrimSpace(record[qtyIdx]), 64)
		if err != nil {
			skipped++
			continue
		}

		row := salesRow{
			ProductID: strings.TrimSpace(record[productIdx]),
			Date:      date,
			Quantity:  qty,
		}
		if customerIdx >= 0 && customerIdx < len(record) {
			row.CustomerID = strings.TrimSpace(record[customerIdx])
		}
		if row.ProductID == "" {
			skipped++
			continue
		}
		if requireCustomer && row.CustomerID == "" {
			skipped++
			continue
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		log.Printf("[予測] CSVの不正な行をスキップしました: %d件", skipped)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSVに有効な売上データがありません")
	}
	return rows, nil
}

// resampleDaily グループごとに日次の売上系列に変換する（欠測日は0埋め）
func resampleDaily(rows []salesRow, byCustomer bool) map[groupKey][]models.HistoryPoint {
	sums := make(map[groupKey]map[string]float64)
	for _, row := range rows {
		key := groupKey{ProductID: row.ProductID}
		if byCustomer {
			key.CustomerID = row.CustomerID
		}
		if sums[key] == nil {
			sums[key] = make(map[string]float64)
		}
		sums[key][row.Date] += row.Quantity
	}

	series := make(map[groupKey][]models.HistoryPoint, len(sums))
	for key, byDate := range sums {
		dates := make([]string, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)

		first, _ := time.Parse("2006-01-02", dates[0])
		last, _ := time.Parse("2006-01-02", dates[len(dates)-1])

		var points []models.HistoryPoint
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			ds := d.Format("2006-01-02")
			points = append(points, models.HistoryPoint{Date: ds, Actual: byDate[ds]})
		}
		series[key] = points
	}
	return series
}

// forecastSeries 指定モデルでhorizon日分を予測する。未知のモデルはnaiveにフォールバック
func (s *ForecastService) forecastSeries(values []float64, horizon int, model string) []float64 {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "moving_average":
		return forecastMovingAverage(values, horizon, 7)
	case "linear_trend":
		return forecastLinearTrend(values, horizon)
	case "naive", "":
		return forecastNaive(values, horizon)
	default:
		log.Printf("[予測] 未対応のモデルです。naiveで代替します: %s", model)
		return forecastNaive(values, horizon)
	}
}

// forecastNaive 直近の実績値を繰り返す
func forecastNaive(values []float64, horizon int) []float64 {
	last := 0.0
	if len(values) > 0 {
		last = values[len(values)-1]
	}
	preds := make([]float64, horizon)
	for i := range preds {
		preds[i] = maxFloat(0, last)
	}
	return preds
}

// forecastMovingAverage 直近window日の移動平均を逐次適用する
func forecastMovingAverage(values []float64, horizon, window int) []float64 {
	if len(values) == 0 {
		return make([]float64, horizon)
	}

	buf := make([]float64, len(values))
	copy(buf, values)

	preds := make([]float64, 0, horizon)
	for i := 0; i < horizon; i++ {
		start := len(buf) - window
		if start < 0 {
			start = 0
		}
		next := maxFloat(0, calculateMean(buf[start:]))
		preds = append(preds, next)
		buf = append(buf, next)
	}
	return preds
}

// forecastLinearTrend 最小二乗法による線形トレンドを外挿する
func forecastLinearTrend(values []float64, horizon int) []float64 {
	n := len(values)
	if n < 2 {
		return forecastNaive(values, horizon)
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return forecastNaive(values, horizon)
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	preds := make([]float64, 0, horizon)
	for i := 0; i < horizon; i++ {
		x := float64(n + i)
		preds = append(preds, maxFloat(0, slope*x+intercept))
	}
	return preds
}

// clampHorizon 予測期間を有効範囲に丸める
func (s *ForecastService) clampHorizon(horizon int) int {
	if horizon <= 0 {
		return s.defaultHorizon
	}
	if horizon > s.maxHorizon {
		return s.maxHorizon
	}
	return horizon
}

// ForecastByProduct 製品ごとに日次予測を実行する
func (s *ForecastService) ForecastByProduct(r io.Reader, horizon int, model string) (*models.ForecastSubmitResponse, error) {
	rows, err := s.ParseSalesCSV(r, false)
	if err != nil {
		return nil, err
	}
	return s.runForecast(rows, horizon, model, false)
}

// ForecastByProductCustomer 製品×顧客ごとに日次予測を実行する
func (s *ForecastService) ForecastByProductCustomer(r io.Reader, horizon int, model string) (*models.ForecastSubmitResponse, error) {
	rows, err := s.ParseSalesCSV(r, true)
	if err != nil {
		return nil, err
	}
	return s.runForecast(rows, horizon, model, true)
}

func (s *ForecastService) runForecast(rows []salesRow, horizon int, model string, byCustomer bool) (*models.ForecastSubmitResponse, error) {
	horizon = s.clampHorizon(horizon)
	series := resampleDaily(rows, byCustomer)

	// グループ順を安定させる
	keys := make([]groupKey, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProductID != keys[j].ProductID {
			return keys[i].ProductID < keys[j].ProductID
		}
		return keys[i].CustomerID < keys[j].CustomerID
	})

	var items []models.ForecastRow
	for _, key := range keys {
		points := series[key]
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Actual
		}

		preds := s.forecastSeries(values, horizon, model)

		lastDate, _ := time.Parse("2006-01-02", points[len(points)-1].Date)
		for i, yhat := range preds {
			items = append(items, models.ForecastRow{
				ProductID:  key.ProductID,
				CustomerID: key.CustomerID,
				Date:       lastDate.AddDate(0, 0, i+1).Format("2006-01-02"),
				Forecast:   roundTo(yhat, 4),
			})
		}
	}

	log.Printf("[予測] 予測完了: groups=%d, items=%d, model=%s, horizon=%d", len(keys), len(items), model, horizon)

	return &models.ForecastSubmitResponse{
		Forecast: items,
		Meta: models.ForecastMeta{
			Model:   model,
			Horizon: horizon,
		},
	}, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// findColumnIndex ヘッダーから列のインデックスを探す（大文字小文字は無視）
func findColumnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
