package services

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"sales-forecast-api/pkg/models"
)

// rawForecastPoint 予測結果ファイルの1点。モデル出力の世代によって
// キー名が揺れるため両方を受け付けて正規化する
type rawForecastPoint struct {
	Date        string   `json:"date"`
	Ds          string   `json:"ds"`
	Forecast    *float64 `json:"forecast"`
	Yhat        *float64 `json:"yhat"`
	Lower80     *float64 `json:"lower_80"`
	YhatLower80 *float64 `json:"yhat_lower_80"`
	Upper80     *float64 `json:"upper_80"`
	YhatUpper80 *float64 `json:"yhat_upper_80"`
}

type rawHistoryPoint struct {
	Date   string   `json:"date"`
	Ds     string   `json:"ds"`
	Actual *float64 `json:"actual"`
	Y      *float64 `json:"y"`
}

type rawResultRecord struct {
	CustomerCode string                 `json:"customer_code"`
	ProductCode  json.RawMessage        `json:"product_code"` // 数値で入っているファイルがある
	Model        string                 `json:"model"`
	Metrics      models.ForecastMetrics `json:"metrics"`
	TrainEndDate string                 `json:"train_end_date"`
	History      []rawHistoryPoint      `json:"history"`
	Forecast     []rawForecastPoint     `json:"forecast"`
}

func (r *rawResultRecord) productCode() string {
	if len(r.ProductCode) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ProductCode, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r.ProductCode, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(r.ProductCode), `"`)
}

// normalizeDate はISO日付を10文字（YYYY-MM-DD）へ切り詰める
func normalizeDate(ds string) string {
	if len(ds) > 10 {
		return ds[:10]
	}
	return ds
}

func (p *rawHistoryPoint) normalize() (models.HistoryPoint, bool) {
	date := p.Date
	if date == "" {
		date = p.Ds
	}
	date = normalizeDate(date)
	actual := p.Actual
	if actual == nil {
		actual = p.Y
	}
	if date == "" || actual == nil {
		return models.HistoryPoint{}, false
	}
	return models.HistoryPoint{Date: date, Actual: *actual}, true
}

func (p *rawForecastPoint) normalize() (models.ForecastPoint, bool) {
	date := p.Date
	if date == "" {
		date = p.Ds
	}
	date = normalizeDate(date)
	predicted := p.Forecast
	if predicted == nil {
		predicted = p.Yhat
	}
	if date == "" || predicted == nil {
		return models.ForecastPoint{}, false
	}
	lower := p.Lower80
	if lower == nil {
		lower = p.YhatLower80
	}
	upper := p.Upper80
	if upper == nil {
		upper = p.YhatUpper80
	}
	return models.ForecastPoint{Date: date, Predicted: *predicted, Lower: lower, Upper: upper}, true
}

// normalizeRecord は生レコードを正規化する。学習期間内に残った予測点は
// 捨て、履歴・予測とも日付昇順へ揃える
func normalizeRecord(raw rawResultRecord) (history []models.HistoryPoint, forecast []models.ForecastPoint, trainEnd string) {
	trainEnd = normalizeDate(raw.TrainEndDate)

	for _, h := range raw.History {
		if p, ok := h.normalize(); ok {
			history = append(history, p)
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })

	for _, f := range raw.Forecast {
		p, ok := f.normalize()
		if !ok {
			continue
		}
		if trainEnd != "" && p.Date <= trainEnd {
			continue
		}
		forecast = append(forecast, p)
	}
	sort.Slice(forecast, func(i, j int) bool { return forecast[i].Date < forecast[j].Date })
	return history, forecast, trainEnd
}

// modelKey はモデル名をマッチング用に正規化する
func modelKey(model string) string {
	key := strings.ToLower(strings.TrimSpace(model))
	// データ側の既知のタイポを吸収
	if key == "lighgbm" {
		key = "lightgbm"
	}
	return key
}

// dirMtime はディレクトリ内JSONの最新更新時刻を返す（キャッシュ無効化用）
func dirMtime(dir string) time.Time {
	var latest time.Time
	entries, err := os.ReadDir(dir)
	if err != nil {
		return latest
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if info, err := e.Info(); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest
}

// decodeResultFile は単一レコードとレコード配列の両形式を受け付ける
func decodeResultFile(path string) []rawResultRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[結果ストア] %s の読み込みに失敗しました: %v", path, err)
		return nil
	}
	var many []rawResultRecord
	if err := json.Unmarshal(data, &many); err == nil {
		return many
	}
	var one rawResultRecord
	if err := json.Unmarshal(data, &one); err == nil {
		return []rawResultRecord{one}
	}
	log.Printf("[結果ストア] %s を解析できませんでした", path)
	return nil
}

func listResultFiles(dir string) []string {
	paths, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	sort.Strings(paths)
	return paths
}

// SkuResultStore SKU単位の予測結果ファイルをmtimeキャッシュ付きで提供する
type SkuResultStore struct {
	dir string

	mu        sync.Mutex
	loadedAt  time.Time
	records   []*models.SkuForecastRecord
	lookup    map[string]map[string]*models.SkuForecastRecord // product -> modelKey -> record
	modelList []string
}

// NewSkuResultStore 新しいSKU結果ストアを作成
func NewSkuResultStore(dir string) *SkuResultStore {
	return &SkuResultStore{dir: dir}
}

func (s *SkuResultStore) ensureLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	mtime := dirMtime(s.dir)
	if s.lookup != nil && mtime.Equal(s.loadedAt) {
		return
	}

	start := time.Now()
	records := []*models.SkuForecastRecord{}
	lookup := make(map[string]map[string]*models.SkuForecastRecord)
	modelSet := make(map[string]struct{})

	for _, path := range listResultFiles(s.dir) {
		for _, raw := range decodeResultFile(path) {
			productCode := strings.TrimSpace(raw.productCode())
			if productCode == "" || raw.Model == "" {
				continue
			}
			history, forecast, trainEnd := normalizeRecord(raw)
			rec := &models.SkuForecastRecord{
				ProductCode:  productCode,
				Model:        strings.TrimSpace(raw.Model),
				Metrics:      raw.Metrics,
				TrainEndDate: trainEnd,
				History:      history,
				Forecast:     forecast,
			}
			records = append(records, rec)
			key := modelKey(raw.Model)
			if lookup[productCode] == nil {
				lookup[productCode] = make(map[string]*models.SkuForecastRecord)
			}
			lookup[productCode][key] = rec
			modelSet[rec.Model] = struct{}{}
		}
	}

	modelList := make([]string, 0, len(modelSet))
	for m := range modelSet {
		modelList = append(modelList, m)
	}
	sort.Strings(modelList)

	s.loadedAt = mtime
	s.records = records
	s.lookup = lookup
	s.modelList = modelList
	log.Printf("[結果ストア] SKU結果を読み込みました: records=%d models=%d (%v)", len(records), len(modelList), time.Since(start))
}

// Find は製品コードとモデル名でレコードを検索する（無ければnil）
func (s *SkuResultStore) Find(productCode, model string) *models.SkuForecastRecord {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()
	byModel, ok := s.lookup[strings.TrimSpace(productCode)]
	if !ok {
		return nil
	}
	return byModel[modelKey(model)]
}

// Models は利用可能なモデル名一覧を返す
func (s *SkuResultStore) Models() []string {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.modelList))
	copy(out, s.modelList)
	return out
}

// PCResultStore 製品×顧客の予測結果ファイルを提供する
type PCResultStore struct {
	dir string

	mu        sync.Mutex
	loadedAt  time.Time
	records   []*models.PCForecastRecord
	lookup    map[string]*models.PCForecastRecord // customer|product|modelKey
	modelList []string
}

// NewPCResultStore 新しいPC結果ストアを作成
func NewPCResultStore(dir string) *PCResultStore {
	return &PCResultStore{dir: dir}
}

func pcLookupKey(customerCode, productCode, model string) string {
	return strings.TrimSpace(strings.ToUpper(customerCode)) + "|" +
		strings.TrimSpace(productCode) + "|" + modelKey(model)
}

func (s *PCResultStore) ensureLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	mtime := dirMtime(s.dir)
	if s.lookup != nil && mtime.Equal(s.loadedAt) {
		return
	}

	start := time.Now()
	records := []*models.PCForecastRecord{}
	lookup := make(map[string]*models.PCForecastRecord)
	modelSet := make(map[string]struct{})

	for _, path := range listResultFiles(s.dir) {
		for _, raw := range decodeResultFile(path) {
			customerCode := strings.TrimSpace(raw.CustomerCode)
			productCode := strings.TrimSpace(raw.productCode())
			if customerCode == "" || productCode == "" || raw.Model == "" {
				continue
			}
			history, forecast, trainEnd := normalizeRecord(raw)
			var totalQty float64
			for _, h := range history {
				totalQty += h.Actual
			}
			rec := &models.PCForecastRecord{
				CustomerCode: customerCode,
				ProductCode:  productCode,
				Model:        strings.TrimSpace(raw.Model),
				Metrics:      raw.Metrics,
				TrainEndDate: trainEnd,
				History:      history,
				Forecast:     forecast,
				TotalQty:     totalQty,
			}
			records = append(records, rec)
			lookup[pcLookupKey(customerCode, productCode, raw.Model)] = rec
			modelSet[rec.Model] = struct{}{}
		}
	}

	modelList := make([]string, 0, len(modelSet))
	for m := range modelSet {
		modelList = append(modelList, m)
	}
	sort.Strings(modelList)

	s.loadedAt = mtime
	s.records = records
	s.lookup = lookup
	s.modelList = modelList
	log.Printf("[結果ストア] PC結果を読み込みました: records=%d models=%d (%v)", len(records), len(modelList), time.Since(start))
}

// Find は顧客コード・製品コード・モデル名でレコードを検索する（無ければnil）
func (s *PCResultStore) Find(customerCode, productCode, model string) *models.PCForecastRecord {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup[pcLookupKey(customerCode, productCode, model)]
}

// Models は利用可能なモデル名一覧を返す
func (s *PCResultStore) Models() []string {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.modelList))
	copy(out, s.modelList)
	return out
}
