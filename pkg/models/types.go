package models

import "time"

// HistoryPoint 実績系列の1観測点（日付はYYYY-MM-DD固定）
type HistoryPoint struct {
	Date   string  `json:"date"`
	Actual float64 `json:"actual"`
}

// ForecastPoint 予測系列の1点。Lower/Upperは80%信頼区間（無い場合はnil）
type ForecastPoint struct {
	Date      string   `json:"date"`
	Predicted float64  `json:"forecast"`
	Lower     *float64 `json:"lower_80,omitempty"`
	Upper     *float64 `json:"upper_80,omitempty"`
}

// ジョブの状態。submitted/processing が進行中、finished/failed が終端
const (
	JobStatusSubmitted  = "submitted"
	JobStatusProcessing = "processing"
	JobStatusFinished   = "finished"
	JobStatusFailed     = "failed"
)

// AnalysisJob 分析ジョブの現在状態
type AnalysisJob struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Filename  string    `json:"filename,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal は終端状態（finished/failed）かどうかを返す
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusFinished || j.Status == JobStatusFailed
}

// UploadResponse アップロード受付のレスポンス
type UploadResponse struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

// ColumnSummary 分析対象カラムの概要統計
type ColumnSummary struct {
	Name              string   `json:"name"`
	Dtype             string   `json:"dtype"`
	UniqueCount       int      `json:"unique_count"`
	MissingCount      int      `json:"missing_count"`
	MissingPercentage float64  `json:"missing_percentage"`
	Min               *float64 `json:"min,omitempty"`
	Max               *float64 `json:"max,omitempty"`
	Mean              *float64 `json:"mean,omitempty"`
	Median            *float64 `json:"median,omitempty"`
}

// AnalysisSummary データセット全体の概要
type AnalysisSummary struct {
	Summary  string          `json:"summary"`
	RowCount int             `json:"row_count"`
	Columns  []ColumnSummary `json:"columns"`
}

// Histogram 数値カラムの度数分布（BinEdgesはCounts+1要素）
type Histogram struct {
	Counts   []int     `json:"counts"`
	BinEdges []float64 `json:"bin_edges"`
}

// Pagination カテゴリ値一覧のページング情報
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ColumnDetail 1カラムの詳細。高カーディナリティ時はヒストグラム等を持たず
// CSVエクスポートへの誘導のみ返す。カテゴリカラムの値一覧はページングされる
type ColumnDetail struct {
	Name              string             `json:"name"`
	Dtype             string             `json:"dtype"`
	Stats             map[string]float64 `json:"stats,omitempty"`
	Histogram         *Histogram         `json:"histogram,omitempty"`
	ValueCounts       map[string]int     `json:"value_counts,omitempty"`
	Pagination        *Pagination        `json:"pagination,omitempty"`
	IsHighCardinality bool               `json:"is_high_cardinality"`
	Warning           string             `json:"warning,omitempty"`
}

// DataQuality データ品質レポート
type DataQuality struct {
	Completeness  float64 `json:"completeness"`
	DuplicateRows int     `json:"n_duplicates"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
}

// TrendData 日次集計のトレンド系列
type TrendData struct {
	Index   []string    `json:"index"`
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

// TimeSeriesInsight 日付カラム×数量カラムの自動トレンド分析
type TimeSeriesInsight struct {
	DatetimeColumn string    `json:"datetime_column"`
	ValueColumn    string    `json:"value_column"`
	Frequency      string    `json:"frequency"`
	TrendData      TrendData `json:"trend_data"`
}

// AnalysisInsights データセットから自動抽出した示唆
type AnalysisInsights struct {
	TimeSeriesAnalysis   *TimeSeriesInsight        `json:"time_series_analysis"`
	TopCategoricalCounts map[string]map[string]int `json:"top_categorical_counts"`
}

// CorrelationMatrix 数値カラム間のピアソン相関行列。
// Matrixの行・列順はColumnsと一致する
type CorrelationMatrix struct {
	Columns []string    `json:"columns"`
	Matrix  [][]float64 `json:"matrix"`
}

// ColumnFilters カラムの採用・除外状態。1カラムは included / auto_excluded /
// user_excluded のいずれか高々1つにのみ現れる
type ColumnFilters struct {
	IncludedColumns []string          `json:"included_columns"`
	AutoExcluded    map[string]string `json:"auto_excluded"`
	UserExcluded    []string          `json:"user_excluded"`
}

// FilterConfigResponse GET/POST /analysis/config のレスポンス
type FilterConfigResponse struct {
	Filters ColumnFilters `json:"filters"`
}

// FilterConfigUpdate POST /analysis/config のリクエスト
type FilterConfigUpdate struct {
	IncludedColumns []string `json:"included_columns"`
}

// ForecastRow アップロード予測APIの1行
type ForecastRow struct {
	ProductID  string  `json:"product_id"`
	CustomerID string  `json:"customer_id,omitempty"`
	Date       string  `json:"date"`
	Forecast   float64 `json:"forecast"`
}

// ForecastMeta 予測実行のメタ情報
type ForecastMeta struct {
	Model   string `json:"model"`
	Horizon int    `json:"horizon"`
}

// ForecastSubmitResponse POST /forecast/product(_customer) のレスポンス
type ForecastSubmitResponse struct {
	Forecast []ForecastRow `json:"forecast"`
	Meta     ForecastMeta  `json:"meta"`
}

// ForecastMetrics 学習時の精度指標
type ForecastMetrics struct {
	MAE  *float64 `json:"MAE"`
	RMSE *float64 `json:"RMSE"`
	MAPE *float64 `json:"MAPE"`
}

// PCForecastRecord 製品×顧客の予測結果レコード
type PCForecastRecord struct {
	CustomerCode string          `json:"customer_code"`
	ProductCode  string          `json:"product_code"`
	Model        string          `json:"model"`
	Metrics      ForecastMetrics `json:"metrics"`
	TrainEndDate string          `json:"train_end_date,omitempty"`
	History      []HistoryPoint  `json:"history"`
	Forecast     []ForecastPoint `json:"forecast"`
	TotalQty     float64         `json:"total_qty"`
}

// PCForecastResponse GET /pc-forecast のレスポンス。該当なしは Count=0, Data=nil
type PCForecastResponse struct {
	Count int               `json:"count"`
	Data  *PCForecastRecord `json:"data"`
}

// SkuChartData SKU予測のチャート用データ一式
type SkuChartData struct {
	History            []HistoryPoint     `json:"history"`
	Forecast           []ForecastPoint    `json:"forecast"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	TrainEndDate       string             `json:"train_end_date,omitempty"`
}

// ConfidenceInterval 日付→境界値のマップ（80%区間）
type ConfidenceInterval struct {
	Lower map[string]float64 `json:"lower"`
	Upper map[string]float64 `json:"upper"`
}

// SkuForecastRecord SKU単位の予測結果レコード
type SkuForecastRecord struct {
	ProductCode  string          `json:"product_code"`
	Model        string          `json:"model"`
	Metrics      ForecastMetrics `json:"metrics"`
	TrainEndDate string          `json:"train_end_date,omitempty"`
	History      []HistoryPoint  `json:"history"`
	Forecast     []ForecastPoint `json:"forecast"`
}

// SkuForecastResponse GET /forecast/sku のレスポンス
type SkuForecastResponse struct {
	ProductCode      string          `json:"product_code"`
	Model            string          `json:"model"`
	Metrics          ForecastMetrics `json:"metrics"`
	ForecastQuantity float64         `json:"forecast_quantity"`
	ChartData        SkuChartData    `json:"chart_data"`
}

// ModelListResponse 利用可能モデル一覧
type ModelListResponse struct {
	Models []string `json:"models"`
}

// チャートオーバーライドの種別
const (
	ChartPointHistory  = "history"
	ChartPointForecast = "forecast"
)

// ChartDataItem 安全在庫計算が返す再構成系列の1点
type ChartDataItem struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
	Kind  string   `json:"type"` // history または forecast
}

// PCSafetyStockRequest POST /pc-forecast/safety-stock のリクエスト
type PCSafetyStockRequest struct {
	CustomerID   string  `json:"customerId" binding:"required"`
	ProductID    string  `json:"productId" binding:"required"`
	Model        string  `json:"model" binding:"required"`
	ServiceLevel float64 `json:"serviceLevel"`
	LeadTime     float64 `json:"leadTime"`
	LeadTimeStd  float64 `json:"leadTimeStd"`
}

// SafetyStockResponse 安全在庫計算のレスポンス
type SafetyStockResponse struct {
	SafetyStock float64         `json:"safetyStock"`
	DemandMean  float64         `json:"demandMean"`
	DemandStd   float64         `json:"demandStd"`
	ChartData   []ChartDataItem `json:"chartData"`
}

// SkuSafetyStockRequest POST /forecast/safety-stock のリクエスト
type SkuSafetyStockRequest struct {
	ProductCode  string  `json:"product_code" binding:"required"`
	Model        string  `json:"model" binding:"required"`
	ServiceLevel float64 `json:"service_level"`
	LeadTime     float64 `json:"lead_time"`
	LeadTimeStd  float64 `json:"lead_time_std"`
}

// SkuSafetyStockResponse SKU版安全在庫のレスポンス
type SkuSafetyStockResponse struct {
	SafetyStock float64         `json:"safety_stock"`
	DemandMean  float64         `json:"demand_mean"`
	DemandStd   float64         `json:"demand_std"`
	ChartData   []ChartDataItem `json:"chart_data,omitempty"`
}
