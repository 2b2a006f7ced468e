package services

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"sales-forecast-api/pkg/models"
)

// Quality はデータ品質レポートを返す: 充足率、重複行数、概算メモリ使用量
func (s *AnalysisService) Quality(jobID string) (*models.DataQuality, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}
	quality := computeQuality(job.dataset)
	return &quality, nil
}

// Insights はデータセットから自動抽出した示唆を返す:
// 日付×数量カラムの日次トレンドと、カテゴリカラムの上位出現値
func (s *AnalysisService) Insights(jobID string) (*models.AnalysisInsights, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}
	insights := computeInsights(job.dataset)
	return &insights, nil
}

// Correlation は数値カラム間のピアソン相関行列を返す。
// 数値カラムが2本未満の場合はnil（行列なし）
func (s *AnalysisService) Correlation(jobID string) (*models.CorrelationMatrix, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}
	return computeCorrelation(job.dataset), nil
}

func computeQuality(dataset *Dataset) models.DataQuality {
	totalCells := dataset.RowCount() * len(dataset.Columns)
	quality := models.DataQuality{Completeness: 1.0}
	if totalCells == 0 {
		return quality
	}

	missing := 0
	var totalBytes int
	seen := make(map[string]struct{}, dataset.RowCount())
	duplicates := 0
	for _, row := range dataset.Rows {
		for i := range dataset.Columns {
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v == "" {
				missing++
			}
			totalBytes += len(v)
		}
		key := strings.Join(row, "\x00")
		if _, ok := seen[key]; ok {
			duplicates++
		} else {
			seen[key] = struct{}{}
		}
	}

	quality.Completeness = 1 - float64(missing)/float64(totalCells)
	quality.DuplicateRows = duplicates
	quality.MemoryUsageMB = roundTo(float64(totalBytes)/(1024*1024), 4)
	return quality
}

func computeInsights(dataset *Dataset) models.AnalysisInsights {
	insights := models.AnalysisInsights{
		TopCategoricalCounts: make(map[string]map[string]int),
	}

	insights.TimeSeriesAnalysis = computeTrendInsight(dataset)

	// カテゴリカラムの上位出現値。全て同一・ほぼ全てユニークな
	// カラムは示唆にならないため除く
	rowCount := dataset.RowCount()
	for i, name := range dataset.Columns {
		values := dataset.ColumnValues(i)
		if inferDtype(values) != DtypeCategorical {
			continue
		}
		unique := make(map[string]struct{})
		for _, v := range values {
			if v != "" {
				unique[v] = struct{}{}
			}
		}
		if len(unique) <= 1 || float64(len(unique)) >= float64(rowCount)*0.5 {
			continue
		}
		insights.TopCategoricalCounts[name] = valueCounts(values, 10)
	}
	return insights
}

// computeTrendInsight は日付カラムと数量カラムの組を探し、
// 日次合計のトレンド系列を作る（売上のない日は除く）
func computeTrendInsight(dataset *Dataset) *models.TimeSeriesInsight {
	dtIdx := findDatetimeColumn(dataset)
	qtyIdx := findQuantityColumn(dataset)
	if dtIdx < 0 || qtyIdx < 0 || dtIdx == qtyIdx {
		return nil
	}

	dates := dataset.ColumnValues(dtIdx)
	quantities := dataset.ColumnValues(qtyIdx)

	sums := make(map[string]float64)
	for i, raw := range dates {
		t, ok := parseDateValue(raw)
		if !ok {
			continue
		}
		q, err := strconv.ParseFloat(quantities[i], 64)
		if err != nil {
			continue
		}
		sums[t.Format("2006-01-02")] += q
	}

	index := make([]string, 0, len(sums))
	for d, total := range sums {
		if total > 0 {
			index = append(index, d)
		}
	}
	if len(index) == 0 {
		return nil
	}
	sort.Strings(index)

	data := make([][]float64, 0, len(index))
	for _, d := range index {
		data = append(data, []float64{sums[d]})
	}

	return &models.TimeSeriesInsight{
		DatetimeColumn: dataset.Columns[dtIdx],
		ValueColumn:    dataset.Columns[qtyIdx],
		Frequency:      "Daily",
		TrendData: models.TrendData{
			Index:   index,
			Columns: []string{dataset.Columns[qtyIdx]},
			Data:    data,
		},
	}
}

// findDatetimeColumn は日付カラムを探す。日付型のカラムを優先し、
// 無ければ名前にdate/timeを含み値が日付として読めるカラムを使う
func findDatetimeColumn(dataset *Dataset) int {
	for i := range dataset.Columns {
		if inferDtype(dataset.ColumnValues(i)) == DtypeDatetime {
			return i
		}
	}
	for i, name := range dataset.Columns {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "date") && !strings.Contains(lower, "time") {
			continue
		}
		for _, v := range dataset.ColumnValues(i) {
			if _, ok := parseDateValue(v); ok {
				return i
			}
		}
	}
	return -1
}

func computeCorrelation(dataset *Dataset) *models.CorrelationMatrix {
	var columns []string
	var series [][]*float64
	for i, name := range dataset.Columns {
		values := dataset.ColumnValues(i)
		if inferDtype(values) != DtypeNumeric {
			continue
		}
		parsed := make([]*float64, len(values))
		for j, v := range values {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				parsed[j] = &f
			}
		}
		columns = append(columns, name)
		series = append(series, parsed)
	}
	if len(columns) < 2 {
		return nil
	}

	matrix := make([][]float64, len(columns))
	for i := range columns {
		matrix[i] = make([]float64, len(columns))
		matrix[i][i] = 1
		for j := 0; j < i; j++ {
			r := pearsonCorrelation(series[i], series[j])
			matrix[i][j] = r
			matrix[j][i] = r
		}
	}
	return &models.CorrelationMatrix{Columns: columns, Matrix: matrix}
}

// pearsonCorrelation は両方の値が存在する行のみでピアソン相関係数を計算する。
// 分散が0の場合は0を返す
func pearsonCorrelation(x, y []*float64) float64 {
	var n, sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range x {
		if x[i] == nil || y[i] == nil {
			continue
		}
		a, b := *x[i], *y[i]
		n++
		sumX += a
		sumY += b
		sumXY += a * b
		sumX2 += a * a
		sumY2 += b * b
	}
	if n == 0 {
		return 0
	}

	numerator := n*sumXY - sumX*sumY
	denominator := (n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY)
	if denominator <= 0 {
		return 0
	}
	return roundTo(numerator/math.Sqrt(denominator), 2)
}
