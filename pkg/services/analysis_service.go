package services

import (
	"bytes"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"sales-forecast-api/pkg/models"
)

// ジョブ参照時のエラー。ハンドラー側でHTTPステータスに変換する
var (
	ErrJobNotFound    = errors.New("ジョブが見つかりません")
	ErrJobNotFinished = errors.New("分析がまだ完了していません")
	ErrColumnNotFound = errors.New("カラムが見つかりません")
)

// カテゴリ値一覧のページングの既定値と上限
const (
	defaultValuePageSize = 20
	maxValuePageSize     = 100
)

// AnalysisService アップロードされたデータセットの分析ジョブを管理するサービス
type AnalysisService struct {
	uniqueRatioThreshold float64
	highCardinalityLimit int
	identifierPatterns   []*regexp.Regexp

	mu   sync.RWMutex
	jobs map[string]*analysisJob
}

// analysisJob 1ジョブの状態と計算結果
type analysisJob struct {
	info      models.AnalysisJob
	dataset   *Dataset
	summaries []models.ColumnSummary
	filters   models.ColumnFilters
}

// NewAnalysisService AnalysisServiceのインスタンスを作成
func NewAnalysisService(uniqueRatioThreshold float64, highCardinalityLimit int) *AnalysisService {
	return &AnalysisService{
		uniqueRatioThreshold: uniqueRatioThreshold,
		highCardinalityLimit: highCardinalityLimit,
		identifierPatterns:   defaultIdentifierPatterns(),
		jobs:                 make(map[string]*analysisJob),
	}
}

// Upload ファイルを受け付けてジョブを登録し、バックグラウンドで分析を開始する。
// ジョブIDはファイル内容のMD5なので、同じファイルの再アップロードは同じIDになる
func (s *AnalysisService) Upload(filename string, r io.Reader) (*models.UploadResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ファイルの読み取りに失敗しました: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("空のファイルはアップロードできません")
	}

	sum := md5.Sum(data)
	jobID := hex.EncodeToString(sum[:])

	s.mu.Lock()
	if existing, ok := s.jobs[jobID]; ok {
		s.mu.Unlock()
		log.Printf("[分析] 既存ジョブを返します: job_id=%s, status=%s", jobID, existing.info.Status)
		return &models.UploadResponse{JobID: jobID, Filename: filename}, nil
	}
	now := time.Now()
	s.jobs[jobID] = &analysisJob{
		info: models.AnalysisJob{
			JobID:     jobID,
			Status:    models.JobStatusSubmitted,
			Filename:  filename,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.mu.Unlock()

	log.Printf("[分析] ジョブを登録しました: job_id=%s, filename=%s", jobID, filename)
	go s.run(jobID, filename, data)

	return &models.UploadResponse{JobID: jobID, Filename: filename}, nil
}

// run 分析本体。データセットの読み込みと全カラムのプロファイルを実行する
func (s *AnalysisService) run(jobID, filename string, data []byte) {
	s.setStatus(jobID, models.JobStatusProcessing, "")

	dataset, err := loadDataset(filename, data)
	if err != nil {
		log.Printf("[分析] ジョブが失敗しました: job_id=%s, error=%v", jobID, err)
		s.setStatus(jobID, models.JobStatusFailed, err.Error())
		return
	}

	summaries := make([]models.ColumnSummary, len(dataset.Columns))
	g := new(errgroup.Group)
	g.SetLimit(4)
	for i, name := range dataset.Columns {
		i, name := i, name
		g.Go(func() error {
			summaries[i] = summarizeColumn(name, dataset.ColumnValues(i))
			return nil
		})
	}
	g.Wait()

	filters := s.computeFilters(dataset)

	s.mu.Lock()
	if job, ok := s.jobs[jobID]; ok {
		job.dataset = dataset
		job.summaries = summaries
		job.filters = filters
		job.info.Status = models.JobStatusFinished
		job.info.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	log.Printf("[分析] ジョブが完了しました: job_id=%s, rows=%d, columns=%d, auto_excluded=%d",
		jobID, dataset.RowCount(), len(dataset.Columns), len(filters.AutoExcluded))
}

func (s *AnalysisService) setStatus(jobID, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.info.Status = status
		job.info.Error = errMsg
		job.info.UpdatedAt = time.Now()
	}
}

// computeFilters 識別子カラムの自動除外を判定して初期フィルタを作る
func (s *AnalysisService) computeFilters(dataset *Dataset) models.ColumnFilters {
	filters := models.ColumnFilters{
		IncludedColumns: []string{},
		AutoExcluded:    make(map[string]string),
		UserExcluded:    []string{},
	}
	for i, name := range dataset.Columns {
		if isID, reason := isIdentifier(name, dataset.ColumnValues(i), s.identifierPatterns, s.uniqueRatioThreshold); isID {
			filters.AutoExcluded[name] = reason
			continue
		}
		filters.IncludedColumns = append(filters.IncludedColumns, name)
	}
	return filters
}

// loadDataset CSVまたはXLSXを読み取る
func loadDataset(filename string, data []byte) (*Dataset, error) {
	var rows [][]string
	lower := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("Excelファイルの読み込みに失敗しました: %w", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("Excelシートの行取得に失敗しました: %w", err)
		}
	case strings.HasSuffix(lower, ".csv"):
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		var err error
		rows, err = reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("CSVファイルの解析に失敗しました: %w", err)
		}
	default:
		return nil, fmt.Errorf("サポートされていないファイル形式です。.xlsxまたは.csvをアップロードしてください")
	}

	if len(rows) < 2 {
		return nil, fmt.Errorf("ファイルにはヘッダー行と少なくとも1行のデータが必要です")
	}

	columns := make([]string, len(rows[0]))
	for i, c := range rows[0] {
		columns[i] = strings.TrimSpace(c)
	}
	return &Dataset{Columns: columns, Rows: rows[1:]}, nil
}

// Status ジョブの現在状態を返す。未知のジョブはnil
func (s *AnalysisService) Status(jobID string) *models.AnalysisJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	info := job.info
	return &info
}

// finishedJob 完了済みジョブを取得する
func (s *AnalysisService) finishedJob(jobID string) (*analysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.info.Status != models.JobStatusFinished {
		return nil, fmt.Errorf("%w: status=%s", ErrJobNotFinished, job.info.Status)
	}
	return job, nil
}

// Summary 除外されていないカラムのみの概要を返す
func (s *AnalysisService) Summary(jobID string) (*models.AnalysisSummary, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := make(map[string]struct{})
	for name := range job.filters.AutoExcluded {
		excluded[name] = struct{}{}
	}
	for _, name := range job.filters.UserExcluded {
		excluded[name] = struct{}{}
	}

	var columns []models.ColumnSummary
	totalMissing := 0
	for _, col := range job.summaries {
		if _, ok := excluded[col.Name]; ok {
			continue
		}
		columns = append(columns, col)
		totalMissing += col.MissingCount
	}

	return &models.AnalysisSummary{
		Summary: fmt.Sprintf("%d行 × %d列のデータセットです（分析対象: %d列、欠損値合計: %d件）",
			job.dataset.RowCount(), len(job.dataset.Columns), len(columns), totalMissing),
		RowCount: job.dataset.RowCount(),
		Columns:  columns,
	}, nil
}

// Detail 1カラムの詳細を返す。高カーディナリティのカラムは
// ヒストグラム等を計算せず、CSVエクスポートへの誘導のみ返す。
// カテゴリカラムの値一覧はpage/pageSizeでページングされる
func (s *AnalysisService) Detail(jobID, column string, page, pageSize int) (*models.ColumnDetail, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}

	idx := job.dataset.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
	}

	values := job.dataset.ColumnValues(idx)
	dtype := inferDtype(values)
	detail := &models.ColumnDetail{Name: column, Dtype: dtype}

	unique := make(map[string]struct{})
	for _, v := range values {
		if v != "" {
			unique[v] = struct{}{}
		}
	}
	if dtype != DtypeNumeric && len(unique) > s.highCardinalityLimit {
		detail.IsHighCardinality = true
		detail.Warning = fmt.Sprintf("カラム '%s' はユニーク値が多すぎるため直接表示できません。CSVをダウンロードして確認してください", column)
		return detail, nil
	}

	switch dtype {
	case DtypeNumeric:
		nums := numericValues(values)
		if len(nums) > 0 {
			sorted := make([]float64, len(nums))
			copy(sorted, nums)
			sort.Float64s(sorted)
			detail.Stats = map[string]float64{
				"count":  float64(len(nums)),
				"mean":   calculateMean(nums),
				"std":    calculateSampleStdDev(nums),
				"min":    sorted[0],
				"max":    sorted[len(sorted)-1],
				"median": calculateMedian(sorted),
			}
			detail.Histogram = buildHistogram(nums, 20)
		}
	default:
		if page < 1 {
			page = 1
		}
		if pageSize < 1 {
			pageSize = defaultValuePageSize
		}
		if pageSize > maxValuePageSize {
			pageSize = maxValuePageSize
		}

		ranked := rankedValueCounts(values)
		total := len(ranked)
		start := (page - 1) * pageSize
		if start > total {
			start = total
		}
		end := start + pageSize
		if end > total {
			end = total
		}

		counts := make(map[string]int, end-start)
		for _, e := range ranked[start:end] {
			counts[e.Value] = e.Count
		}
		detail.ValueCounts = counts
		detail.Pagination = &models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: (total + pageSize - 1) / pageSize,
		}
	}
	return detail, nil
}

// ExportColumnCSV カラム詳細のCSVを生成する。数量カラムがある場合は
// 値ごとの数量合計、ない場合は出現回数を出力する
func (s *AnalysisService) ExportColumnCSV(jobID, column string) (string, []byte, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return "", nil, err
	}

	idx := job.dataset.ColumnIndex(column)
	if idx < 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
	}

	qtyIdx := findQuantityColumn(job.dataset)
	values := job.dataset.ColumnValues(idx)

	type row struct {
		value  string
		amount float64
	}
	var rows []row
	header := []string{"Value", "Count"}

	if qtyIdx >= 0 && qtyIdx != idx {
		header = []string{"Value", "Quantity"}
		sums := make(map[string]float64)
		qtyValues := job.dataset.ColumnValues(qtyIdx)
		for i, v := range values {
			if v == "" {
				continue
			}
			if q, err := strconv.ParseFloat(qtyValues[i], 64); err == nil {
				sums[v] += q
			}
		}
		for v, q := range sums {
			rows = append(rows, row{v, q})
		}
	} else {
		for v, c := range valueCounts(values, 0) {
			rows = append(rows, row{v, float64(c)})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].amount != rows[j].amount {
			return rows[i].amount > rows[j].amount
		}
		return rows[i].value < rows[j].value
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(header)
	for _, r := range rows {
		w.Write([]string{r.value, strconv.FormatFloat(r.amount, 'f', -1, 64)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, fmt.Errorf("CSVの生成に失敗しました: %w", err)
	}

	filename := fmt.Sprintf("details_%s.csv", column)
	return filename, buf.Bytes(), nil
}

// findQuantityColumn 数量カラム（quantity / quantity_sold）を探す
func findQuantityColumn(dataset *Dataset) int {
	for i, name := range dataset.Columns {
		lower := strings.ToLower(name)
		if lower == "quantity" || lower == "quantity_sold" {
			if inferDtype(dataset.ColumnValues(i)) == DtypeNumeric {
				return i
			}
		}
	}
	return -1
}

// Filters 現在のフィルタ設定を返す
func (s *AnalysisService) Filters(jobID string) (*models.ColumnFilters, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	filters := copyFilters(job.filters)
	return &filters, nil
}

// UpdateFilters 採用カラムを更新する。自動除外されたカラムは採用できず、
// 採用されなかったカラムはユーザー除外に移る
func (s *AnalysisService) UpdateFilters(jobID string, included []string) (*models.ColumnFilters, error) {
	job, err := s.finishedJob(jobID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	includedSet := make(map[string]struct{})
	for _, name := range included {
		idx := job.dataset.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
		if _, ok := job.filters.AutoExcluded[name]; ok {
			return nil, fmt.Errorf("自動除外されたカラムは採用できません: %s", name)
		}
		includedSet[name] = struct{}{}
	}

	newFilters := models.ColumnFilters{
		IncludedColumns: []string{},
		AutoExcluded:    job.filters.AutoExcluded,
		UserExcluded:    []string{},
	}
	for _, name := range job.dataset.Columns {
		if _, ok := job.filters.AutoExcluded[name]; ok {
			continue
		}
		if _, ok := includedSet[name]; ok {
			newFilters.IncludedColumns = append(newFilters.IncludedColumns, name)
		} else {
			newFilters.UserExcluded = append(newFilters.UserExcluded, name)
		}
	}
	job.filters = newFilters

	log.Printf("[分析] フィルタ設定を更新しました: job_id=%s, included=%d, user_excluded=%d",
		jobID, len(newFilters.IncludedColumns), len(newFilters.UserExcluded))

	filters := copyFilters(job.filters)
	return &filters, nil
}

func copyFilters(f models.ColumnFilters) models.ColumnFilters {
	out := models.ColumnFilters{
		IncludedColumns: append([]string{}, f.IncludedColumns...),
		AutoExcluded:    make(map[string]string, len(f.AutoExcluded)),
		UserExcluded:    append([]string{}, f.UserExcluded...),
	}
	for k, v := range f.AutoExcluded {
		out.AutoExcluded[k] = v
	}
	return out
}
