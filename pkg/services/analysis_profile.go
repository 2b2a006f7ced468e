package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"sales-forecast-api/pkg/models"
)

// dtypeの種別
const (
	DtypeNumeric     = "numeric"
	DtypeDatetime    = "datetime"
	DtypeCategorical = "categorical"
)

// Dataset アップロードから読み取った表データ
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// RowCount データ行数を返す
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}

// ColumnIndex 列名のインデックスを返す（見つからない場合は-1）
func (d *Dataset) ColumnIndex(name string) int {
	return findColumnIndex(d.Columns, name)
}

// ColumnValues 指定列の全値を返す。行が短い場合は空文字で補う
func (d *Dataset) ColumnValues(idx int) []string {
	values := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if idx < len(row) {
			values = append(values, strings.TrimSpace(row[idx]))
		} else {
			values = append(values, "")
		}
	}
	return values
}

// parseDateValue 日付文字列を解釈する
func parseDateValue(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006/01/02", "2006/1/2", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// inferDtype 非欠損値からdtypeを推定する
func inferDtype(values []string) string {
	numeric := true
	datetime := true
	seen := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		seen++
		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		if datetime {
			if _, ok := parseDateValue(v); !ok {
				datetime = false
			}
		}
		if !numeric && !datetime {
			break
		}
	}
	if seen == 0 {
		return DtypeCategorical
	}
	if numeric {
		return DtypeNumeric
	}
	if datetime {
		return DtypeDatetime
	}
	return DtypeCategorical
}

// numericValues 非欠損値をfloat64に変換して返す
func numericValues(values []string) []float64 {
	var out []float64
	for _, v := range values {
		if v == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// summarizeColumn 1カラムの概要統計を計算する
func summarizeColumn(name string, values []string) models.ColumnSummary {
	missing := 0
	unique := make(map[string]struct{})
	for _, v := range values {
		if v == "" {
			missing++
			continue
		}
		unique[v] = struct{}{}
	}

	summary := models.ColumnSummary{
		Name:         name,
		Dtype:        inferDtype(values),
		UniqueCount:  len(unique),
		MissingCount: missing,
	}
	if len(values) > 0 {
		summary.MissingPercentage = roundTo(float64(missing)/float64(len(values))*100, 2)
	}

	if summary.Dtype == DtypeNumeric {
		nums := numericValues(values)
		if len(nums) > 0 {
			sorted := make([]float64, len(nums))
			copy(sorted, nums)
			sort.Float64s(sorted)

			min := sorted[0]
			max := sorted[len(sorted)-1]
			mean := calculateMean(nums)
			median := calculateMedian(sorted)
			summary.Min = &min
			summary.Max = &max
			summary.Mean = &mean
			summary.Median = &median
		}
	}
	return summary
}

// calculateMedian ソート済みスライスの中央値を返す
func calculateMedian(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// buildHistogram 等幅binのヒストグラムを作る。BinEdgesはCounts+1要素
func buildHistogram(values []float64, bins int) *models.Histogram {
	if len(values) == 0 || bins <= 0 {
		return nil
	}

	min := values[0]
	max := values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		// 全て同じ値の場合は幅1のレンジに収める
		min -= 0.5
		max += 0.5
	}

	width := (max - min) / float64(bins)
	counts := make([]int, bins)
	edges := make([]float64, bins+1)
	for i := 0; i <= bins; i++ {
		edges[i] = min + width*float64(i)
	}
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return &models.Histogram{Counts: counts, BinEdges: edges}
}

// valueCount 1つの値とその出現回数
type valueCount struct {
	Value string
	Count int
}

// rankedValueCounts 値ごとの出現回数を頻度降順（同数は値の昇順）で返す。
// ページングの前提になる決定的な並び
func rankedValueCounts(values []string) []valueCount {
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
	}
	ranked := make([]valueCount, 0, len(counts))
	for v, c := range counts {
		ranked = append(ranked, valueCount{Value: v, Count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Value < ranked[j].Value
	})
	return ranked
}

// valueCounts 値ごとの出現回数を数え、頻度降順の上位limit件を返す
func valueCounts(values []string, limit int) map[string]int {
	ranked := rankedValueCounts(values)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	counts := make(map[string]int, len(ranked))
	for _, e := range ranked {
		counts[e.Value] = e.Count
	}
	return counts
}

// defaultIdentifierPatterns 識別子らしい列名のパターン（大文字小文字は無視）
func defaultIdentifierPatterns() []*regexp.Regexp {
	patterns := []string{"^id$", ".*_id$", "code", "sku", "orderkey"}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile("(?i)"+p))
	}
	return compiled
}

// isIdentifier 識別子カラムかどうかを判定する。
// テキスト列で、非欠損値のユニーク率がしきい値以上、かつ列名がパターンに
// 一致する場合のみ識別子とみなす
func isIdentifier(name string, values []string, patterns []*regexp.Regexp, threshold float64) (bool, string) {
	if inferDtype(values) == DtypeNumeric {
		return false, ""
	}

	unique := make(map[string]struct{})
	valid := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		valid++
		unique[v] = struct{}{}
	}
	if valid == 0 {
		return false, ""
	}
	if float64(len(unique))/float64(valid) < threshold {
		return false, ""
	}

	lower := strings.ToLower(name)
	for _, p := range patterns {
		if p.MatchString(lower) {
			return true, "列名が識別子パターンに一致し、ユニーク率が高いため自動除外しました"
		}
	}
	return false, ""
}
