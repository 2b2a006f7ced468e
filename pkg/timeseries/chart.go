package timeseries

// ChartConfig 描画側（本パッケージの外）が消費するスタイル設定。
// 統合ロジックへ埋め込まず、明示的な設定値として切り出している。
type ChartConfig struct {
	ColorPalette          []string `json:"color_palette"`           // 実績・予測の順
	ConfidenceBandOpacity float64  `json:"confidence_band_opacity"` // 0.0〜1.0
	ForecastDashPattern   []int    `json:"forecast_dash_pattern"`   // 予測線の破線パターン
	TransitionLineColor   string   `json:"transition_line_color"`
	PointRadius           float64  `json:"point_radius"`
}

// DefaultChartConfig 既定のチャートスタイルを返す
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		ColorPalette:          []string{"#4CAF50", "#FF9800"},
		ConfidenceBandOpacity: 0.2,
		ForecastDashPattern:   []int{6, 4},
		TransitionLineColor:   "rgba(158,158,158,0.85)",
		PointRadius:           2.5,
	}
}
