// Package client は予測・分析APIを呼び出すクライアント側の実装。
// ジョブ監視、依存フェッチの逐次実行、安全在庫リクエストの構築など、
// 画面側が必要とするオーケストレーションを提供する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sales-forecast-api/pkg/models"
)

// Client 予測・分析APIのHTTPクライアント
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option クライアントの構成オプション
type Option func(*Client)

// WithHTTPClient は下層のhttp.Clientを差し替える（テスト用途を含む）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey はX-API-KEYヘッダーを付与する
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// NewClient はAPIクライアントを作成する。baseURLは /api/v1 を含むルート
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doJSON はリクエストを発行してレスポンスJSONをoutへデコードする。
// 失敗はすべてTransportErrorに分類する（ジョブ監視側で終端failedへ変換される）
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Op:  method + " " + path,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &TransportError{Op: "POST " + path, Err: err}
	}
	return c.doJSON(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json", out)
}

// uploadFile はmultipart/form-dataでファイルを送信する
func (c *Client) uploadFile(ctx context.Context, path, filename string, r io.Reader, fields map[string]string, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return &TransportError{Op: "POST " + path, Err: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return &TransportError{Op: "POST " + path, Err: err}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return &TransportError{Op: "POST " + path, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return &TransportError{Op: "POST " + path, Err: err}
	}
	return c.doJSON(ctx, http.MethodPost, path, &buf, w.FormDataContentType(), out)
}

// UploadAnalysisFile は分析対象ファイルをアップロードしジョブIDを受け取る
func (c *Client) UploadAnalysisFile(ctx context.Context, filename string, r io.Reader) (models.UploadResponse, error) {
	var out models.UploadResponse
	err := c.uploadFile(ctx, "/analysis/upload", filename, r, nil, &out)
	return out, err
}

// JobStatus は分析ジョブの現在状態を取得する
func (c *Client) JobStatus(ctx context.Context, jobID string) (models.AnalysisJob, error) {
	var out models.AnalysisJob
	err := c.doJSON(ctx, http.MethodGet, "/analysis/status/"+url.PathEscape(jobID), nil, "", &out)
	return out, err
}

// AnalysisSummary はデータセット概要を取得する
func (c *Client) AnalysisSummary(ctx context.Context, jobID string) (models.AnalysisSummary, error) {
	var out models.AnalysisSummary
	err := c.doJSON(ctx, http.MethodGet, "/analysis/summary?job_id="+url.QueryEscape(jobID), nil, "", &out)
	return out, err
}

// Quality はデータ品質レポートを取得する
func (c *Client) Quality(ctx context.Context, jobID string) (models.DataQuality, error) {
	var out models.DataQuality
	err := c.doJSON(ctx, http.MethodGet, "/analysis/quality?job_id="+url.QueryEscape(jobID), nil, "", &out)
	return out, err
}

// Insights はデータセットの自動示唆を取得する
func (c *Client) Insights(ctx context.Context, jobID string) (models.AnalysisInsights, error) {
	var out models.AnalysisInsights
	err := c.doJSON(ctx, http.MethodGet, "/analysis/insights?job_id="+url.QueryEscape(jobID), nil, "", &out)
	return out, err
}

// Correlation は数値カラム間の相関行列を取得する。
// 数値カラムが2本未満の場合はnil
func (c *Client) Correlation(ctx context.Context, jobID string) (*models.CorrelationMatrix, error) {
	var out *models.CorrelationMatrix
	err := c.doJSON(ctx, http.MethodGet, "/analysis/correlation?job_id="+url.QueryEscape(jobID), nil, "", &out)
	return out, err
}

// ColumnDetail は1カラムの詳細の先頭ページを取得する
func (c *Client) ColumnDetail(ctx context.Context, jobID, column string) (models.ColumnDetail, error) {
	return c.ColumnDetailPage(ctx, jobID, column, 1, 20)
}

// ColumnDetailPage はカテゴリ値一覧の指定ページを取得する
func (c *Client) ColumnDetailPage(ctx context.Context, jobID, column string, page, pageSize int) (models.ColumnDetail, error) {
	var out models.ColumnDetail
	q := url.Values{}
	q.Set("job_id", jobID)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	path := "/analysis/columns/" + url.PathEscape(column) + "?" + q.Encode()
	err := c.doJSON(ctx, http.MethodGet, path, nil, "", &out)
	return out, err
}

// ExportColumn は高カーディナリティカラムの全詳細をCSVとしてダウンロードする。
// ファイル名はcontent-dispositionヘッダーから取得する
func (c *Client) ExportColumn(ctx context.Context, jobID, column string) (string, []byte, error) {
	path := "/analysis/columns/" + url.PathEscape(column) + "/export?job_id=" + url.QueryEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", nil, &TransportError{Op: "GET " + path, Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, &TransportError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, &TransportError{Op: "GET " + path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	filename := "details_" + column + ".csv"
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if fn := params["filename"]; fn != "" {
				filename = fn
			}
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &TransportError{Op: "GET " + path, Err: err}
	}
	return filename, data, nil
}

// FilterConfig は現在のカラムフィルター構成を取得する
func (c *Client) FilterConfig(ctx context.Context, jobID string) (models.ColumnFilters, error) {
	var out models.FilterConfigResponse
	err := c.doJSON(ctx, http.MethodGet, "/analysis/config?job_id="+url.QueryEscape(jobID), nil, "", &out)
	return out.Filters, err
}

// UpdateFilterConfig は採用カラム集合をサーバーへ送信する
func (c *Client) UpdateFilterConfig(ctx context.Context, jobID string, included []string) (models.ColumnFilters, error) {
	var out models.FilterConfigResponse
	err := c.postJSON(ctx, "/analysis/config?job_id="+url.QueryEscape(jobID), models.FilterConfigUpdate{IncludedColumns: included}, &out)
	return out.Filters, err
}

// SubmitProductForecast は製品別の予測をファイルから実行する
func (c *Client) SubmitProductForecast(ctx context.Context, filename string, r io.Reader, horizon int, model string) (models.ForecastSubmitResponse, error) {
	var out models.ForecastSubmitResponse
	fields := map[string]string{"horizon": strconv.Itoa(horizon), "model": model}
	err := c.uploadFile(ctx, "/forecast/product", filename, r, fields, &out)
	return out, err
}

// SubmitProductCustomerForecast は製品×顧客別の予測をファイルから実行する
func (c *Client) SubmitProductCustomerForecast(ctx context.Context, filename string, r io.Reader, horizon int, model string) (models.ForecastSubmitResponse, error) {
	var out models.ForecastSubmitResponse
	fields := map[string]string{"horizon": strconv.Itoa(horizon), "model": model}
	err := c.uploadFile(ctx, "/forecast/product_customer", filename, r, fields, &out)
	return out, err
}

// PCForecast は製品×顧客の予測レコードを検索する。
// 該当なしはDataAbsence（致命的エラーではない空結果）
func (c *Client) PCForecast(ctx context.Context, customerCode, productCode, model string) (*models.PCForecastRecord, error) {
	q := url.Values{}
	q.Set("customer_code", customerCode)
	q.Set("product_code", productCode)
	q.Set("model", model)
	var out models.PCForecastResponse
	if err := c.doJSON(ctx, http.MethodGet, "/pc-forecast?"+q.Encode(), nil, "", &out); err != nil {
		return nil, err
	}
	if out.Count == 0 || out.Data == nil {
		return nil, &DataAbsence{Message: "該当する顧客×製品×モデルのデータが見つかりませんでした"}
	}
	return out.Data, nil
}

// SkuForecast はSKU単位の予測結果を取得する
func (c *Client) SkuForecast(ctx context.Context, productCode, model string) (models.SkuForecastResponse, error) {
	q := url.Values{}
	q.Set("product_code", productCode)
	q.Set("model", model)
	var out models.SkuForecastResponse
	err := c.doJSON(ctx, http.MethodGet, "/forecast/sku?"+q.Encode(), nil, "", &out)
	return out, err
}

// SkuModels は利用可能なSKUモデル名一覧を取得する
func (c *Client) SkuModels(ctx context.Context) ([]string, error) {
	var out models.ModelListResponse
	err := c.doJSON(ctx, http.MethodGet, "/forecast/sku/models", nil, "", &out)
	return out.Models, err
}

// PCModels は製品×顧客予測で利用可能なモデル名一覧を取得する
func (c *Client) PCModels(ctx context.Context) ([]string, error) {
	var out models.ModelListResponse
	err := c.doJSON(ctx, http.MethodGet, "/pc-forecast/models", nil, "", &out)
	return out.Models, err
}

// PCSafetyStock は製品×顧客の安全在庫を計算する
func (c *Client) PCSafetyStock(ctx context.Context, req models.PCSafetyStockRequest) (models.SafetyStockResponse, error) {
	var out models.SafetyStockResponse
	err := c.postJSON(ctx, "/pc-forecast/safety-stock", req, &out)
	return out, err
}

// SkuSafetyStock はSKU単位の安全在庫を計算する
func (c *Client) SkuSafetyStock(ctx context.Context, req models.SkuSafetyStockRequest) (models.SkuSafetyStockResponse, error) {
	var out models.SkuSafetyStockResponse
	err := c.postJSON(ctx, "/forecast/safety-stock", req, &out)
	return out, err
}
