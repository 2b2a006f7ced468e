package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"sales-forecast-api/pkg/models"
	"sales-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler はデータ分析関連の操作のハンドラです。
type AnalysisHandler struct {
	Service *services.AnalysisService
}

// NewAnalysisHandler は新しいAnalysisHandlerを生成します。
func NewAnalysisHandler(service *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		Service: service,
	}
}

// Upload はファイルを受け付けて分析ジョブを開始します。
func (h *AnalysisHandler) Upload(c *gin.Context) {
	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルの取得に失敗しました"})
		return
	}
	defer file.Close()

	resp, err := h.Service.Upload(fileHeader.Filename, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Status はジョブの現在状態を返します。
func (h *AnalysisHandler) Status(c *gin.Context) {
	jobID := c.Param("job_id")
	job := h.Service.Status(jobID)
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("ジョブが見つかりません: %s", jobID)})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Summary はデータセットの概要を返します。
func (h *AnalysisHandler) Summary(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	summary, err := h.Service.Summary(jobID)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ColumnDetail は1カラムの詳細を返します。カテゴリ値一覧は
// page/page_sizeクエリでページングできます。
func (h *AnalysisHandler) ColumnDetail(c *gin.Context) {
	jobID := c.Query("job_id")
	column := c.Param("name")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pageは1以上の整数で指定してください"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_sizeは1以上の整数で指定してください"})
		return
	}

	detail, err := h.Service.Detail(jobID, column, page, pageSize)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Quality はデータ品質レポートを返します。
func (h *AnalysisHandler) Quality(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	quality, err := h.Service.Quality(jobID)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, quality)
}

// Insights はデータセットから自動抽出した示唆を返します。
func (h *AnalysisHandler) Insights(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	insights, err := h.Service.Insights(jobID)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// Correlation は数値カラム間の相関行列を返します。
// 数値カラムが2本未満の場合はnullを返します。
func (h *AnalysisHandler) Correlation(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	matrix, err := h.Service.Correlation(jobID)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, matrix)
}

// ExportColumn はカラム詳細をCSVとしてダウンロードさせます。
func (h *AnalysisHandler) ExportColumn(c *gin.Context) {
	jobID := c.Query("job_id")
	column := c.Param("name")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	filename, data, err := h.Service.ExportColumnCSV(jobID, column)
	if err != nil {
		h.renderJobError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// GetConfig は現在のカラムフィルタ設定を返します。
func (h *AnalysisHandler) GetConfig(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	filters, err := h.Service.Filters(jobID)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FilterConfigResponse{Filters: *filters})
}

// UpdateConfig は採用カラムを更新します。
func (h *AnalysisHandler) UpdateConfig(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_idを指定してください"})
		return
	}

	var payload models.FilterConfigUpdate
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの解析に失敗しました"})
		return
	}

	filters, err := h.Service.UpdateFilters(jobID, payload.IncludedColumns)
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FilterConfigResponse{Filters: *filters})
}

// renderJobError はサービス層のエラーをHTTPステータスに変換します。
func (h *AnalysisHandler) renderJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrJobNotFound), errors.Is(err, services.ErrColumnNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrJobNotFinished):
		c.JSON(http.StatusAccepted, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
