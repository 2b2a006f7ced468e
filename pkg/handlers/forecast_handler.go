package handlers

import (
	"net/http"
	"strconv"

	"sales-forecast-api/pkg/models"
	"sales-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ForecastHandler は需要予測と安全在庫関連の操作のハンドラです。
type ForecastHandler struct {
	ForecastService  *services.ForecastService
	SkuStore         *services.SkuResultStore
	PCStore          *services.PCResultStore
	InventoryService *services.InventoryService
}

// NewForecastHandler は新しいForecastHandlerを生成します。
func NewForecastHandler(
	forecastService *services.ForecastService,
	skuStore *services.SkuResultStore,
	pcStore *services.PCResultStore,
	inventoryService *services.InventoryService,
) *ForecastHandler {
	return &ForecastHandler{
		ForecastService:  forecastService,
		SkuStore:         skuStore,
		PCStore:          pcStore,
		InventoryService: inventoryService,
	}
}

// SubmitProductForecast は売上CSVから製品別の予測を実行します。
func (h *ForecastHandler) SubmitProductForecast(c *gin.Context) {
	h.submitForecast(c, false)
}

// SubmitProductCustomerForecast は売上CSVから製品×顧客別の予測を実行します。
func (h *ForecastHandler) SubmitProductCustomerForecast(c *gin.Context) {
	h.submitForecast(c, true)
}

func (h *ForecastHandler) submitForecast(c *gin.Context, byCustomer bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルの取得に失敗しました"})
		return
	}
	defer file.Close()

	horizon := 0
	if v := c.PostForm("horizon"); v != "" {
		horizon, err = strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "horizonは整数で指定してください"})
			return
		}
	}
	model := c.PostForm("model")
	if model == "" {
		model = "naive"
	}

	var resp *models.ForecastSubmitResponse
	if byCustomer {
		resp, err = h.ForecastService.ForecastByProductCustomer(file, horizon, model)
	} else {
		resp, err = h.ForecastService.ForecastByProduct(file, horizon, model)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetPCForecast は製品×顧客×モデルの予測結果を返します。
// 該当レコードがない場合は count=0, data=null を返します。
func (h *ForecastHandler) GetPCForecast(c *gin.Context) {
	customerCode := c.Query("customer_code")
	productCode := c.Query("product_code")
	model := c.Query("model")
	if customerCode == "" || productCode == "" || model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer_code, product_code, model を指定してください"})
		return
	}

	record := h.PCStore.Find(customerCode, productCode, model)
	if record == nil {
		c.JSON(http.StatusOK, models.PCForecastResponse{Count: 0, Data: nil})
		return
	}
	c.JSON(http.StatusOK, models.PCForecastResponse{Count: 1, Data: record})
}

// GetPCModels は製品×顧客予測で利用可能なモデルの一覧を返します。
func (h *ForecastHandler) GetPCModels(c *gin.Context) {
	c.JSON(http.StatusOK, models.ModelListResponse{Models: h.PCStore.Models()})
}

// PCSafetyStock は製品×顧客の履歴から安全在庫を計算します。
func (h *ForecastHandler) PCSafetyStock(c *gin.Context) {
	var req models.PCSafetyStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの解析に失敗しました"})
		return
	}
	if msg := validateSafetyStockInput(req.ServiceLevel, req.LeadTime, req.LeadTimeStd); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	record := h.PCStore.Find(req.CustomerID, req.ProductID, req.Model)
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "該当する顧客×製品×モデルのデータが見つかりませんでした"})
		return
	}

	stats, err := h.InventoryService.GetPCDemandStats(req.CustomerID, req.ProductID, req.Model)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	safetyStock, err := services.CalculateSafetyStock(stats.Std, stats.Mean, req.ServiceLevel, req.LeadTime, req.LeadTimeStd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.SafetyStockResponse{
		SafetyStock: safetyStock,
		DemandMean:  stats.Mean,
		DemandStd:   stats.Std,
		ChartData:   services.BuildChartData(record.History, record.Forecast),
	})
}

// GetSkuForecast はSKU×モデルの予測結果をチャート用データ付きで返します。
func (h *ForecastHandler) GetSkuForecast(c *gin.Context) {
	productCode := c.Query("product_code")
	model := c.Query("model")
	if productCode == "" || model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_code, model を指定してください"})
		return
	}

	record := h.SkuStore.Find(productCode, model)
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "該当するSKU×モデルの予測結果が見つかりませんでした"})
		return
	}

	interval := models.ConfidenceInterval{
		Lower: make(map[string]float64),
		Upper: make(map[string]float64),
	}
	forecastQty := 0.0
	for _, f := range record.Forecast {
		forecastQty += f.Predicted
		if f.Lower != nil {
			interval.Lower[f.Date] = *f.Lower
		}
		if f.Upper != nil {
			interval.Upper[f.Date] = *f.Upper
		}
	}

	c.JSON(http.StatusOK, models.SkuForecastResponse{
		ProductCode:      record.ProductCode,
		Model:            record.Model,
		Metrics:          record.Metrics,
		ForecastQuantity: forecastQty,
		ChartData: models.SkuChartData{
			History:            record.History,
			Forecast:           record.Forecast,
			ConfidenceInterval: interval,
			TrainEndDate:       record.TrainEndDate,
		},
	})
}

// GetSkuModels は利用可能な予測モデルの一覧を返します。
func (h *ForecastHandler) GetSkuModels(c *gin.Context) {
	c.JSON(http.StatusOK, models.ModelListResponse{Models: h.SkuStore.Models()})
}

// SkuSafetyStock はSKUの履歴から安全在庫を計算します。
func (h *ForecastHandler) SkuSafetyStock(c *gin.Context) {
	var req models.SkuSafetyStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの解析に失敗しました"})
		return
	}
	if msg := validateSafetyStockInput(req.ServiceLevel, req.LeadTime, req.LeadTimeStd); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	record := h.SkuStore.Find(req.ProductCode, req.Model)
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "該当するSKU×モデルの予測結果が見つかりませんでした"})
		return
	}

	stats, err := h.InventoryService.GetSkuDemandStats(req.ProductCode, req.Model)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	safetyStock, err := services.CalculateSafetyStock(stats.Std, stats.Mean, req.ServiceLevel, req.LeadTime, req.LeadTimeStd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.SkuSafetyStockResponse{
		SafetyStock: safetyStock,
		DemandMean:  stats.Mean,
		DemandStd:   stats.Std,
		ChartData:   services.BuildChartData(record.History, record.Forecast),
	})
}

// validateSafetyStockInput は安全在庫の入力を検証し、エラーメッセージを返します。
func validateSafetyStockInput(serviceLevel, leadTime, leadTimeStd float64) string {
	if !(serviceLevel > 0 && serviceLevel < 1) {
		return "サービスレベルは 0 より大きく 1 未満で指定してください"
	}
	if leadTime <= 0 {
		return "リードタイムは正の値で指定してください"
	}
	if leadTimeStd < 0 {
		return "リードタイムの標準偏差は 0 以上で指定してください"
	}
	return ""
}
