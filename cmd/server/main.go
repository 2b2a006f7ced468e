package main

import (
	"log"
	"net/http"

	config "sales-forecast-api/configs"
	"sales-forecast-api/pkg/handlers"
	"sales-forecast-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	analysisService := services.NewAnalysisService(cfg.UniqueRatioThreshold, cfg.HighCardinalityLimit)
	forecastService := services.NewForecastService()
	skuStore := services.NewSkuResultStore(cfg.SkuResultDir)
	pcStore := services.NewPCResultStore(cfg.PCResultDir)
	inventoryService := services.NewInventoryService(skuStore, pcStore)

	// ハンドラーの初期化
	analysisHandler := handlers.NewAnalysisHandler(analysisService)
	forecastHandler := handlers.NewForecastHandler(forecastService, skuStore, pcStore, inventoryService)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	// 認証ミドルウェア
	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" {
				c.Next()
				return
			}
			providedKey := c.GetHeader("X-API-KEY")
			if providedKey != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		// データ分析API
		analysis := v1.Group("/analysis")
		{
			analysis.POST("/upload", analysisHandler.Upload)
			analysis.GET("/status/:job_id", analysisHandler.Status)
			analysis.GET("/summary", analysisHandler.Summary)
			analysis.GET("/quality", analysisHandler.Quality)
			analysis.GET("/insights", analysisHandler.Insights)
			analysis.GET("/correlation", analysisHandler.Correlation)
			analysis.GET("/columns/:name", analysisHandler.ColumnDetail)
			analysis.GET("/columns/:name/export", analysisHandler.ExportColumn)
			analysis.GET("/config", analysisHandler.GetConfig)
			analysis.POST("/config", analysisHandler.UpdateConfig)
		}

		// 需要予測API
		forecast := v1.Group("/forecast")
		{
			forecast.POST("/product", forecastHandler.SubmitProductForecast)
			forecast.POST("/product_customer", forecastHandler.SubmitProductCustomerForecast)
			forecast.GET("/sku", forecastHandler.GetSkuForecast)
			forecast.GET("/sku/models", forecastHandler.GetSkuModels)
			forecast.POST("/safety-stock", forecastHandler.SkuSafetyStock)
		}

		// 製品×顧客予測API
		pc := v1.Group("/pc-forecast")
		{
			pc.GET("", forecastHandler.GetPCForecast)
			pc.GET("/models", forecastHandler.GetPCModels)
			pc.POST("/safety-stock", forecastHandler.PCSafetyStock)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	log.Printf("Starting Sales Forecast API server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
