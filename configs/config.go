package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port                 string
	Environment          string
	DataDir              string        // 分析結果・アップロードの保存先
	SkuResultDir         string        // SKU別予測結果(JSON)の格納ディレクトリ
	PCResultDir          string        // 製品×顧客別予測結果(JSON)の格納ディレクトリ
	JobPollInterval      time.Duration // クライアント側のジョブ監視間隔
	UniqueRatioThreshold float64       // 識別子カラム自動除外のユニーク率しきい値
	HighCardinalityLimit int           // これを超えるユニーク数のカラムはCSVエクスポート誘導に切り替え
	APIKey               string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		DataDir:              getEnv("DATA_DIR", "data/analysis"),
		SkuResultDir:         getEnv("SKU_RESULT_DIR", "data/model_result/sku"),
		PCResultDir:          getEnv("PC_RESULT_DIR", "data/model_result/pc"),
		JobPollInterval:      getDurationEnv("JOB_POLL_INTERVAL", 5*time.Second),
		UniqueRatioThreshold: getFloatEnv("UNIQUE_RATIO_THRESHOLD", 0.9),
		HighCardinalityLimit: getIntEnv("HIGH_CARDINALITY_LIMIT", 1000),
		APIKey:               getEnv("API_KEY", ""),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
