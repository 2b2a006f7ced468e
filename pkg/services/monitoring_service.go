package services

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time
	Path         string
	Method       string
	StatusCode   int
	ResponseTime time.Duration
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// モニタリングAPI自身は記録しない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/monitoring") {
			return
		}

		entry := LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		}
		s.LogRequest(entry)
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	TotalRequests int            `json:"totalRequests"`
	Endpoints     map[string]int `json:"endpoints"`
	StatusCodes   map[string]int `json:"statusCodes"`
	RecentErrors  []LogEntry     `json:"recentErrors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().Add(-time.Duration(periodHours) * time.Hour)

	data := DashboardData{
		Endpoints:    make(map[string]int),
		StatusCodes:  make(map[string]int),
		RecentErrors: make([]LogEntry, 0),
	}

	for _, entry := range s.logs {
		if !entry.Timestamp.After(since) {
			continue
		}
		data.TotalRequests++
		data.Endpoints[entry.Method+" "+entry.Path]++

		switch {
		case entry.StatusCode >= 500:
			data.StatusCodes["5xx"]++
		case entry.StatusCode >= 400:
			data.StatusCodes["4xx"]++
		case entry.StatusCode >= 300:
			data.StatusCodes["3xx"]++
		default:
			data.StatusCodes["2xx"]++
		}

		if entry.StatusCode >= 500 {
			data.RecentErrors = append(data.RecentErrors, entry)
		}
	}

	// 直近のエラーのみ残す
	if len(data.RecentErrors) > 20 {
		data.RecentErrors = data.RecentErrors[len(data.RecentErrors)-20:]
	}

	return data
}
