package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck はヘルスチェックエンドポイントです。
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
