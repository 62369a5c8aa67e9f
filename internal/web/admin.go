package web

import (
	"fmt"
	"net/http"
	"strconv"

	"chat-relay/internal/logger"

	"github.com/gin-gonic/gin"
)

// AdminServer 暴露请求日志的查询和清理接口，挂在主路由上
type AdminServer struct {
	logger *logger.Logger
}

func NewAdminServer(log *logger.Logger) *AdminServer {
	return &AdminServer{logger: log}
}

func (s *AdminServer) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/admin/api")
	{
		api.GET("/logs", s.handleGetLogs)
		api.POST("/logs/cleanup", s.handleCleanupLogs)
	}
}

func (s *AdminServer) handleGetLogs(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "100")
	offsetStr := c.DefaultQuery("offset", "0")
	failedOnlyStr := c.DefaultQuery("failed_only", "false")
	requestIDStr := c.DefaultQuery("request_id", "")

	limit, _ := strconv.Atoi(limitStr)
	offset, _ := strconv.Atoi(offsetStr)
	failedOnly, _ := strconv.ParseBool(failedOnlyStr)

	if requestIDStr != "" {
		// 指定request_id时返回该请求的全部记录
		allLogs, err := s.logger.GetAllLogsByRequestID(requestIDStr)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve logs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"logs":  allLogs,
			"total": len(allLogs),
		})
		return
	}

	logs, total, err := s.logger.GetLogs(limit, offset, failedOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": total,
	})
}

// handleCleanupLogs 清理日志，days为0表示清除全部
func (s *AdminServer) handleCleanupLogs(c *gin.Context) {
	var request struct {
		Days *int `json:"days" binding:"required,gte=0"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	days := *request.Days
	deletedCount, err := s.logger.CleanupLogsByDays(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cleanup logs: " + err.Error()})
		return
	}

	message := fmt.Sprintf("Successfully deleted %d log entries older than %d days", deletedCount, days)
	if days == 0 {
		message = fmt.Sprintf("Successfully deleted all %d log entries", deletedCount)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       message,
		"deleted_count": deletedCount,
	})
}
