package relay

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := generateRequestID()
		c.Set("request_id", requestID)
		c.Set("start_time", start)

		c.Next()
	}
}

func generateRequestID() string {
	return "req-" + uuid.New().String()
}
