package relay

import (
	"errors"
	"net/http"

	"chat-relay/internal/upstream"

	"github.com/gin-gonic/gin"
)

// mapUpstreamError 把上游错误映射为入站响应的状态码和错误类型
func mapUpstreamError(err error) (int, string) {
	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		// 上游的HTTP错误状态原样镜像给调用方
		return httpErr.StatusCode, "upstream_http_error"
	}

	var runErr *upstream.RunFailedError
	if errors.As(err, &runErr) {
		return http.StatusBadRequest, "run_failed"
	}

	switch {
	case errors.Is(err, upstream.ErrPollTimeout):
		return http.StatusRequestTimeout, "poll_timeout"
	case errors.Is(err, upstream.ErrAuthUnavailable),
		errors.Is(err, upstream.ErrAuthMalformed),
		errors.Is(err, upstream.ErrMissingThreadID):
		return http.StatusBadGateway, "upstream_protocol_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) sendError(c *gin.Context, err error) (int, string) {
	status, errType := mapUpstreamError(err)
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":       errType,
			"message":    err.Error(),
			"request_id": c.GetString("request_id"),
		},
	})
	return status, errType
}
