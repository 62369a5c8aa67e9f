package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"chat-relay/internal/logger"
	"chat-relay/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// handleChat 流式问答入口：触发上游流式run，把SSE帧归一化后逐条转发。
// 流结束后若从未产生过文本，回退到一次非流式调用补发最终答案。
func (s *Server) handleChat(c *gin.Context) {
	requestLog := s.newRequestLog(c)
	requestLog.IsStreaming = true

	query := c.Query("query")
	agentID := c.Query("agent_id")
	threadID := c.Query("thread_id")
	requestLog.AgentID = agentID

	if query == "" || agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"type":       "invalid_request",
				"message":    "query and agent_id are required",
				"request_id": c.GetString("request_id"),
			},
		})
		s.finishRequestLog(c, requestLog, http.StatusBadRequest, "query and agent_id are required")
		return
	}

	ctx := c.Request.Context()

	token, err := s.upstream.Token(ctx)
	if err != nil {
		status, _ := s.sendError(c, err)
		s.finishRequestLog(c, requestLog, status, err.Error())
		return
	}

	resolvedThread, err := s.upstream.ResolveThread(ctx, query, token, threadID)
	if err != nil {
		status, _ := s.sendError(c, err)
		s.finishRequestLog(c, requestLog, status, err.Error())
		return
	}
	requestLog.ThreadID = resolvedThread

	resp, err := s.upstream.OpenStream(ctx, token, query, agentID, resolvedThread)
	if err != nil {
		status, _ := s.sendError(c, err)
		s.finishRequestLog(c, requestLog, status, err.Error())
		return
	}
	defer resp.Body.Close()

	// SSE响应头必须在第一个事件写出之前设置
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	normalizer := stream.NewNormalizer(resolvedThread)
	eventCount := 0

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			eventCount += s.writeEvents(c, normalizer.Feed(buf[:n]))
		}
		if readErr != nil {
			if readErr != io.EOF {
				s.logger.Debug("Upstream stream ended", logrus.Fields{
					"request_id": c.GetString("request_id"),
					"reason":     readErr.Error(),
				})
			}
			break
		}
	}
	eventCount += s.writeEvents(c, normalizer.Finish())

	// 上游流结束但没有任何文本输出时，降级为一次非流式调用，
	// 客户端已断开则不再浪费上游调用
	if !normalizer.SawText() && ctx.Err() == nil {
		requestLog.UsedFallback = true
		eventCount += s.writeFallbackEvent(c, token, query, agentID, resolvedThread)
	}

	requestLog.EventCount = eventCount
	s.finishRequestLog(c, requestLog, http.StatusOK, "")
}

// writeEvents 把归一化事件序列化为SSE data行并立即刷出
func (s *Server) writeEvents(c *gin.Context, events []stream.Event) int {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}
	return len(events)
}

// writeFallbackEvent 执行非流式降级调用并补发单条事件
func (s *Server) writeFallbackEvent(c *gin.Context, token, query, agentID, threadID string) int {
	ctx := c.Request.Context()

	data, err := s.upstream.Trigger(ctx, token, query, agentID, threadID)
	if err != nil {
		return s.writeEvents(c, []stream.Event{{
			ErrorMessage: true,
			Response:     fmt.Sprintf("Fallback failed: %v", err),
			ThreadID:     threadID,
		}})
	}

	// 提取结果可能为空串，仍然照常补发，保证流式请求至少有一条事件
	text := stream.ExtractFinalText(data)

	// 上游响应可能携带新的thread_id，优先使用
	if tid, ok := data["thread_id"].(string); ok && tid != "" {
		threadID = tid
	}

	return s.writeEvents(c, []stream.Event{{Response: text, ThreadID: threadID}})
}

// handleChatV2 同步问答入口：触发一次非流式run，必要时轮询直到终止状态，
// 返回单个JSON结果而非事件流。
func (s *Server) handleChatV2(c *gin.Context) {
	requestLog := s.newRequestLog(c)

	query := c.Query("query")
	agentID := c.Query("agent_id")
	threadID := c.Query("thread_id")
	// 1和true都视为真
	includeRaw, _ := strconv.ParseBool(c.Query("include_raw"))
	requestLog.AgentID = agentID

	if query == "" || agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"type":       "invalid_request",
				"message":    "query and agent_id are required",
				"request_id": c.GetString("request_id"),
			},
		})
		s.finishRequestLog(c, requestLog, http.StatusBadRequest, "query and agent_id are required")
		return
	}

	ctx := c.Request.Context()

	token, err := s.upstream.Token(ctx)
	if err != nil {
		status, _ := s.sendError(c, err)
		s.finishRequestLog(c, requestLog, status, err.Error())
		return
	}

	// 非流式路径不预建会话：thread_id原样透传（可能为空），
	// 上游在触发响应里带回新会话的id
	data, err := s.upstream.Trigger(ctx, token, query, agentID, threadID)
	if err != nil {
		status, _ := s.sendError(c, err)
		s.finishRequestLog(c, requestLog, status, err.Error())
		return
	}

	result := gin.H{
		"error_message": false,
		"response":      "",
		"thread_id":     threadID,
		"status":        "unknown",
	}

	if text := stream.ExtractFinalText(data); text != "" {
		// 内联结果，无需轮询
		result["response"] = text
		result["status"] = statusOrCompleted(data)
	} else if runID, ok := data["run_id"].(string); ok && runID != "" {
		final, err := s.upstream.PollRun(ctx, token, runID, s.pollTimeout, s.pollInterval)
		if err != nil {
			status, _ := s.sendError(c, err)
			s.finishRequestLog(c, requestLog, status, err.Error())
			return
		}
		result["response"] = stream.ExtractFinalText(final)
		result["status"] = statusOrCompleted(final)
		data = final
	} else if status, ok := data["status"].(string); ok && status != "" {
		// 既无内容也无run_id，只透传上游状态
		result["status"] = status
	}

	// 上游载荷携带thread_id时优先使用
	if tid, ok := data["thread_id"].(string); ok && tid != "" {
		result["thread_id"] = tid
	}
	requestLog.ThreadID, _ = result["thread_id"].(string)

	if includeRaw {
		result["raw"] = data
	}

	requestLog.ResponseBody = s.logger.FormatResponseBody(marshalForLog(result))
	c.JSON(http.StatusOK, result)
	s.finishRequestLog(c, requestLog, http.StatusOK, "")
}

// statusOrCompleted 优先透传载荷里的状态串，缺失时视为已完成
func statusOrCompleted(data map[string]interface{}) string {
	if status, ok := data["status"].(string); ok && status != "" {
		return status
	}
	return "completed"
}

func marshalForLog(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (s *Server) newRequestLog(c *gin.Context) *logger.RequestLog {
	requestLog := s.logger.CreateRequestLog(c.GetString("request_id"), c.Request.Method, c.Request.URL.Path)
	requestLog.Query = c.Request.URL.RawQuery
	return requestLog
}

func (s *Server) finishRequestLog(c *gin.Context, requestLog *logger.RequestLog, statusCode int, errMsg string) {
	requestLog.StatusCode = statusCode
	requestLog.Error = errMsg
	if start, exists := c.Get("start_time"); exists {
		if startTime, ok := start.(time.Time); ok {
			requestLog.DurationMs = time.Since(startTime).Milliseconds()
		}
	}
	s.logger.LogRequest(requestLog)
}
