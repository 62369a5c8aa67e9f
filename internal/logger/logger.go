package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RequestLog 每条入站请求的处理记录，持久化后供管理接口查询
type RequestLog struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
	RequestID    string    `gorm:"index" json:"request_id"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Query        string    `json:"query"`
	AgentID      string    `json:"agent_id,omitempty"`
	ThreadID     string    `json:"thread_id,omitempty"`
	StatusCode   int       `gorm:"index" json:"status_code"`
	DurationMs   int64     `json:"duration_ms"`
	IsStreaming  bool      `json:"is_streaming"`
	EventCount   int       `json:"event_count"`
	UsedFallback bool      `json:"used_fallback"`
	ResponseBody string    `json:"response_body,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type Logger struct {
	logger  *logrus.Logger
	storage *SQLiteStorage
	config  LogConfig
}

type LogConfig struct {
	Level           string
	LogRequestTypes string
	LogResponseBody string
	LogDirectory    string
}

func NewLogger(config LogConfig) (*Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	storage, err := NewSQLiteStorage(config.LogDirectory)
	if err != nil {
		return nil, err
	}

	return &Logger{
		logger:  logger,
		storage: storage,
		config:  config,
	}, nil
}

// LogRequest persists the record and, depending on configuration, emits a
// console line for it.
func (l *Logger) LogRequest(log *RequestLog) {
	// 总是记录到存储，方便管理接口查看
	if l.storage != nil {
		l.storage.SaveLog(log)
	}

	if !l.shouldLogRequest(log.StatusCode) {
		return
	}

	fields := logrus.Fields{
		"request_id":   log.RequestID,
		"method":       log.Method,
		"path":         log.Path,
		"status_code":  log.StatusCode,
		"duration_ms":  log.DurationMs,
		"is_streaming": log.IsStreaming,
	}

	if log.ThreadID != "" {
		fields["thread_id"] = log.ThreadID
	}
	if log.AgentID != "" {
		fields["agent_id"] = log.AgentID
	}
	if log.UsedFallback {
		fields["used_fallback"] = true
	}
	if log.Error != "" {
		fields["error"] = log.Error
	}

	if log.StatusCode >= 400 {
		l.logger.WithFields(fields).Error("Request failed")
	} else {
		l.logger.WithFields(fields).Info("Request completed")
	}
}

// shouldLogRequest determines if a request should be logged to console based on configuration
func (l *Logger) shouldLogRequest(statusCode int) bool {
	switch l.config.LogRequestTypes {
	case "failed":
		return statusCode >= 400
	case "success":
		return statusCode < 400
	case "all":
		return true
	default:
		return true
	}
}

// FormatResponseBody applies the configured response body logging policy.
func (l *Logger) FormatResponseBody(body string) string {
	switch l.config.LogResponseBody {
	case "none":
		return ""
	case "truncated":
		return truncateBody(body, 1024)
	default:
		return body
	}
}

// truncateBody truncates body content to specified length
func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "... [truncated]"
}

func (l *Logger) Info(msg string, fields ...logrus.Fields) {
	if len(fields) > 0 {
		l.logger.WithFields(fields[0]).Info(msg)
	} else {
		l.logger.Info(msg)
	}
}

func (l *Logger) Error(msg string, err error, fields ...logrus.Fields) {
	baseFields := logrus.Fields{}
	if err != nil {
		baseFields["error"] = err.Error()
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			baseFields[k] = v
		}
	}

	l.logger.WithFields(baseFields).Error(msg)
}

func (l *Logger) Debug(msg string, fields ...logrus.Fields) {
	if len(fields) > 0 {
		l.logger.WithFields(fields[0]).Debug(msg)
	} else {
		l.logger.Debug(msg)
	}
}

func (l *Logger) GetLogs(limit, offset int, failedOnly bool) ([]*RequestLog, int, error) {
	if l.storage == nil {
		return []*RequestLog{}, 0, nil
	}
	return l.storage.GetLogs(limit, offset, failedOnly)
}

func (l *Logger) GetAllLogsByRequestID(requestID string) ([]*RequestLog, error) {
	if l.storage == nil {
		return []*RequestLog{}, nil
	}
	return l.storage.GetAllLogsByRequestID(requestID)
}

func (l *Logger) CleanupLogsByDays(days int) (int64, error) {
	if l.storage == nil {
		return 0, nil
	}
	return l.storage.CleanupLogsByDays(days)
}

// Close closes the underlying storage.
func (l *Logger) Close() error {
	if l.storage == nil {
		return nil
	}
	return l.storage.Close()
}

func (l *Logger) CreateRequestLog(requestID, method, path string) *RequestLog {
	return &RequestLog{
		Timestamp: time.Now(),
		RequestID: requestID,
		Method:    method,
		Path:      path,
	}
}
