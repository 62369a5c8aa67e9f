package stream

// Event 对外输出的统一事件格式，所有上游格式差异在此之前被吸收
type Event struct {
	ErrorMessage bool   `json:"error_message"`
	Response     string `json:"response"`
	ThreadID     string `json:"thread_id"`
}

// 上游事件类型按行为分为三类；大小写不敏感匹配
var (
	deltaEventTypes = map[string]bool{
		"message.delta":  true,
		"response.delta": true,
		"token.delta":    true,
		"message.token":  true,
	}

	completedEventTypes = map[string]bool{
		"message.completed":         true,
		"response.completed":        true,
		"message.completed.default": true,
	}

	errorEventTypes = map[string]bool{
		"error":      true,
		"run.failed": true,
	}
)
