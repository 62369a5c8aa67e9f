package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrAuthUnavailable 身份端点不可达或返回非成功状态
	ErrAuthUnavailable = errors.New("identity endpoint unavailable")
	// ErrAuthMalformed 身份端点成功响应但未携带可识别的token字段
	ErrAuthMalformed = errors.New("identity endpoint did not return a token")
	// ErrMissingThreadID 会话创建成功但响应缺少thread_id
	ErrMissingThreadID = errors.New("upstream did not return thread_id")
	// ErrPollTimeout 轮询超出时限仍未到达终止状态
	ErrPollTimeout = errors.New("polling timed out")
)

// HTTPError 上游调用返回的非成功HTTP状态，保留原始状态码和响应体
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// RunFailedError run 进入失败/取消等终止状态，携带原始载荷
type RunFailedError struct {
	Payload map[string]interface{}
}

func (e *RunFailedError) Error() string {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return "run failed"
	}
	return fmt.Sprintf("run failed: %s", raw)
}
