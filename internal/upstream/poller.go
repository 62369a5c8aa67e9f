package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/jsonpath"
)

// 终止状态集合，大小写不敏感匹配
var completedStatuses = map[string]bool{
	"completed": true,
	"succeeded": true,
	"success":   true,
	"done":      true,
}

var failedStatuses = map[string]bool{
	"failed":    true,
	"error":     true,
	"cancelled": true,
}

// PollRun repeatedly fetches the run state until it reaches a terminal
// status. A successful terminal status returns the final payload; a failure
// status returns a RunFailedError carrying it. Exceeding timeout returns
// ErrPollTimeout, and cancelling ctx aborts between polls.
func (c *Client) PollRun(ctx context.Context, token, runID string, timeout, interval time.Duration) (map[string]interface{}, error) {
	url := strings.TrimRight(c.cfg.ThreadEndpoint, "/") + "/" + runID
	deadline := time.Now().Add(timeout)

	for {
		data, err := c.getRun(ctx, url, token)
		if err != nil {
			return nil, err
		}

		// 状态字段名有多种可能，取第一个非空的
		status := strings.ToLower(jsonpath.FirstString(data, "status", "state", "run_status"))
		if completedStatuses[status] {
			return data, nil
		}
		if failedStatuses[status] {
			return nil, &RunFailedError{Payload: data}
		}

		// 先判终止状态再判超时，最后一次读取若已终止不算超时
		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *Client) getRun(ctx context.Context, url, token string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.triggerClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode run state: %v", err)
	}
	return data, nil
}
