package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"chat-relay/internal/jsonpath"
)

// Config holds the upstream endpoints and credential settings.
type Config struct {
	TokenEndpoint   string
	ThreadEndpoint  string
	APIKey          string
	TokenTTL        time.Duration
	StreamTimeoutMS int
}

// credential 单槽凭证，整体替换，不做字段级更新
type credential struct {
	token     string
	expiresAt time.Time
}

// Client talks to the identity endpoint and the thread/run endpoint. One
// instance is constructed at startup and shared by all request handlers; the
// only mutable state is the cached credential.
type Client struct {
	cfg           Config
	streamClient  *http.Client
	triggerClient *http.Client
	cred          atomic.Pointer[credential]
}

// NewClient creates an upstream client. streamClient must have no overall
// timeout (it carries SSE streams); triggerClient is used for all bounded
// calls (token, thread creation, trigger, poll).
func NewClient(cfg Config, streamClient, triggerClient *http.Client) *Client {
	return &Client{
		cfg:           cfg,
		streamClient:  streamClient,
		triggerClient: triggerClient,
	}
}

// Token returns a valid upstream token, fetching a fresh one only when the
// cached credential has expired. Concurrent callers racing past expiry may
// each refresh; the identity endpoint tolerates that and the last write wins,
// so the slot is an atomic pointer rather than a lock.
func (c *Client) Token(ctx context.Context) (string, error) {
	if cred := c.cred.Load(); cred != nil && time.Now().Before(cred.expiresAt) {
		return cred.token, nil
	}

	body, err := json.Marshal(map[string]string{"apikey": c.cfg.APIKey})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.triggerClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d", ErrAuthUnavailable, resp.StatusCode)
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthMalformed, err)
	}

	// token字段名有两种可能，按优先级取第一个非空值
	token := jsonpath.FirstString(data, "token", "access_token")
	if token == "" {
		return "", ErrAuthMalformed
	}

	c.cred.Store(&credential{
		token:     token,
		expiresAt: time.Now().Add(c.cfg.TokenTTL),
	})

	return token, nil
}

// ResolveThread returns the supplied thread id unchanged, or creates a new
// thread upstream carrying the first user message as context.
func (c *Client) ResolveThread(ctx context.Context, message, token, threadID string) (string, error) {
	if threadID != "" {
		// 调用方已有会话，直接复用，不发起网络调用
		return threadID, nil
	}

	body := map[string]interface{}{
		"message": map[string]string{"role": "user", "content": message},
	}

	data, err := c.postJSON(ctx, c.cfg.ThreadEndpoint, token, nil, body)
	if err != nil {
		return "", err
	}

	tid := jsonpath.GetString(data, "thread_id")
	if tid == "" {
		return "", ErrMissingThreadID
	}
	return tid, nil
}

// OpenStream starts a streaming run and returns the response for incremental
// reading. The caller owns resp.Body and must close it; cancelling ctx aborts
// the read. A non-200 status is converted to an HTTPError carrying the
// upstream body, and no response is returned.
func (c *Client) OpenStream(ctx context.Context, token, message, agentID, threadID string) (*http.Response, error) {
	body := map[string]interface{}{
		"message":   map[string]string{"role": "user", "content": message},
		"agent_id":  agentID,
		"thread_id": threadID,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ThreadEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %v", err)
	}

	q := req.URL.Query()
	q.Set("stream", "true")
	q.Set("stream_timeout", strconv.Itoa(c.cfg.StreamTimeoutMS))
	q.Set("multiple_content", "true")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return resp, nil
}

// Trigger issues one non-streaming run call and returns the decoded payload.
// The response may contain inline final content, a run_id for polling, or a
// bare status.
func (c *Client) Trigger(ctx context.Context, token, message, agentID, threadID string) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"message":  map[string]string{"role": "user", "content": message},
		"agent_id": agentID,
	}
	if threadID != "" {
		body["thread_id"] = threadID
	}

	params := map[string]string{
		"stream":           "false",
		"multiple_content": "true",
	}

	return c.postJSON(ctx, c.cfg.ThreadEndpoint, token, params, body)
}

// postJSON 带bearer认证的JSON POST，非2xx状态转换为HTTPError
func (c *Client) postJSON(ctx context.Context, url, token string, params map[string]string, body interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("failed to decode upstream response: %v", err)
	}
	return data, nil
}
