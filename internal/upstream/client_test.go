package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(cfg Config) *Client {
	return NewClient(cfg, http.DefaultClient, http.DefaultClient)
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["apikey"] != "key-1" {
			t.Errorf("Expected apikey 'key-1', got '%s'", body["apikey"])
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc"})
	}))
	defer server.Close()

	client := newTestClient(Config{
		TokenEndpoint: server.URL,
		APIKey:        "key-1",
		TokenTTL:      time.Hour,
	})

	for i := 0; i < 3; i++ {
		token, err := client.Token(context.Background())
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if token != "tok-abc" {
			t.Errorf("Expected 'tok-abc', got '%s'", token)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 identity call, got %d", n)
	}
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// 第二个字段名同样被识别
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-2"})
	}))
	defer server.Close()

	client := newTestClient(Config{
		TokenEndpoint: server.URL,
		APIKey:        "k",
		TokenTTL:      -time.Second, // 立即过期
	})

	client.Token(context.Background())
	token, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("Expected 'tok-2', got '%s'", token)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected 2 identity calls, got %d", n)
	}
}

func TestTokenErrorNotCached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(Config{TokenEndpoint: server.URL, APIKey: "k", TokenTTL: time.Hour})

	_, err := client.Token(context.Background())
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("Expected ErrAuthUnavailable, got %v", err)
	}
}

func TestTokenMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"something_else": "x"})
	}))
	defer server.Close()

	client := newTestClient(Config{TokenEndpoint: server.URL, APIKey: "k", TokenTTL: time.Hour})

	_, err := client.Token(context.Background())
	if !errors.Is(err, ErrAuthMalformed) {
		t.Errorf("Expected ErrAuthMalformed, got %v", err)
	}
}

func TestResolveThreadPassthrough(t *testing.T) {
	// 已有thread_id时不应发起任何网络调用
	client := newTestClient(Config{ThreadEndpoint: "http://127.0.0.1:1"})

	tid, err := client.ResolveThread(context.Background(), "hi", "tok", "existing-tid")
	if err != nil {
		t.Fatalf("ResolveThread failed: %v", err)
	}
	if tid != "existing-tid" {
		t.Errorf("Expected 'existing-tid', got '%s'", tid)
	}
}

func TestResolveThreadCreates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Expected bearer token, got '%s'", got)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		msg, _ := body["message"].(map[string]interface{})
		if msg["content"] != "first message" {
			t.Errorf("Expected first message in body, got %v", msg)
		}
		json.NewEncoder(w).Encode(map[string]string{"thread_id": "tid-new"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	tid, err := client.ResolveThread(context.Background(), "first message", "tok-1", "")
	if err != nil {
		t.Fatalf("ResolveThread failed: %v", err)
	}
	if tid != "tid-new" {
		t.Errorf("Expected 'tid-new', got '%s'", tid)
	}
}

func TestResolveThreadMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"unexpected": "shape"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	_, err := client.ResolveThread(context.Background(), "hi", "tok", "")
	if !errors.Is(err, ErrMissingThreadID) {
		t.Errorf("Expected ErrMissingThreadID, got %v", err)
	}
}

func TestOpenStreamQueryAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("stream") != "true" || q.Get("stream_timeout") != "120000" || q.Get("multiple_content") != "true" {
			t.Errorf("Unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Expected SSE accept header, got '%s'", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {}\n\n"))
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL, StreamTimeoutMS: 120000})

	resp, err := client.OpenStream(context.Background(), "tok", "hi", "agent-1", "tid")
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	resp.Body.Close()
}

func TestOpenStreamNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL, StreamTimeoutMS: 1000})

	_, err := client.OpenStream(context.Background(), "tok", "hi", "agent", "tid")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || httpErr.Body != "rate limited" {
		t.Errorf("Unexpected HTTPError: %+v", httpErr)
	}
}

func TestTriggerOmitsEmptyThreadID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stream") != "false" {
			t.Errorf("Expected stream=false, got '%s'", r.URL.Query().Get("stream"))
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, present := body["thread_id"]; present {
			t.Error("Expected thread_id to be omitted when empty")
		}
		json.NewEncoder(w).Encode(map[string]string{"run_id": "run-9"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	data, err := client.Trigger(context.Background(), "tok", "hi", "agent", "")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if data["run_id"] != "run-9" {
		t.Errorf("Expected run_id 'run-9', got %v", data["run_id"])
	}
}
