package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollRunReachesCompleted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/run-1") {
			t.Errorf("Expected run id in path, got '%s'", r.URL.Path)
		}
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
		case 2:
			json.NewEncoder(w).Encode(map[string]string{"state": "running"})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"run_status": "Completed",
				"response":   "final answer",
			})
		}
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL + "/"})

	data, err := client.PollRun(context.Background(), "tok", "run-1", 5*time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("PollRun failed: %v", err)
	}
	if data["response"] != "final answer" {
		t.Errorf("Expected final payload, got %v", data)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("Expected 3 polls, got %d", n)
	}
}

func TestPollRunFailedStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "failed", "message": "boom"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	_, err := client.PollRun(context.Background(), "tok", "run-2", 5*time.Second, 5*time.Millisecond)
	var runErr *RunFailedError
	if !errors.As(err, &runErr) {
		t.Fatalf("Expected RunFailedError, got %v", err)
	}
	if runErr.Payload["message"] != "boom" {
		t.Errorf("Expected failure payload to be preserved, got %v", runErr.Payload)
	}
}

func TestPollRunTimeout(t *testing.T) {
	var reads int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&reads, 1)
		json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	timeout := 20 * time.Millisecond
	interval := 5 * time.Millisecond
	_, err := client.PollRun(context.Background(), "tok", "run-3", timeout, interval)
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("Expected ErrPollTimeout, got %v", err)
	}

	// 超时后不再发起任何读取
	readsAtReturn := atomic.LoadInt32(&reads)
	time.Sleep(3 * interval)
	if got := atomic.LoadInt32(&reads); got != readsAtReturn {
		t.Errorf("Expected no reads after deadline, got %d more", got-readsAtReturn)
	}

	// 读取次数受超时和间隔约束
	maxReads := int32(timeout/interval) + 2
	if readsAtReturn > maxReads {
		t.Errorf("Expected at most %d reads within timeout, got %d", maxReads, readsAtReturn)
	}
}

func TestPollRunLastReadWinsOverTimeout(t *testing.T) {
	// 超时判定在终止状态判定之后，最后一次读取若已完成不算超时
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "done"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	_, err := client.PollRun(context.Background(), "tok", "run-4", 0, time.Millisecond)
	if err != nil {
		t.Errorf("Expected completed result despite zero timeout, got %v", err)
	}
}

func TestPollRunContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))
	defer server.Close()

	client := newTestClient(Config{ThreadEndpoint: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.PollRun(ctx, "tok", "run-5", time.Second, 50*time.Millisecond)
	if err == nil {
		t.Error("Expected error after context cancellation")
	}
}
