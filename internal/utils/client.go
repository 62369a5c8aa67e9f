package utils

import (
	"net/http"
	"sync"
	"time"
)

// TimeoutConfig holds parsed timeout settings for one HTTP client.
type TimeoutConfig struct {
	TLSHandshake   time.Duration
	ResponseHeader time.Duration
	IdleConnection time.Duration
	OverallRequest time.Duration
}

var (
	// Global HTTP client instances
	relayClient    *http.Client
	triggerClient  *http.Client
	clientInitOnce sync.Once
)

// InitHTTPClientsWithTimeouts initializes the global HTTP clients with
// the given timeout settings. Subsequent calls are no-ops.
func InitHTTPClientsWithTimeouts(relayTimeouts, triggerTimeouts TimeoutConfig) {
	clientInitOnce.Do(func() {
		// Relay client - designed for long-running streaming requests
		relayClient = &http.Client{
			Transport: &http.Transport{
				TLSHandshakeTimeout:   relayTimeouts.TLSHandshake,
				ResponseHeaderTimeout: relayTimeouts.ResponseHeader, // Long enough for the agent to start responding
				IdleConnTimeout:       relayTimeouts.IdleConnection,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
			},
			// No timeout for streaming responses
		}

		// Trigger/poll client - short, bounded requests
		triggerClient = &http.Client{
			Transport: &http.Transport{
				TLSHandshakeTimeout:   triggerTimeouts.TLSHandshake,
				ResponseHeaderTimeout: triggerTimeouts.ResponseHeader,
				IdleConnTimeout:       triggerTimeouts.IdleConnection,
				MaxIdleConns:          50,
				MaxIdleConnsPerHost:   10,
			},
			Timeout: triggerTimeouts.OverallRequest,
		}
	})
}

// InitHTTPClients initializes the global HTTP clients with default timeouts.
func InitHTTPClients() {
	InitHTTPClientsWithTimeouts(
		TimeoutConfig{
			TLSHandshake:   10 * time.Second,
			ResponseHeader: 60 * time.Second,
			IdleConnection: 90 * time.Second,
		},
		TimeoutConfig{
			TLSHandshake:   10 * time.Second,
			ResponseHeader: 30 * time.Second,
			IdleConnection: 60 * time.Second,
			OverallRequest: 30 * time.Second,
		},
	)
}

// GetRelayClient returns the shared HTTP client for streaming relay requests
func GetRelayClient() *http.Client {
	InitHTTPClients()
	return relayClient
}

// GetTriggerClient returns the shared HTTP client for trigger and poll requests
func GetTriggerClient() *http.Client {
	InitHTTPClients()
	return triggerClient
}
