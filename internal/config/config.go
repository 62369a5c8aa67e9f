package config

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Poll     PollConfig     `yaml:"poll"`
	Logging  LoggingConfig  `yaml:"logging"`
	Timeouts TimeoutConfig  `yaml:"timeouts"` // 超时配置
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UpstreamConfig 上游服务配置：身份端点、会话端点和 API 密钥
type UpstreamConfig struct {
	TokenEndpoint   string `yaml:"token_endpoint"`
	ThreadEndpoint  string `yaml:"thread_endpoint"`
	APIKey          string `yaml:"api_key"`
	TokenTTL        string `yaml:"token_ttl"`         // 凭证缓存时长，默认50m（低于上游真实有效期）
	StreamTimeoutMS int    `yaml:"stream_timeout_ms"` // 透传给上游的流式超时参数
}

// PollConfig 异步 run 结果轮询配置
type PollConfig struct {
	Timeout  string `yaml:"timeout"`  // 轮询总时长上限，默认60s
	Interval string `yaml:"interval"` // 轮询间隔，默认700ms
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	LogRequestTypes string `yaml:"log_request_types"`
	LogResponseBody string `yaml:"log_response_body"`
	LogDirectory    string `yaml:"log_directory"`
}

// TimeoutConfig HTTP 客户端超时配置
type TimeoutConfig struct {
	// 中继客户端超时设置（流式请求，无整体超时）
	Relay RelayTimeoutConfig `yaml:"relay"`
	// 触发/轮询客户端超时设置
	Trigger TriggerTimeoutConfig `yaml:"trigger"`
}

type RelayTimeoutConfig struct {
	TLSHandshake   string `yaml:"tls_handshake"`   // TLS握手超时，默认10s
	ResponseHeader string `yaml:"response_header"` // 响应头超时，默认60s
	IdleConnection string `yaml:"idle_connection"` // 空闲连接超时，默认90s
}

type TriggerTimeoutConfig struct {
	TLSHandshake   string `yaml:"tls_handshake"`   // TLS握手超时，默认10s
	ResponseHeader string `yaml:"response_header"` // 响应头超时，默认30s
	IdleConnection string `yaml:"idle_connection"` // 空闲连接超时，默认60s
	OverallRequest string `yaml:"overall_request"` // 整体请求超时，默认30s
}
