package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// 配置文件不存在，生成默认配置文件
			if err := generateDefaultConfig(filename); err != nil {
				return nil, fmt.Errorf("failed to generate default config file: %v", err)
			}
			// 重新读取生成的配置文件
			data, err = os.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("failed to read generated config file: %v", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	// 展开环境变量
	expandEnvironmentVariables(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return &config, nil
}

// generateDefaultConfig 生成默认配置文件
func generateDefaultConfig(filename string) error {
	defaultConfig := &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Upstream: UpstreamConfig{
			TokenEndpoint:   "${TOKEN_ENDPOINT}",
			ThreadEndpoint:  "${THREAD_ENDPOINT}",
			APIKey:          "${API_KEY}",
			TokenTTL:        "50m",
			StreamTimeoutMS: 120000,
		},
		Poll: PollConfig{
			Timeout:  "60s",
			Interval: "700ms",
		},
		Logging: LoggingConfig{
			Level:           "info",
			LogRequestTypes: "all",
			LogResponseBody: "truncated",
			LogDirectory:    "./logs",
		},
		Timeouts: TimeoutConfig{
			Relay: RelayTimeoutConfig{
				TLSHandshake:   "10s",
				ResponseHeader: "60s",
				IdleConnection: "90s",
			},
			Trigger: TriggerTimeoutConfig{
				TLSHandshake:   "10s",
				ResponseHeader: "30s",
				IdleConnection: "60s",
				OverallRequest: "30s",
			},
		},
	}

	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %v", err)
	}

	header := `# Chat Relay 默认配置文件
# 这是自动生成的默认配置文件，请根据需要修改各项配置
#
# 环境变量支持:
# - 您可以使用 ${ENV_VAR_NAME} 格式从环境变量加载配置值
# - 支持默认值语法: ${ENV_VAR_NAME:default_value}
# - 示例: api_key: "${API_KEY:your-key-here}"
# - 这样可以避免在配置文件中硬编码敏感信息

`

	if err := os.WriteFile(filename, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write default config file: %v", err)
	}

	fmt.Printf("默认配置文件已生成: %s\n", filename)
	fmt.Println("请编辑配置文件，设置上游端点和 API 密钥后重新启动服务")

	return nil
}

// expandEnvironmentVariables 展开配置中的环境变量
// 支持格式: ${VAR_NAME} 和 ${VAR_NAME:default_value}
func expandEnvironmentVariables(config *Config) {
	envVarRegex := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	expandString := func(str string) string {
		return envVarRegex.ReplaceAllStringFunc(str, func(match string) string {
			submatches := envVarRegex.FindStringSubmatch(match)
			if len(submatches) < 2 {
				return match
			}

			envName := submatches[1]
			defaultValue := ""
			if len(submatches) > 2 {
				defaultValue = submatches[2]
			}

			if envValue, exists := os.LookupEnv(envName); exists {
				return envValue
			}
			return defaultValue
		})
	}

	config.Server.Host = expandString(config.Server.Host)
	config.Upstream.TokenEndpoint = expandString(config.Upstream.TokenEndpoint)
	config.Upstream.ThreadEndpoint = expandString(config.Upstream.ThreadEndpoint)
	config.Upstream.APIKey = expandString(config.Upstream.APIKey)
	config.Upstream.TokenTTL = expandString(config.Upstream.TokenTTL)
	config.Logging.LogDirectory = expandString(config.Logging.LogDirectory)
}

func validateConfig(config *Config) error {
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Upstream.TokenEndpoint == "" {
		return fmt.Errorf("upstream token_endpoint cannot be empty")
	}
	if config.Upstream.ThreadEndpoint == "" {
		return fmt.Errorf("upstream thread_endpoint cannot be empty")
	}
	if config.Upstream.APIKey == "" {
		return fmt.Errorf("upstream api_key cannot be empty")
	}
	if config.Upstream.TokenTTL == "" {
		config.Upstream.TokenTTL = "50m"
	}
	if config.Upstream.StreamTimeoutMS <= 0 {
		config.Upstream.StreamTimeoutMS = 120000
	}

	if config.Poll.Timeout == "" {
		config.Poll.Timeout = "60s"
	}
	if config.Poll.Interval == "" {
		config.Poll.Interval = "700ms"
	}

	if config.Logging.LogDirectory == "" {
		config.Logging.LogDirectory = "./logs"
	}

	// Validate log_request_types
	if config.Logging.LogRequestTypes == "" {
		config.Logging.LogRequestTypes = "all"
	}
	validRequestType := false
	for _, vt := range []string{"failed", "success", "all"} {
		if config.Logging.LogRequestTypes == vt {
			validRequestType = true
			break
		}
	}
	if !validRequestType {
		return fmt.Errorf("invalid log_request_types '%s', must be one of: failed, success, all", config.Logging.LogRequestTypes)
	}

	// Validate log_response_body
	if config.Logging.LogResponseBody == "" {
		config.Logging.LogResponseBody = "truncated"
	}
	validBodyType := false
	for _, vt := range []string{"none", "truncated", "full"} {
		if config.Logging.LogResponseBody == vt {
			validBodyType = true
			break
		}
	}
	if !validBodyType {
		return fmt.Errorf("invalid log_response_body '%s', must be one of: none, truncated, full", config.Logging.LogResponseBody)
	}

	return nil
}

func SaveConfig(config *Config, filename string) error {
	// 首先验证配置
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	// 创建备份文件
	if _, err := os.Stat(filename); err == nil {
		backupFilename := filename + ".backup"
		if err := os.Rename(filename, backupFilename); err != nil {
			return fmt.Errorf("failed to create backup: %v", err)
		}
	}

	// 写入新配置
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}
