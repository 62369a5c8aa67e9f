package jsonpath

// 针对未类型化 JSON 树（map[string]interface{}）的安全访问辅助函数。
// 上游返回的载荷形状不可假设，每一层访问都必须容忍字段缺失或类型不符。

// GetMap returns the child object at key, or nil if absent or not an object.
func GetMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	if child, ok := m[key].(map[string]interface{}); ok {
		return child
	}
	return nil
}

// GetList returns the child array at key, or nil if absent or not an array.
func GetList(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	if child, ok := m[key].([]interface{}); ok {
		return child
	}
	return nil
}

// GetString returns the child string at key, or "" if absent or not a string.
func GetString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// FirstString tries the candidate keys in order and returns the first
// present, non-empty string value. Used for upstream fields that appear
// under several names (token/access_token, status/state/run_status).
func FirstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := GetString(m, key); s != "" {
			return s
		}
	}
	return ""
}
