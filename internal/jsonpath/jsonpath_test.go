package jsonpath

import (
	"encoding/json"
	"testing"
)

func parse(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("failed to parse test payload: %v", err)
	}
	return m
}

func TestGetMapTolerantOfShape(t *testing.T) {
	m := parse(t, `{"data": {"message": {"id": "m1"}}, "count": 3}`)

	if GetMap(m, "data") == nil {
		t.Error("Expected data object to be found")
	}
	if GetMap(m, "missing") != nil {
		t.Error("Expected nil for missing key")
	}
	// 类型不符时返回nil，不panic
	if GetMap(m, "count") != nil {
		t.Error("Expected nil for non-object value")
	}
	if GetMap(nil, "data") != nil {
		t.Error("Expected nil map input to be tolerated")
	}
}

func TestGetListAndString(t *testing.T) {
	m := parse(t, `{"content": [{"text": "hi"}], "status": "done", "n": 1}`)

	if len(GetList(m, "content")) != 1 {
		t.Error("Expected one content entry")
	}
	if GetList(m, "status") != nil {
		t.Error("Expected nil list for string value")
	}
	if GetString(m, "status") != "done" {
		t.Errorf("Expected 'done', got '%s'", GetString(m, "status"))
	}
	if GetString(m, "n") != "" {
		t.Error("Expected empty string for numeric value")
	}
}

func TestFirstStringOrdering(t *testing.T) {
	m := parse(t, `{"access_token": "tok-b", "token": "tok-a"}`)

	// 按候选顺序取第一个非空值
	if got := FirstString(m, "token", "access_token"); got != "tok-a" {
		t.Errorf("Expected 'tok-a', got '%s'", got)
	}
	if got := FirstString(m, "access_token", "token"); got != "tok-b" {
		t.Errorf("Expected 'tok-b', got '%s'", got)
	}

	// 空值跳过，继续尝试后续候选
	m2 := parse(t, `{"status": "", "state": "running"}`)
	if got := FirstString(m2, "status", "state", "run_status"); got != "running" {
		t.Errorf("Expected 'running', got '%s'", got)
	}

	if got := FirstString(m2, "missing"); got != "" {
		t.Errorf("Expected empty string, got '%s'", got)
	}
}
