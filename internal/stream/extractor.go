package stream

import (
	"strings"

	"chat-relay/internal/jsonpath"
)

// ExtractFinalText looks in the common locations of an upstream payload for
// the final answer text. Pure and idempotent; returns "" when nothing usable
// is found.
//
// 查找顺序:
//  1. result.data.message.content 列表
//  2. 顶层 response 字符串
//  3. 顶层 content 列表
func ExtractFinalText(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}

	message := jsonpath.GetMap(jsonpath.GetMap(jsonpath.GetMap(payload, "result"), "data"), "message")
	if text := joinTextParts(jsonpath.GetList(message, "content")); text != "" {
		return text
	}

	if response := strings.TrimSpace(jsonpath.GetString(payload, "response")); response != "" {
		return response
	}

	return joinTextParts(jsonpath.GetList(payload, "content"))
}

// joinTextParts 收集列表中的文本片段，按首次出现顺序去重后以换行拼接。
// 去重是因为部分上游形状会在部分与最终表示中重复相同的内容片段。
func joinTextParts(contents []interface{}) string {
	if contents == nil {
		return ""
	}

	var texts []string
	seen := make(map[string]bool)
	for _, item := range contents {
		part, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, ok := part["text"].(string)
		if !ok {
			continue
		}
		if seen[text] {
			continue
		}
		seen[text] = true
		texts = append(texts, text)
	}

	if len(texts) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}
