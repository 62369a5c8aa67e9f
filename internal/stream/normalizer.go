package stream

import (
	"encoding/json"
	"strings"

	"chat-relay/internal/jsonpath"
)

// frameDelimiter SSE 帧之间以空行分隔
const frameDelimiter = "\n\n"

// Normalizer 增量消费上游 SSE 字节流，重组帧并归一化为 Event 序列。
// 每个请求一个实例；流只能向前消费一次，不可重放。
type Normalizer struct {
	threadID string
	buf      string
	sawText  bool
}

// NewNormalizer creates a normalizer whose events carry the given thread id.
func NewNormalizer(threadID string) *Normalizer {
	return &Normalizer{threadID: threadID}
}

// SawText reports whether any delta or completed text has been emitted.
// The relay uses this after the stream ends to decide on the fallback call.
func (n *Normalizer) SawText() bool {
	return n.sawText
}

// Feed appends a network chunk to the internal buffer and returns the events
// for every frame completed by it. A frame split across chunk boundaries is
// reassembled; the trailing incomplete fragment stays buffered.
func (n *Normalizer) Feed(chunk []byte) []Event {
	n.buf += string(chunk)

	var events []Event
	for {
		idx := strings.Index(n.buf, frameDelimiter)
		if idx < 0 {
			break
		}
		block := n.buf[:idx]
		n.buf = n.buf[idx+len(frameDelimiter):]
		events = append(events, n.processBlock(block)...)
	}
	return events
}

// Finish processes whatever remains in the buffer as a final candidate frame.
// Upstreams that close the connection without a trailing blank line still get
// their last frame handled, and single-chunk delivery behaves the same as
// arbitrarily split delivery.
func (n *Normalizer) Finish() []Event {
	block := n.buf
	n.buf = ""
	if strings.TrimSpace(block) == "" {
		return nil
	}
	return n.processBlock(block)
}

// processBlock 解析单个候选帧；无data前缀或JSON损坏的帧直接丢弃，
// 保证个别坏帧不会中断整个流。
func (n *Normalizer) processBlock(block string) []Event {
	line := strings.TrimSpace(block)
	if !strings.HasPrefix(line, "data:") {
		// 注释行或keep-alive，跳过
		return nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil
	}

	etype := strings.ToLower(jsonpath.GetString(event, "event"))
	data := jsonpath.GetMap(event, "data")

	switch {
	case deltaEventTypes[etype]:
		return n.processDelta(data)
	case completedEventTypes[etype]:
		return n.processCompleted(data)
	case errorEventTypes[etype]:
		return n.processError(data)
	default:
		return nil
	}
}

// processDelta 提取增量文本片段，每个非空片段产生一个事件
func (n *Normalizer) processDelta(data map[string]interface{}) []Event {
	contents := jsonpath.GetList(jsonpath.GetMap(data, "delta"), "content")
	if contents == nil {
		contents = jsonpath.GetList(data, "content")
	}

	var events []Event
	for _, item := range contents {
		part, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if jsonpath.GetString(part, "response_type") != "text" {
			continue
		}
		text := jsonpath.GetString(part, "text")
		if text == "" {
			continue
		}
		n.sawText = true
		events = append(events, Event{Response: text, ThreadID: n.threadID})
	}
	return events
}

// processCompleted 仅在尚未输出过任何增量文本时才使用完成事件的全文，
// 避免与已流出的内容重复。已有增量输出时完成帧被忽略，即便其文本更完整。
func (n *Normalizer) processCompleted(data map[string]interface{}) []Event {
	if n.sawText {
		return nil
	}

	contents := jsonpath.GetList(jsonpath.GetMap(data, "message"), "content")

	var parts []string
	for _, item := range contents {
		part, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if jsonpath.GetString(part, "response_type") != "text" {
			continue
		}
		if text, ok := part["text"].(string); ok {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return nil
	}
	finalText := strings.Join(parts, "")
	if finalText == "" {
		return nil
	}

	n.sawText = true
	return []Event{{Response: finalText, ThreadID: n.threadID}}
}

// processError 错误事件立即转发，但不终止流，后续帧照常处理
func (n *Normalizer) processError(data map[string]interface{}) []Event {
	msg := jsonpath.GetString(data, "message")
	if msg == "" {
		msg = "Upstream error"
	}
	return []Event{{ErrorMessage: true, Response: msg, ThreadID: n.threadID}}
}
