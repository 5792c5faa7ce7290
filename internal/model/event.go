package model

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Frame 一个完整的事件帧原文：header 行 + 可选的 payload 行
type Frame string

type EventKind string

const (
	EventData  EventKind = "data"
	EventEnd   EventKind = "end"
	EventError EventKind = "error"
)

// ParseEventKind 未知类型返回 false，调用方直接丢弃该帧
func ParseEventKind(s string) (EventKind, bool) {
	switch EventKind(s) {
	case EventData, EventEnd, EventError:
		return EventKind(s), true
	default:
		return "", false
	}
}

func (k EventKind) IsTerminal() bool {
	return k == EventEnd || k == EventError
}

type DecodedEvent struct {
	Kind    EventKind
	Payload json.RawMessage // payload 缺失或 JSON 解析失败时为 nil
}

func (e DecodedEvent) HasPayload() bool {
	return len(e.Payload) > 0
}

type StreamResult struct {
	Message            string `json:"message"`
	Source             string `json:"source,omitempty"`
	IsErrorPlaceholder bool   `json:"is_error_placeholder"`
}

type ContentType string

const (
	ContentMessage ContentType = "message"
	ContentUpdate  ContentType = "update"
)

type BlockFormat string

const (
	FormatText     BlockFormat = "text"
	FormatMarkdown BlockFormat = "markdown"
)

// Block 流式过程中追加到占位元素里的一段内容
type Block struct {
	Content string
	Type    ContentType
	Format  BlockFormat
}

var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// FormatOf 纯数字按纯文本渲染，其余按 markdown
func FormatOf(content string) BlockFormat {
	if numericPattern.MatchString(strings.TrimSpace(content)) {
		return FormatText
	}
	return FormatMarkdown
}

type RenderOpKind string

const (
	OpClearPlaceholder RenderOpKind = "clear_placeholder"
	OpAppendBlock      RenderOpKind = "append_block"
)

type RenderOp struct {
	Kind  RenderOpKind
	Block Block
}
