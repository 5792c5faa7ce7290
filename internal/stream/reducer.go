package stream

import (
	"strings"

	"crimestats-chat/internal/model"
	"crimestats-chat/pkg/logger"

	"github.com/tidwall/gjson"
)

// SessionTracker 由会话状态的持有者实现，reducer 通过它更新 session id
type SessionTracker interface {
	SessionID() string
	AdoptSessionID(id string)
}

type State int

const (
	StateStreaming State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reducer 消费一次响应周期内的全部事件
type Reducer struct {
	tracker     SessionTracker
	state       State
	received    bool
	accumulated strings.Builder
	result      model.StreamResult
}

func NewReducer(tracker SessionTracker) *Reducer {
	return &Reducer{
		tracker: tracker,
		state:   StateStreaming,
	}
}

func (r *Reducer) State() State {
	return r.state
}

func (r *Reducer) Terminated() bool {
	return r.state == StateTerminated
}

// Result 终止之前返回零值
func (r *Reducer) Result() model.StreamResult {
	return r.result
}

// Apply 终止之后的事件一律忽略
func (r *Reducer) Apply(event model.DecodedEvent) []model.RenderOp {
	if r.state == StateTerminated {
		return nil
	}

	r.adoptSession(event)

	switch event.Kind {
	case model.EventData:
		return r.onData(event)
	case model.EventError:
		logger.Warn("stream reported an error event")
		r.fail()
	case model.EventEnd:
		r.finish(event)
	}
	return nil
}

// Close 传输层自然结束；没有收到 end 也不补错误
func (r *Reducer) Close() model.StreamResult {
	if r.state != StateTerminated {
		r.result = model.StreamResult{Message: r.accumulated.String()}
		r.state = StateTerminated
	}
	return r.result
}

func (r *Reducer) adoptSession(event model.DecodedEvent) {
	if r.tracker == nil || !event.HasPayload() {
		return
	}
	id := gjson.GetBytes(event.Payload, "session_id")
	if id.Type != gjson.String || id.Str == "" {
		return
	}
	if id.Str != r.tracker.SessionID() {
		r.tracker.AdoptSessionID(id.Str)
	}
}

func (r *Reducer) onData(event model.DecodedEvent) []model.RenderOp {
	if !event.HasPayload() {
		return nil
	}

	var ops []model.RenderOp
	if !r.received {
		r.received = true
		ops = append(ops, model.RenderOp{Kind: model.OpClearPlaceholder})
	}

	payload := gjson.ParseBytes(event.Payload)
	if payload.Get("error").Bool() {
		logger.Warn("data event carried an error flag")
		r.fail()
		return ops
	}

	content, contentType := extractContent(payload)
	if content == "" {
		return ops
	}

	ops = append(ops, model.RenderOp{
		Kind: model.OpAppendBlock,
		Block: model.Block{
			Content: content,
			Type:    contentType,
			Format:  model.FormatOf(content),
		},
	})

	// update 只是进度提示，不计入最终消息
	if contentType == model.ContentMessage {
		r.accumulated.WriteString(content)
	}
	return ops
}

func (r *Reducer) finish(event model.DecodedEvent) {
	payload := gjson.ParseBytes(event.Payload)
	r.result = model.StreamResult{
		Message:            r.accumulated.String(),
		Source:             payload.Get("source").String(),
		IsErrorPlaceholder: payload.Get("example").Bool(),
	}
	r.state = StateTerminated
}

func (r *Reducer) fail() {
	r.result = model.StreamResult{
		Message:            model.ErrorNotice,
		IsErrorPlaceholder: true,
	}
	r.state = StateTerminated
}

// extractContent 依次取 content、message 字段，都没有时退回整个 payload
func extractContent(payload gjson.Result) (string, model.ContentType) {
	var content string
	if field := payload.Get("content"); field.Exists() {
		content = field.String()
	} else if field := payload.Get("message"); field.Exists() {
		content = field.String()
	} else {
		content = payload.String()
	}

	contentType := model.ContentMessage
	if model.ContentType(payload.Get("type").String()) == model.ContentUpdate {
		contentType = model.ContentUpdate
	}
	return content, contentType
}
