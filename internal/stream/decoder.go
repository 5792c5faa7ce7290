package stream

import (
	"encoding/json"
	"regexp"
	"strings"

	"crimestats-chat/internal/model"
	"crimestats-chat/pkg/logger"
)

// 帧的起点：缓冲区开头或换行之后的 header 行
var headerPattern = regexp.MustCompile(`(?m)^event:`)

// SplitFrames 按 header 行切分，第一个 header 之前的内容丢弃
func SplitFrames(text string) []model.Frame {
	locs := headerPattern.FindAllStringIndex(text, -1)
	frames := make([]model.Frame, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		frames = append(frames, model.Frame(text[loc[0]:end]))
	}
	return frames
}

// DecodeFrame header 不合法或事件类型未知时返回 false；
// payload 解析失败不算错误，事件照常返回，只是没有 payload。
func DecodeFrame(frame model.Frame) (model.DecodedEvent, bool) {
	header, rest, _ := strings.Cut(string(frame), "\n")
	if !strings.HasPrefix(header, headerMarker) {
		return model.DecodedEvent{}, false
	}

	name := strings.TrimSpace(strings.TrimPrefix(header, headerMarker))
	kind, ok := model.ParseEventKind(name)
	if !ok {
		logger.Debugf("ignoring frame with unknown event kind %q", name)
		return model.DecodedEvent{}, false
	}

	event := model.DecodedEvent{Kind: kind}

	body := strings.TrimLeft(rest, " \t\r\n")
	if !strings.HasPrefix(body, payloadMarker) {
		return event, true
	}

	raw := strings.TrimSpace(strings.TrimPrefix(body, payloadMarker))
	if raw == "" || !json.Valid([]byte(raw)) {
		logger.Debugf("dropping unparseable %s payload (%d bytes)", kind, len(raw))
		return event, true
	}

	event.Payload = json.RawMessage(raw)
	return event, true
}

func Decode(text string) []model.DecodedEvent {
	frames := SplitFrames(text)
	events := make([]model.DecodedEvent, 0, len(frames))
	for _, frame := range frames {
		if event, ok := DecodeFrame(frame); ok {
			events = append(events, event)
		}
	}
	return events
}
