package stream

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	headerMarker  = "event:"
	payloadMarker = "payload:"
)

// CompletenessPredicate 判断缓冲区的最后一行能否作为本轮可解码文本的结尾
type CompletenessPredicate interface {
	Complete(line string) bool
}

type PredicateFunc func(line string) bool

func (f PredicateFunc) Complete(line string) bool {
	return f(line)
}

// PayloadBracePredicate 与线上协议保持一致：以 payload: 开头并以 } 结尾。
// payload 字符串中途出现 } 且恰好被切在该处时会误判，行为保持不变。
var PayloadBracePredicate CompletenessPredicate = PredicateFunc(func(line string) bool {
	return strings.HasPrefix(line, payloadMarker) && strings.HasSuffix(line, "}")
})

// BalancedPayloadPredicate 要求 marker 之后是一段合法 JSON
var BalancedPayloadPredicate CompletenessPredicate = PredicateFunc(func(line string) bool {
	if !strings.HasPrefix(line, payloadMarker) {
		return false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(line, payloadMarker))
	return raw != "" && gjson.Valid(raw)
})

// FrameParser 把任意切分的网络分块重新拼成可解码的文本，
// 末尾不完整的帧留到下一个分块。
type FrameParser struct {
	predicate CompletenessPredicate
	buffer    string
	pending   []byte // 尚未凑齐的 UTF-8 尾字节
}

func NewFrameParser(predicate CompletenessPredicate) *FrameParser {
	if predicate == nil {
		predicate = PayloadBracePredicate
	}
	return &FrameParser{predicate: predicate}
}

// Push 追加一个分块，返回本轮可以交给解码器的文本（可能为空）
func (p *FrameParser) Push(chunk string) string {
	p.buffer += chunk

	lines := strings.Split(p.buffer, "\n")
	cut := len(lines)
	for cut > 0 && !p.predicate.Complete(lines[cut-1]) {
		cut--
	}

	p.buffer = strings.Join(lines[cut:], "\n")
	return strings.Join(lines[:cut], "\n")
}

func (p *FrameParser) PushBytes(chunk []byte) string {
	data := make([]byte, 0, len(p.pending)+len(chunk))
	data = append(data, p.pending...)
	data = append(data, chunk...)

	cut := completePrefix(data)
	p.pending = append(p.pending[:0], data[cut:]...)

	return p.Push(string(data[:cut]))
}

func (p *FrameParser) Remainder() string {
	return p.buffer + string(p.pending)
}

// Close 流结束时丢弃剩余内容，返回值只用于日志
func (p *FrameParser) Close() string {
	rest := p.Remainder()
	p.buffer = ""
	p.pending = nil
	return rest
}

// completePrefix 返回 b 中以完整 UTF-8 字符结尾的最长前缀长度
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
