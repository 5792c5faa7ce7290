package stream

import (
	"strings"

	"crimestats-chat/internal/model"
	"crimestats-chat/pkg/logger"
)

// Pipeline 串起 FrameParser -> Decode -> Reducer，每次处理一个网络分块
type Pipeline struct {
	parser  *FrameParser
	reducer *Reducer
}

func NewPipeline(tracker SessionTracker, predicate CompletenessPredicate) *Pipeline {
	return &Pipeline{
		parser:  NewFrameParser(predicate),
		reducer: NewReducer(tracker),
	}
}

func (p *Pipeline) Feed(chunk []byte) []model.RenderOp {
	if p.reducer.Terminated() {
		return nil
	}

	var ops []model.RenderOp
	for _, event := range Decode(p.parser.PushBytes(chunk)) {
		ops = append(ops, p.reducer.Apply(event)...)
		if p.reducer.Terminated() {
			break
		}
	}
	return ops
}

func (p *Pipeline) Terminated() bool {
	return p.reducer.Terminated()
}

// Close 丢弃未完成的帧并返回终态结果
func (p *Pipeline) Close() model.StreamResult {
	if rest := p.parser.Close(); strings.TrimSpace(rest) != "" {
		logger.Debugf("discarding %d bytes of unterminated frame data", len(rest))
	}
	return p.reducer.Close()
}
