package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"crimestats-chat/internal/config"
	"crimestats-chat/internal/model"
	"crimestats-chat/internal/render"
	"crimestats-chat/internal/stream"
	"crimestats-chat/pkg/logger"
)

const defaultReadSize = 4096

// Transport 打开一次响应流；client.StreamClient 是默认实现
type Transport interface {
	OpenStream(ctx context.Context, req model.StreamRequest) (io.ReadCloser, error)
}

// Conversation 一个聊天窗口的控制器。同一时间最多只有一个响应周期在进行，
// 期间的新提交直接丢弃，不排队。
type Conversation struct {
	mu          sync.Mutex
	state       model.ConversationState
	generation  int                // Reset 时递增，旧周期的结果不再写回新对话
	cancelCycle context.CancelFunc // 当前响应周期的取消函数，Reset 时调用

	transport Transport
	display   render.Display
	predicate stream.CompletenessPredicate
	readSize  int
}

func NewConversation(transport Transport, display render.Display, cfg *config.WidgetConfig) *Conversation {
	if display == nil {
		display = render.NopDisplay{}
	}

	c := &Conversation{
		state:     model.NewConversationState(),
		transport: transport,
		display:   display,
		readSize:  defaultReadSize,
	}

	if cfg != nil {
		if cfg.ReadBufferSize > 0 {
			c.readSize = cfg.ReadBufferSize
		}
		if cfg.StrictFrames {
			c.predicate = stream.BalancedPayloadPredicate
		}
	}
	return c
}

// Submit 发送一条用户消息并阻塞到本次响应结束。
// 空白输入或已有响应在进行时返回 false，状态不变。
func (c *Conversation) Submit(ctx context.Context, text string) (model.Message, bool) {
	c.mu.Lock()
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return model.Message{}, false
	}
	if c.state.AwaitingResponse {
		c.mu.Unlock()
		logger.Debug("submit dropped, a response is still streaming")
		return model.Message{}, false
	}

	userMessage := model.NewUserMessage(text)
	c.state.Messages = append(c.state.Messages, userMessage)
	c.state.AwaitingResponse = true
	generation := c.generation
	req := model.StreamRequest{
		Query:     userMessage.Content,
		SessionID: c.state.SessionID,
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	c.cancelCycle = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.generation == generation {
			c.state.AwaitingResponse = false
			c.cancelCycle = nil
		}
		c.mu.Unlock()
	}()

	c.display.AppendMessage(userMessage)
	c.display.ShowPlaceholder()

	result := c.receive(cycleCtx, req, generation)
	content := result.Message
	if content == "" {
		content = model.NoResponseNotice
	}
	botMessage := model.NewBotMessage(content, result.Source)

	c.mu.Lock()
	current := c.generation == generation
	if current {
		c.state.Messages = append(c.state.Messages, botMessage)
	}
	c.mu.Unlock()

	if current {
		c.display.Finalize(botMessage)
	}
	return botMessage, true
}

// receive 逐块读取响应体并驱动解析流水线，直到终止事件或流结束
// 周期被 Reset 放弃后立即停止读取并关闭响应体，返回零值结果。
func (c *Conversation) receive(ctx context.Context, req model.StreamRequest, generation int) model.StreamResult {
	body, err := c.transport.OpenStream(ctx, req)
	if err != nil {
		if !c.isCurrent(generation) {
			return model.StreamResult{}
		}
		logger.Warnf("failed to open response stream: %v", err)
		return model.StreamResult{Message: model.TransportErrorNotice, IsErrorPlaceholder: true}
	}
	defer body.Close()

	pipeline := stream.NewPipeline(&cycleTracker{conversation: c, generation: generation}, c.predicate)
	buf := make([]byte, c.readSize)

	for !pipeline.Terminated() {
		n, err := body.Read(buf)
		if n > 0 && !c.apply(generation, pipeline.Feed(buf[:n])) {
			logger.Debug("conversation was reset, abandoning response stream")
			return model.StreamResult{}
		}
		if err != nil && !c.isCurrent(generation) {
			return model.StreamResult{}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if pipeline.Terminated() {
				break
			}
			logger.Warnf("response stream interrupted: %v", err)
			pipeline.Close()
			return model.StreamResult{Message: model.TransportErrorNotice, IsErrorPlaceholder: true}
		}
	}

	return pipeline.Close()
}

// apply 在持锁状态下渲染，保证 Reset 之后旧周期的内容不会出现在新对话里
func (c *Conversation) apply(generation int, ops []model.RenderOp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return false
	}
	render.Apply(c.display, ops)
	return true
}

func (c *Conversation) isCurrent(generation int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == generation
}

// Reset 开始新的对话：清空消息和 session id，取消进行中的响应周期
func (c *Conversation) Reset() {
	c.mu.Lock()
	if c.cancelCycle != nil {
		c.cancelCycle()
		c.cancelCycle = nil
	}
	c.state = model.NewConversationState()
	c.generation++
	c.mu.Unlock()

	c.display.Reset()
}

func (c *Conversation) State() model.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SessionID
}

func (c *Conversation) AdoptSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adoptLocked(id)
}

func (c *Conversation) adoptLocked(id string) {
	if c.state.SessionID != id {
		logger.WithFields(logger.Fields{"session_id": id}).Info("adopted session id from stream")
	}
	c.state.SessionID = id
}

// cycleTracker 把一个响应周期内的 session id 更新限定在发起它的那次对话上
type cycleTracker struct {
	conversation *Conversation
	generation   int
}

func (t *cycleTracker) SessionID() string {
	return t.conversation.SessionID()
}

func (t *cycleTracker) AdoptSessionID(id string) {
	c := t.conversation
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != t.generation {
		logger.Debugf("ignoring session id %s from a reset conversation", id)
		return
	}
	c.adoptLocked(id)
}
