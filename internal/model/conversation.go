package model

import "strings"

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// 固定的用户可见提示文案
const (
	ErrorNotice          = "Sorry, something went wrong while generating a response. Please try again."
	TransportErrorNotice = "Sorry, the assistant could not be reached. Please try again later."
	NoResponseNotice     = "No response was received. Please try rephrasing your question."
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`          // markdown 源文本，渲染前必须经过清洗
	Source  string `json:"source,omitempty"` // 可选的来源说明，仅部分 bot 消息携带
}

func NewUserMessage(content string) Message {
	return Message{
		Role:    RoleUser,
		Content: strings.TrimSpace(content),
	}
}

func NewBotMessage(content, source string) Message {
	return Message{
		Role:    RoleBot,
		Content: content,
		Source:  source,
	}
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

func (m Message) IsBot() bool {
	return m.Role == RoleBot
}

func (m Message) HasSource() bool {
	return strings.TrimSpace(m.Source) != ""
}

// ConversationState 每个打开的聊天窗口一份
type ConversationState struct {
	Messages         []Message `json:"messages"`
	SessionID        string    `json:"session_id,omitempty"` // 空字符串表示服务端尚未下发
	AwaitingResponse bool      `json:"awaiting_response"`
}

func NewConversationState() ConversationState {
	return ConversationState{
		Messages: make([]Message, 0),
	}
}

func (s ConversationState) HasSession() bool {
	return s.SessionID != ""
}

// Clone 返回一份不与原状态共享底层数组的拷贝
func (s ConversationState) Clone() ConversationState {
	messages := make([]Message, len(s.Messages))
	copy(messages, s.Messages)
	return ConversationState{
		Messages:         messages,
		SessionID:        s.SessionID,
		AwaitingResponse: s.AwaitingResponse,
	}
}

func (s ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
