package model

import "time"

// DataPayload event: data 的 payload
type DataPayload struct {
	Content   string      `json:"content"`
	Type      ContentType `json:"type"`                 // message | update
	SessionID string      `json:"session_id,omitempty"`
	Error     bool        `json:"error,omitempty"`      // 流内错误标记
}

// EndPayload event: end 的 payload
type EndPayload struct {
	Source    string `json:"source,omitempty"`
	Example   bool   `json:"example"`
	SessionID string `json:"session_id,omitempty"`
}

// ErrorPayload event: error 的 payload
type ErrorPayload struct {
	Error     string `json:"error"`
	Type      string `json:"type,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

const (
	StoredRoleUser      = "user"
	StoredRoleAssistant = "assistant"
)

type StoredMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []StoredMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Session) ToResponse() SessionResponse {
	return SessionResponse{
		SessionID:    s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
	}
}

// StreamEvent 服务层产出、由 handler 写成帧的事件
type StreamEvent struct {
	Kind    EventKind
	Content string
	Type    ContentType
	Source  string
	Example bool
}
