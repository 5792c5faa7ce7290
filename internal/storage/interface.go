package storage

import (
	"time"

	"crimestats-chat/internal/model"
)

// Storage 会话与历史消息的存储。返回值都是拷贝，调用方修改后需要 UpdateSession 写回。
type Storage interface {
	// 会话管理
	CreateSession(session *model.Session) error
	GetSession(sessionID string) (*model.Session, error)
	UpdateSession(session *model.Session) error
	DeleteSession(sessionID string) error
	ListSessions() ([]*model.Session, error)
	// DeleteExpired 删除 UpdatedAt 早于 cutoff 的会话，返回删除数量
	DeleteExpired(cutoff time.Time) (int, error)

	// 消息管理
	AddMessage(sessionID string, message *model.StoredMessage) error
	GetMessages(sessionID string) ([]model.StoredMessage, error)
	UpdateMessage(sessionID string, message *model.StoredMessage) error

	Init() error
	Close() error
}
