package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"crimestats-chat/internal/config"
	"crimestats-chat/internal/model"
	"crimestats-chat/internal/storage"
	"crimestats-chat/pkg/logger"

	"github.com/google/uuid"
)

const defaultTitlePrefix = "New conversation"

// ChatService 会话管理和回答流水线
type ChatService struct {
	storage   storage.Storage
	responder *Responder
	agent     config.AgentConfig
	session   config.SessionConfig
}

func NewChatService(store storage.Storage, responder *Responder, cfg *config.Config) *ChatService {
	return &ChatService{
		storage:   store,
		responder: responder,
		agent:     cfg.Agent,
		session:   cfg.Session,
	}
}

// NewStorage 目前只有内存存储
func NewStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "", "memory":
		store := storage.NewMemoryStorage()
		if err := store.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func (s *ChatService) CreateSession(title string) (*model.Session, error) {
	if title == "" {
		title = defaultTitlePrefix + " " + time.Now().Format("2006-01-02 15:04")
	}

	now := time.Now()
	session := &model.Session{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  make([]model.StoredMessage, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// EnsureSession 没带 session id 或者 session 已过期时新建一个
func (s *ChatService) EnsureSession(sessionID string) (*model.Session, error) {
	if sessionID != "" {
		session, err := s.storage.GetSession(sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, storage.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		logger.Infof("session %s not found, starting a new one", sessionID)
	}
	return s.CreateSession("")
}

func (s *ChatService) GetSession(sessionID string) (*model.Session, error) {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return session, nil
}

func (s *ChatService) GetSessionMessages(sessionID string) ([]model.StoredMessage, error) {
	messages, err := s.storage.GetMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages of %s: %w", sessionID, err)
	}
	return messages, nil
}

func (s *ChatService) AddMessage(sessionID, role, content, source string) (*model.StoredMessage, error) {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	message := &model.StoredMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Source:    source,
		Timestamp: time.Now(),
	}

	if err := s.storage.AddMessage(sessionID, message); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	// 第一条用户消息作为默认标题
	if role == model.StoredRoleUser && len(session.Messages) == 0 && strings.HasPrefix(session.Title, defaultTitlePrefix) {
		if err := s.UpdateSessionTitle(sessionID, truncateString(content, 30)); err != nil {
			logger.Warnf("failed to retitle session %s: %v", sessionID, err)
		}
	}

	return message, nil
}

func (s *ChatService) UpdateSessionTitle(sessionID, title string) error {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	session.Title = title
	session.UpdatedAt = time.Now()

	if err := s.storage.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *ChatService) GetAllSessions() ([]*model.Session, error) {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *ChatService) DeleteSession(sessionID string) error {
	if err := s.storage.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *ChatService) ClearAllSessions() error {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, session := range sessions {
		if err := s.storage.DeleteSession(session.ID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			logger.Errorf("Failed to delete session %s: %v", session.ID, err)
		}
	}
	return nil
}

// StreamChat 依次产出：一条 update 进度事件、若干 message 分块、最后一条 end。
// 出错时 error channel 收到错误，事件 channel 关闭。
func (s *ChatService) StreamChat(ctx context.Context, sessionID, query string) (<-chan model.StreamEvent, <-chan error) {
	events := make(chan model.StreamEvent, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if err := s.streamChat(ctx, sessionID, query, events); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

func (s *ChatService) streamChat(ctx context.Context, sessionID, query string, events chan<- model.StreamEvent) error {
	send := func(event model.StreamEvent) error {
		select {
		case events <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	history, err := s.storage.GetMessages(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if _, err := s.AddMessage(sessionID, model.StoredRoleUser, query, ""); err != nil {
		return err
	}

	if s.agent.ProgressMessage != "" {
		if err := send(model.StreamEvent{
			Kind:    model.EventData,
			Content: s.agent.ProgressMessage,
			Type:    model.ContentUpdate,
		}); err != nil {
			return err
		}
	}

	sr, err := s.responder.Stream(ctx, history, query)
	if err != nil {
		return err
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("model stream failed: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		answer.WriteString(chunk.Content)
		if err := send(model.StreamEvent{
			Kind:    model.EventData,
			Content: chunk.Content,
			Type:    model.ContentMessage,
		}); err != nil {
			return err
		}
	}

	if answer.Len() > 0 {
		if _, err := s.AddMessage(sessionID, model.StoredRoleAssistant, answer.String(), s.agent.SourceNote); err != nil {
			logger.Errorf("Failed to save assistant message: %v", err)
		}
	}

	return send(model.StreamEvent{
		Kind:   model.EventEnd,
		Source: s.agent.SourceNote,
	})
}

// StartCleanup 定期删除过期会话，ctx 取消后退出
func (s *ChatService) StartCleanup(ctx context.Context) {
	if s.session.CleanupInterval <= 0 || s.session.TTL <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.session.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.CleanupExpired(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *ChatService) CleanupExpired(now time.Time) int {
	deleted, err := s.storage.DeleteExpired(now.Add(-s.session.TTL))
	if err != nil {
		logger.Errorf("Failed to clean up expired sessions: %v", err)
		return 0
	}
	if deleted > 0 {
		logger.Infof("Cleaned up %d expired sessions", deleted)
	}
	return deleted
}

func truncateString(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}
