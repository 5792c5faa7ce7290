package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crimestats-chat/internal/config"
	"crimestats-chat/internal/model"
	"crimestats-chat/internal/service"
	"crimestats-chat/internal/storage"
	"crimestats-chat/internal/utils"
	"crimestats-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService       *service.ChatService
	heartbeatInterval time.Duration
	streamTimeout     time.Duration
}

func NewChatHandler(chatService *service.ChatService, cfg config.ServerConfig) *ChatHandler {
	return &ChatHandler{
		chatService:       chatService,
		heartbeatInterval: cfg.HeartbeatInterval,
		streamTimeout:     cfg.StreamTimeout,
	}
}

// StreamChat POST /stream，响应体是连续的事件帧
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.chatService.EnsureSession(req.SessionID)
	if err != nil {
		logger.Errorf("Failed to prepare session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.WithFields(logger.Fields{
		"session_id": session.ID,
		"resumed":    session.ID == req.SessionID,
	}).Info("stream request received")

	writer := utils.NewFrameWriter(c.Writer, session.ID)
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	if h.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.streamTimeout)
		defer cancel()
	}

	// 心跳帧防止空闲连接被中间层断开，客户端按未知事件丢弃
	if h.heartbeatInterval > 0 {
		heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			h.heartbeat(heartbeatCtx, writer)
		}()
		// handler 返回后 gin 会复用 ResponseWriter，必须等心跳 goroutine 退出
		defer func() {
			stopHeartbeat()
			<-done
		}()
	}

	events, errs := h.chatService.StreamChat(ctx, session.ID, req.Query)

	for event := range events {
		if err := writeEvent(writer, event); err != nil {
			logger.Warnf("Failed to write frame, client probably went away: %v", err)
			return
		}
	}

	if err := <-errs; err != nil {
		logger.Errorf("Stream for session %s failed: %v", session.ID, err)

		errType := "service_error"
		if errors.Is(err, context.DeadlineExceeded) {
			errType = "timeout"
		}
		if writeErr := writer.Write(string(model.EventError), model.ErrorPayload{
			Error:     err.Error(),
			Type:      errType,
			Timestamp: time.Now().Unix(),
		}); writeErr != nil {
			logger.Warnf("Failed to write error frame: %v", writeErr)
		}
	}
}

func (h *ChatHandler) heartbeat(ctx context.Context, writer *utils.FrameWriter) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := writer.Heartbeat(); err != nil {
				logger.Warnf("heartbeat failed: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(writer *utils.FrameWriter, event model.StreamEvent) error {
	switch event.Kind {
	case model.EventEnd:
		return writer.Write(string(model.EventEnd), model.EndPayload{
			Source:  event.Source,
			Example: event.Example,
		})
	default:
		return writer.Write(string(model.EventData), model.DataPayload{
			Content: event.Content,
			Type:    event.Type,
		})
	}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	// 允许空的请求体，使用默认标题
	_ = c.ShouldBindJSON(&req)

	session, err := h.chatService.CreateSession(req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session.ToResponse())
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	session, err := h.chatService.GetSession(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.ToResponse())
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	sessionID := c.Param("session_id")

	messages, err := h.chatService.GetSessionMessages(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (h *ChatHandler) GetSessionList(c *gin.Context) {
	sessions, err := h.chatService.GetAllSessions()
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]model.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, session.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": result,
	})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.chatService.DeleteSession(c.Param("session_id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *ChatHandler) ClearAllSessions(c *gin.Context) {
	if err := h.chatService.ClearAllSessions(); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All sessions cleared successfully"})
}

func (h *ChatHandler) UpdateSessionTitle(c *gin.Context) {
	var req model.UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chatService.UpdateSessionTitle(c.Param("session_id"), req.Title); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Title updated successfully"})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrSessionNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
