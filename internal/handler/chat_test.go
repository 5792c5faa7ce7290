package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crimestats-chat/internal/client"
	"crimestats-chat/internal/config"
	"crimestats-chat/internal/model"
	"crimestats-chat/internal/service"
	"crimestats-chat/internal/stream"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingModel struct{}

func (failingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return nil, assert.AnError
}

func (failingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, assert.AnError
}

func setupServer(t *testing.T, chatModel einoModel.BaseChatModel) (*httptest.Server, *service.ChatService) {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.HeartbeatInterval = time.Millisecond

	if chatModel == nil {
		chatModel, err = model.NewChatModel(context.Background(), cfg)
		require.NoError(t, err)
	}

	store, err := service.NewStorage(cfg.Storage)
	require.NoError(t, err)
	chatService := service.NewChatService(store, service.NewResponder(chatModel, cfg.Agent), cfg)

	server := httptest.NewServer(NewRouter(cfg, NewChatHandler(chatService, cfg.Server)))
	t.Cleanup(server.Close)
	return server, chatService
}

func postStream(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStreamChat(t *testing.T) {
	t.Run("should stream frames the widget pipeline understands", func(t *testing.T) {
		server, chatService := setupServer(t, nil)

		resp := postStream(t, server.URL, `{"query": "burglary"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var adopted []string
		tracker := &sessionRecorder{adopt: func(id string) { adopted = append(adopted, id) }}
		pipeline := stream.NewPipeline(tracker, nil)
		ops := pipeline.Feed(raw)
		result := pipeline.Close()

		assert.Equal(t, "You asked: **burglary**", result.Message)
		assert.NotEmpty(t, result.Source)
		assert.False(t, result.IsErrorPlaceholder)
		require.Len(t, adopted, 1)

		require.NotEmpty(t, ops)
		assert.Equal(t, model.OpClearPlaceholder, ops[0].Kind)
		assert.Equal(t, model.ContentUpdate, ops[1].Block.Type)

		messages, err := chatService.GetSessionMessages(adopted[0])
		require.NoError(t, err)
		assert.Len(t, messages, 2)
	})

	t.Run("should resume a known session", func(t *testing.T) {
		server, chatService := setupServer(t, nil)
		session, err := chatService.CreateSession("existing")
		require.NoError(t, err)

		resp := postStream(t, server.URL, `{"query": "again", "session_id": "`+session.ID+`"}`)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Contains(t, string(raw), `"session_id":"`+session.ID+`"`)
	})

	t.Run("should reject requests without a query", func(t *testing.T) {
		server, _ := setupServer(t, nil)

		resp := postStream(t, server.URL, `{"session_id": "x"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should send an error frame when the model fails", func(t *testing.T) {
		server, _ := setupServer(t, failingModel{})

		resp := postStream(t, server.URL, `{"query": "hi"}`)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		events := stream.Decode(string(raw))
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, model.EventError, last.Kind)

		pipeline := stream.NewPipeline(nil, nil)
		pipeline.Feed(raw)
		assert.Equal(t, model.ErrorNotice, pipeline.Close().Message)
	})
}

func TestConversationAgainstServer(t *testing.T) {
	server, _ := setupServer(t, nil)

	conversation := service.NewConversation(client.NewStreamClient(server.URL+"/stream", 0), nil, &config.WidgetConfig{ReadBufferSize: 16})

	first, ok := conversation.Submit(context.Background(), "theft in May")
	require.True(t, ok)
	assert.Equal(t, "You asked: **theft in May**", first.Content)
	sessionID := conversation.SessionID()
	require.NotEmpty(t, sessionID)

	second, ok := conversation.Submit(context.Background(), "and June?")
	require.True(t, ok)
	assert.Equal(t, "You asked: **and June?**", second.Content)
	assert.Equal(t, sessionID, conversation.SessionID())
	assert.Len(t, conversation.State().Messages, 4)
}

func TestSessionRoutes(t *testing.T) {
	server, chatService := setupServer(t, nil)
	session, err := chatService.CreateSession("robbery stats")
	require.NoError(t, err)

	t.Run("should list sessions", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/chat/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Sessions []model.SessionResponse `json:"sessions"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Sessions, 1)
		assert.Equal(t, "robbery stats", body.Sessions[0].Title)
	})

	t.Run("should return 404 for unknown sessions", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/chat/session/unknown")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should rename and delete a session", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/chat/session/"+session.ID, strings.NewReader(`{"title": "renamed"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		stored, err := chatService.GetSession(session.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", stored.Title)

		req, err = http.NewRequest(http.MethodDelete, server.URL+"/api/chat/session/"+session.ID, nil)
		require.NoError(t, err)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("should answer health checks", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

type sessionRecorder struct {
	id    string
	adopt func(id string)
}

func (r *sessionRecorder) SessionID() string {
	return r.id
}

func (r *sessionRecorder) AdoptSessionID(id string) {
	r.id = id
	r.adopt(id)
}
