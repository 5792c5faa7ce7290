package stream

import (
	"encoding/json"
	"testing"

	"crimestats-chat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	id      string
	adopted []string
}

func (f *fakeTracker) SessionID() string {
	return f.id
}

func (f *fakeTracker) AdoptSessionID(id string) {
	f.id = id
	f.adopted = append(f.adopted, id)
}

func dataEvent(payload string) model.DecodedEvent {
	return model.DecodedEvent{Kind: model.EventData, Payload: json.RawMessage(payload)}
}

func endEvent(payload string) model.DecodedEvent {
	return model.DecodedEvent{Kind: model.EventEnd, Payload: json.RawMessage(payload)}
}

func blocks(ops []model.RenderOp) []model.Block {
	var result []model.Block
	for _, op := range ops {
		if op.Kind == model.OpAppendBlock {
			result = append(result, op.Block)
		}
	}
	return result
}

func TestReducer(t *testing.T) {
	t.Run("should accumulate message blocks and take source from end", func(t *testing.T) {
		r := NewReducer(nil)

		r.Apply(dataEvent(`{"content": "Hello ", "type": "message"}`))
		r.Apply(dataEvent(`{"content": "world", "type": "message"}`))
		r.Apply(endEvent(`{"source": "S"}`))

		require.True(t, r.Terminated())
		assert.Equal(t, model.StreamResult{Message: "Hello world", Source: "S"}, r.Result())
	})

	t.Run("should clear the placeholder only once", func(t *testing.T) {
		r := NewReducer(nil)

		first := r.Apply(dataEvent(`{"content": "a"}`))
		second := r.Apply(dataEvent(`{"content": "b"}`))

		require.NotEmpty(t, first)
		assert.Equal(t, model.OpClearPlaceholder, first[0].Kind)
		for _, op := range second {
			assert.NotEqual(t, model.OpClearPlaceholder, op.Kind)
		}
	})

	t.Run("should render update blocks without accumulating them", func(t *testing.T) {
		r := NewReducer(nil)

		ops := r.Apply(dataEvent(`{"content": "Searching...", "type": "update"}`))
		r.Apply(dataEvent(`{"content": "Answer", "type": "message"}`))
		result := r.Close()

		got := blocks(ops)
		require.Len(t, got, 1)
		assert.Equal(t, model.ContentUpdate, got[0].Type)
		assert.Equal(t, "Answer", result.Message)
	})

	t.Run("should render numeric content as plain text", func(t *testing.T) {
		r := NewReducer(nil)

		got := blocks(r.Apply(dataEvent(`{"content": "42", "type": "message"}`)))
		require.Len(t, got, 1)
		assert.Equal(t, model.FormatText, got[0].Format)

		got = blocks(r.Apply(dataEvent(`{"content": "**42** thefts", "type": "message"}`)))
		require.Len(t, got, 1)
		assert.Equal(t, model.FormatMarkdown, got[0].Format)
	})

	t.Run("should fall back to message field and raw payload", func(t *testing.T) {
		r := NewReducer(nil)

		got := blocks(r.Apply(dataEvent(`{"message": "from message"}`)))
		require.Len(t, got, 1)
		assert.Equal(t, "from message", got[0].Content)

		got = blocks(r.Apply(dataEvent(`"bare string"`)))
		require.Len(t, got, 1)
		assert.Equal(t, "bare string", got[0].Content)

		got = blocks(r.Apply(dataEvent(`{"other": 1}`)))
		require.Len(t, got, 1)
		assert.Equal(t, `{"other": 1}`, got[0].Content)
		assert.Equal(t, model.ContentMessage, got[0].Type)
	})

	t.Run("should terminate on error event and ignore later events", func(t *testing.T) {
		r := NewReducer(nil)

		r.Apply(dataEvent(`{"content": "partial"}`))
		r.Apply(model.DecodedEvent{Kind: model.EventError})
		ops := r.Apply(dataEvent(`{"content": "late"}`))
		r.Apply(endEvent(`{"source": "ignored"}`))

		assert.Empty(t, ops)
		assert.Equal(t, model.StreamResult{Message: model.ErrorNotice, IsErrorPlaceholder: true}, r.Result())
		assert.Equal(t, model.StreamResult{Message: model.ErrorNotice, IsErrorPlaceholder: true}, r.Close())
	})

	t.Run("should terminate on an embedded error flag", func(t *testing.T) {
		r := NewReducer(nil)

		ops := r.Apply(dataEvent(`{"content": "boom", "error": true}`))

		assert.Empty(t, blocks(ops))
		assert.True(t, r.Terminated())
		assert.True(t, r.Result().IsErrorPlaceholder)
		assert.Equal(t, model.ErrorNotice, r.Result().Message)
	})

	t.Run("should map the example flag to the error placeholder flag", func(t *testing.T) {
		r := NewReducer(nil)

		r.Apply(dataEvent(`{"content": "sample"}`))
		r.Apply(endEvent(`{"example": true}`))

		assert.True(t, r.Result().IsErrorPlaceholder)
		assert.Equal(t, "sample", r.Result().Message)
	})

	t.Run("should return accumulated text on natural close", func(t *testing.T) {
		r := NewReducer(nil)

		r.Apply(dataEvent(`{"content": "no end frame"}`))
		result := r.Close()

		assert.Equal(t, model.StreamResult{Message: "no end frame"}, result)
		assert.Equal(t, StateTerminated, r.State())
	})

	t.Run("should ignore data events without payload", func(t *testing.T) {
		r := NewReducer(nil)

		assert.Empty(t, r.Apply(model.DecodedEvent{Kind: model.EventData}))
		assert.Equal(t, StateStreaming, r.State())
	})
}

func TestReducerSessionAdoption(t *testing.T) {
	t.Run("should adopt each distinct session id once", func(t *testing.T) {
		tracker := &fakeTracker{}
		r := NewReducer(tracker)

		r.Apply(dataEvent(`{"content": "a", "session_id": "s-1"}`))
		r.Apply(dataEvent(`{"content": "b", "session_id": "s-1"}`))
		r.Apply(endEvent(`{"session_id": "s-1"}`))

		assert.Equal(t, []string{"s-1"}, tracker.adopted)
		assert.Equal(t, "s-1", tracker.SessionID())
	})

	t.Run("should adopt from error-flagged data events", func(t *testing.T) {
		tracker := &fakeTracker{id: "old"}
		r := NewReducer(tracker)

		r.Apply(dataEvent(`{"error": true, "session_id": "new"}`))

		assert.Equal(t, []string{"new"}, tracker.adopted)
	})

	t.Run("should ignore empty or non-string ids", func(t *testing.T) {
		tracker := &fakeTracker{id: "keep"}
		r := NewReducer(tracker)

		r.Apply(dataEvent(`{"content": "a", "session_id": ""}`))
		r.Apply(dataEvent(`{"content": "b", "session_id": 7}`))

		assert.Empty(t, tracker.adopted)
		assert.Equal(t, "keep", tracker.SessionID())
	})
}

func TestPipeline(t *testing.T) {
	t.Run("should stop processing after a terminal error", func(t *testing.T) {
		tracker := &fakeTracker{}
		p := NewPipeline(tracker, nil)

		ops := p.Feed([]byte("event: data\npayload: {\"content\": \"x\", \"session_id\": \"s\"}\n\n" +
			"event: error\npayload: {\"error\": \"upstream\"}\n\n" +
			"event: data\npayload: {\"content\": \"after\", \"session_id\": \"t\"}\n\n"))

		assert.Len(t, blocks(ops), 1)
		assert.True(t, p.Terminated())
		assert.Empty(t, p.Feed([]byte("event: data\npayload: {\"content\": \"more\"}\n")))
		assert.Equal(t, []string{"s"}, tracker.adopted)
		assert.True(t, p.Close().IsErrorPlaceholder)
	})

	t.Run("should finish on close when no terminal event arrived", func(t *testing.T) {
		p := NewPipeline(nil, BalancedPayloadPredicate)

		p.Feed([]byte("event: data\npayload: {\"content\": \"Hello\"}\n"))
		p.Feed([]byte("event: end\n"))

		assert.Equal(t, model.StreamResult{Message: "Hello"}, p.Close())
	})
}
