package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tidwall/sjson"
)

// FrameWriter 按 "event: <kind>\npayload: <json>\n\n" 的格式写出事件帧
type FrameWriter struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	sessionID string
}

func NewFrameWriter(w http.ResponseWriter, sessionID string) *FrameWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &FrameWriter{w: w, sessionID: sessionID}
}

// Write payload 会被序列化成单行 JSON，并补上 session_id
func (f *FrameWriter) Write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return f.WriteRaw(event, data)
}

func (f *FrameWriter) WriteRaw(event string, data []byte) error {
	if f.sessionID != "" && len(data) > 0 && data[0] == '{' {
		var err error
		data, err = sjson.SetBytes(data, "session_id", f.sessionID)
		if err != nil {
			return fmt.Errorf("failed to set session id: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := fmt.Fprintf(f.w, "event: %s\npayload: %s\n\n", event, data); err != nil {
		return err
	}

	if flusher, ok := f.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// Heartbeat 客户端不认识的事件类型，只用来保活
func (f *FrameWriter) Heartbeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := fmt.Fprint(f.w, "event: heartbeat\npayload: {}\n\n"); err != nil {
		return err
	}
	if flusher, ok := f.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
