package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crimestats-chat/internal/model"
	"crimestats-chat/internal/utils"
	"crimestats-chat/pkg/logger"
)

const maxErrorBody = 512

// StatusError 服务端返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("stream request failed with status %d: %s", e.StatusCode, e.Body)
}

// StreamClient 向 /stream 发起请求，返回原始的分块响应体
type StreamClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewStreamClient timeout 为 0 表示不设超时
func NewStreamClient(endpoint string, timeout time.Duration) *StreamClient {
	return &StreamClient{
		endpoint:   endpoint,
		httpClient: utils.NewHTTPClient(timeout),
	}
}

func NewStreamClientWithHTTP(endpoint string, httpClient *http.Client) *StreamClient {
	return &StreamClient{endpoint: endpoint, httpClient: httpClient}
}

func (c *StreamClient) OpenStream(ctx context.Context, req model.StreamRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	logger.WithFields(logger.Fields{
		"endpoint":    c.endpoint,
		"has_session": req.SessionID != "",
	}).Debug("opening stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send stream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	return resp.Body, nil
}
