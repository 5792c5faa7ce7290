package model

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"crimestats-chat/pkg/logger"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const redacted = "[REDACTED]"

var (
	sensitiveHeaders = []string{"Authorization", "X-Api-Key", "X-Auth-Token", "Cookie"}
	sensitiveFields  = []string{"api_key", "apiKey", "password", "secret", "token"}
)

// DebugTransport 记录发往模型服务的请求，敏感头和字段会被替换
type DebugTransport struct {
	base     http.RoundTripper
	provider string
	enabled  bool
}

func NewDebugTransport(base http.RoundTripper, provider string, enabled bool) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{
		base:     base,
		provider: provider,
		enabled:  enabled,
	}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.enabled {
		logger.WithFields(logger.Fields{"provider": t.provider}).Errorf("model request failed: %v", err)
	}
	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	fields := logger.Fields{
		"provider": t.provider,
		"method":   req.Method,
		"url":      req.URL.String(),
		"headers":  redactHeaders(req.Header),
	}

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Errorf("failed to read %s request body: %v", t.provider, err)
			return
		}
		// 恢复请求体，以免影响实际请求
		req.Body = io.NopCloser(bytes.NewReader(body))

		fields["body"] = string(RedactJSON(body))
		fields["body_size"] = len(body)
	}

	logger.WithFields(fields).Info("model request")
}

func redactHeaders(header http.Header) map[string]string {
	result := make(map[string]string, len(header))
	for name, values := range header {
		value := strings.Join(values, ", ")
		for _, sensitive := range sensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				value = redacted
				break
			}
		}
		result[name] = value
	}
	return result
}

// RedactJSON 替换顶层敏感字段的值；非 JSON 内容原样返回
func RedactJSON(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	for _, field := range sensitiveFields {
		if !gjson.GetBytes(body, field).Exists() {
			continue
		}
		if updated, err := sjson.SetBytes(body, field, redacted); err == nil {
			body = updated
		}
	}
	return body
}
