package model

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"crimestats-chat/internal/config"
	"crimestats-chat/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	ProviderEcho   = "echo"
	ProviderOpenAI = "openai"
	ProviderDoubao = "doubao"
	ProviderQwen   = "qwen"
)

// NewChatModel 按配置的 provider 创建流式聊天模型
func NewChatModel(ctx context.Context, cfg *config.Config) (einoModel.BaseChatModel, error) {
	switch cfg.Model.Provider {
	case "", ProviderEcho:
		logger.Info("Using offline echo model")
		return newEchoChatModel(), nil
	case ProviderDoubao, "ark":
		return createDoubaoModel(ctx, cfg.Doubao)
	case ProviderOpenAI:
		return createOpenAIModel(ctx, cfg.OpenAI)
	case ProviderQwen:
		return createQwenModel(ctx, cfg.Qwen)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Model.Provider)
	}
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.BaseChatModel, error) {
	logger.WithFields(logger.Fields{
		"api_key": maskKey(cfg.APIKey),
		"model":   cfg.Model,
	}).Info("Using Doubao model")

	arkConfig := &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	if cfg.BaseURL != "" {
		arkConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		arkConfig.Timeout = &cfg.Timeout
	}

	chatModel, err := ark.NewChatModel(ctx, arkConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Doubao model: %w", err)
	}
	return chatModel, nil
}

func createOpenAIModel(ctx context.Context, cfg config.OpenAIConfig) (einoModel.BaseChatModel, error) {
	logger.WithFields(logger.Fields{
		"api_key":  maskKey(cfg.APIKey),
		"model":    cfg.Model,
		"base_url": cfg.BaseURL,
	}).Info("Using OpenAI model")

	chatModel, err := newOpenAIChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.BaseChatModel, error) {
	logger.WithFields(logger.Fields{
		"api_key":  maskKey(cfg.APIKey),
		"model":    cfg.Model,
		"base_url": cfg.BaseURL,
		"debug":    cfg.DebugRequest,
	}).Info("Using Qwen model")

	// 带请求日志的 HTTPClient，debug_request 关闭时只透传
	httpClient := &http.Client{
		Transport: NewDebugTransport(nil, "qwen", cfg.DebugRequest),
		Timeout:   cfg.Timeout,
	}

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qwen model: %w", err)
	}
	return chatModel, nil
}

func maskKey(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	if key == "" {
		return "(empty)"
	}
	return "***"
}

// echoChatModel 离线模型：不调用任何外部服务，按词流式复述问题。
// 用于本地开发和测试。
type echoChatModel struct{}

func newEchoChatModel() *echoChatModel {
	return &echoChatModel{}
}

func (m *echoChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply(messages), nil), nil
}

func (m *echoChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	words := strings.SplitAfter(m.reply(messages), " ")
	chunks := make([]*schema.Message, 0, len(words))
	for _, word := range words {
		if word == "" {
			continue
		}
		chunks = append(chunks, schema.AssistantMessage(word, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (m *echoChatModel) reply(messages []*schema.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == schema.User {
			return "You asked: **" + strings.TrimSpace(messages[i].Content) + "**"
		}
	}
	return "Ask me about the crime statistics."
}
