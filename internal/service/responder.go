package service

import (
	"context"
	"fmt"
	"strings"

	"crimestats-chat/internal/config"
	"crimestats-chat/internal/model"
	"crimestats-chat/pkg/logger"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Responder 组装提示词并从模型流式取回答案
type Responder struct {
	chatModel  einoModel.BaseChatModel
	template   prompt.ChatTemplate
	maxHistory int
}

func NewResponder(chatModel einoModel.BaseChatModel, cfg config.AgentConfig) *Responder {
	return &Responder{
		chatModel:  chatModel,
		template:   newAssistantPrompt(cfg.SystemPrompt),
		maxHistory: cfg.MaxHistoryMessages,
	}
}

func newAssistantPrompt(systemPrompt string) prompt.ChatTemplate {
	// FString 模板里的花括号需要转义
	systemPrompt = strings.NewReplacer("{", "{{", "}", "}}").Replace(systemPrompt)

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("message_histories", true),
		schema.UserMessage("{user_query}"),
	)
}

// Stream history 不包含本轮的 query
func (r *Responder) Stream(ctx context.Context, history []model.StoredMessage, query string) (*schema.StreamReader[*schema.Message], error) {
	messages, err := r.template.Format(ctx, map[string]any{
		"message_histories": historyMessages(history, r.maxHistory),
		"user_query":        query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}

	logger.Debugf("sending %d prompt messages to the model", len(messages))

	sr, err := r.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to stream from model: %w", err)
	}
	return sr, nil
}

// historyMessages 取最近的 maxMessages 条消息；空内容的消息跳过
func historyMessages(messages []model.StoredMessage, maxMessages int) []*schema.Message {
	start := 0
	if maxMessages > 0 && len(messages) > maxMessages {
		start = len(messages) - maxMessages
	}

	result := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		if msg.Content == "" {
			continue
		}
		if msg.Role == model.StoredRoleAssistant {
			result = append(result, schema.AssistantMessage(msg.Content, nil))
		} else {
			result = append(result, schema.UserMessage(msg.Content))
		}
	}
	return result
}
