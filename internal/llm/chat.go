// Package llm builds the chat model shared by the generation stages and
// provides the prompt-to-text plumbing around it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"deckflow/internal/config"
)

// ErrEmptyReply is returned when the model answers with no content.
var ErrEmptyReply = errors.New("empty chat content")

// NewChatModel returns the configured chat model. The mock provider needs no
// network access and produces deterministic replies.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	if cfg.Provider == "mock" {
		return NewMockChatModel(), nil
	}
	temperature := cfg.Temperature
	timeout := cfg.Timeout
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		Model:       cfg.Model,
		Timeout:     &timeout,
		Temperature: &temperature,
		HTTPClient:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return chatModel, nil
}

// Completer runs a system+user template through a chat model. Templates use
// Go template syntax so literal braces in instructions are safe.
type Completer struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
}

// NewCompleter compiles a template -> model chain.
func NewCompleter(ctx context.Context, chat model.BaseChatModel, system, user string) (*Completer, error) {
	if chat == nil {
		return nil, errors.New("nil chat model")
	}
	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(tpl).AppendChatModel(chat)
	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chain: %w", err)
	}
	return &Completer{runnable: runnable}, nil
}

// Complete formats the template with vars and returns the model's text reply.
func (c *Completer) Complete(ctx context.Context, vars map[string]any) (string, error) {
	msg, err := c.runnable.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("chain invocation failed: %w", err)
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// Generate sends pre-built messages straight to the model. Used for
// multimodal inputs that do not fit a text template.
func Generate(ctx context.Context, chat model.BaseChatModel, msgs []*schema.Message) (string, error) {
	msg, err := chat.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// StripFences removes a surrounding ```lang ... ``` block if present.
func StripFences(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 {
		cleaned = cleaned[nl+1:]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// DecodeJSON strips code fences and unmarshals the model output into out.
func DecodeJSON(content string, out any) error {
	cleaned := StripFences(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("failed to unmarshal model output: %w, raw: %s", err, cleaned)
	}
	return nil
}
