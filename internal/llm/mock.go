package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockChatModel answers without a network call. It recognises the outline and
// slide-copy prompts by their markers and echoes a condensed digest otherwise.
type MockChatModel struct{}

func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	var system, user string
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			system = msg.Content
		case schema.User:
			user = msg.Content
		}
	}

	var content string
	switch {
	case strings.Contains(system, "presentation outline"):
		content = mockOutline(user)
	case strings.Contains(system, "slide copy"):
		content = mockCopy(user)
	default:
		content = condense(user, 800)
	}
	if content == "" {
		content = "No content."
	}
	return schema.AssistantMessage(content, nil), nil
}

func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("mock chat model does not stream")
}

var _ model.BaseChatModel = (*MockChatModel)(nil)

func field(text, key string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, key+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, key+":"))
		}
	}
	return ""
}

func mockOutline(user string) string {
	topic := field(user, "Topic")
	if topic == "" {
		topic = "Untitled"
	}
	n, err := strconv.Atoi(field(user, "Slides"))
	if err != nil || n < 4 {
		n = 6
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Slide 1: %s\n- An overview of %s\n\n", topic, topic)
	fmt.Fprintf(&b, "Slide 2: Table of Contents\n\n")
	for i := 3; i < n; i++ {
		fmt.Fprintf(&b, "Slide %d: %s part %d\n- Key idea %d about %s\n- Supporting detail\n\n", i, topic, i-2, i-2, topic)
	}
	fmt.Fprintf(&b, "Slide %d: Thank You\n- Questions?\n", n)
	return b.String()
}

func mockCopy(user string) string {
	var points []string
	for _, line := range strings.Split(user, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			points = append(points, strings.TrimPrefix(line, "- "))
		}
	}
	out := map[string]any{
		"title":  field(user, "Title"),
		"points": points,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func condense(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}
