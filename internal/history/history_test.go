// File: internal/history/history_test.go
package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	t.Run("user message with text and image", func(t *testing.T) {
		msg := NewUserMessage("hello", []byte{0xff, 0xd8})
		require.Len(t, msg.Content, 2)
		assert.Equal(t, RoleUser, msg.Role)
		assert.Equal(t, "text", msg.Content[0].Type)
		assert.Equal(t, "hello", msg.Content[0].Text)
		assert.Equal(t, "image_url", msg.Content[1].Type)
		assert.True(t, strings.HasPrefix(msg.Content[1].ImageURL.URL, "data:image/jpeg;base64,"))
	})

	t.Run("user message with image only", func(t *testing.T) {
		msg := NewUserMessage("", []byte{0x01})
		require.Len(t, msg.Content, 1)
		assert.Equal(t, "image_url", msg.Content[0].Type)
	})

	t.Run("assistant message carries tool calls", func(t *testing.T) {
		calls := []ToolCall{{ID: "1", Type: "function", Function: FunctionCall{Name: "click", Arguments: `{"mark_id":3}`}}}
		msg := NewAssistantMessage("clicking", calls)
		assert.Equal(t, RoleAssistant, msg.Role)
		assert.Equal(t, LabelAgentModelResponse, msg.Label)
		assert.Equal(t, "clicking", msg.FirstText())
		require.Len(t, msg.ToolCalls, 1)
		assert.Equal(t, "click", msg.ToolCalls[0].Function.Name)
	})

	t.Run("tool message references its call", func(t *testing.T) {
		msg := NewToolMessage("call-7", "done")
		assert.Equal(t, RoleTool, msg.Role)
		assert.Equal(t, "call-7", msg.ToolCallID)
		assert.Equal(t, "done", msg.FirstText())
	})
}

func TestMessagePartAccessors(t *testing.T) {
	msg := NewUserMessage("a", []byte{0x01})
	msg.Content = append(msg.Content, TextContent("b"))

	assert.Len(t, msg.Texts(), 2)
	assert.Len(t, msg.Images(), 1)
	assert.Equal(t, "a", msg.FirstText())
}

func TestHistoryAppendPopExtend(t *testing.T) {
	h := &MessageHistory{}
	h.Append(NewSystemMessage("sys"), "")
	h.Append(NewUserMessage("task", nil), LabelUserInput)
	require.Equal(t, 2, h.Len())
	assert.Equal(t, LabelSystem, h.Messages[0].Label)
	assert.Equal(t, LabelUserInput, h.Messages[1].Label)

	popped, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, "task", popped.FirstText())
	assert.Equal(t, 1, h.Len())

	other := &MessageHistory{}
	other.Append(NewAssistantMessage("reply", nil), "")
	combined := Concat(h, other)
	assert.Equal(t, 2, combined.Len())
	assert.Equal(t, 1, h.Len(), "Concat must not mutate its inputs")

	_, ok = (&MessageHistory{}).Pop()
	assert.False(t, ok)
}

func TestViewEmptyLimitsIsIdentity(t *testing.T) {
	h := &MessageHistory{}
	for i := 0; i < 5; i++ {
		h.Append(NewUserMessage(fmt.Sprintf("msg-%d", i), nil), LabelScreenshot)
	}

	view := h.View(map[MessageLabel]int{})
	require.Equal(t, h.Len(), view.Len())
	for i := range h.Messages {
		assert.Equal(t, h.Messages[i].FirstText(), view.Messages[i].FirstText())
	}
}

func TestViewKeepsMostRecentCappedMessages(t *testing.T) {
	h := &MessageHistory{}
	h.Append(NewSystemMessage("sys"), "")
	for i := 0; i < 4; i++ {
		h.Append(NewAssistantMessage(fmt.Sprintf("thought-%d", i), nil), "")
		h.Append(NewUserMessage("", []byte{byte(i)}), LabelScreenshot)
	}

	view := h.View(DefaultContextLimits)

	// Every uncapped message survives; only the newest screenshot remains.
	var screenshots int
	for _, msg := range view.Messages {
		if msg.Label == LabelScreenshot {
			screenshots++
		}
	}
	assert.Equal(t, 1, screenshots)
	assert.Equal(t, h.Len()-3, view.Len())

	// The surviving screenshot is the most recent one and order is chronological.
	assert.Equal(t, LabelScreenshot, view.Messages[view.Len()-1].Label)
	assert.Equal(t, "sys", view.Messages[0].FirstText())
	assert.Equal(t, "thought-3", view.Messages[view.Len()-2].FirstText())

	// The source history is untouched.
	assert.Equal(t, 9, h.Len())
}

func TestViewMultipleCaps(t *testing.T) {
	h := &MessageHistory{}
	for i := 0; i < 3; i++ {
		h.Append(NewUserMessage("", []byte{byte(i)}), LabelScreenshot)
		h.Append(NewAssistantMessage(fmt.Sprintf("r-%d", i), nil), "")
	}

	view := h.View(map[MessageLabel]int{
		LabelScreenshot:         2,
		LabelAgentModelResponse: 1,
	})
	require.Equal(t, 3, view.Len())
	assert.Equal(t, LabelScreenshot, view.Messages[0].Label)
	assert.Equal(t, LabelScreenshot, view.Messages[1].Label)
	assert.Equal(t, "r-2", view.Messages[2].FirstText())
}
