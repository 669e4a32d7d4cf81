// File: internal/history/history.go
package history

import (
	"encoding/base64"
	"fmt"
)

// Role identifies the conversational role of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageLabel is retention metadata attached to messages. It controls
// context-window trimming only and never affects protocol semantics.
type MessageLabel string

const (
	LabelSystem              MessageLabel = "system"
	LabelUserInput           MessageLabel = "user_input"
	LabelScreenshot          MessageLabel = "screenshot"
	LabelPlan                MessageLabel = "plan"
	LabelReasoningInduction  MessageLabel = "reasoning_induction"
	LabelAction              MessageLabel = "action"
	LabelToolResultInduction MessageLabel = "tool_result_induction"
	LabelAgentModelResponse  MessageLabel = "agent_model_response"
)

// DefaultContextLimits keeps only the most recent screenshot when building a
// model request. Screenshots dominate payload size and stale ones mislead the
// model once the DOM has moved on.
var DefaultContextLimits = map[MessageLabel]int{
	LabelScreenshot: 1,
}

// ImageURL wraps an image data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Content is one part of a message: either text or an image.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextContent builds a text content part.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ImageContent builds an image content part from raw image bytes.
func ImageContent(image []byte) Content {
	return ImageContentBase64(base64.StdEncoding.EncodeToString(image))
}

// ImageContentBase64 builds an image content part from already-encoded bytes.
func ImageContentBase64(b64 string) Content {
	return Content{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: fmt.Sprintf("data:image/jpeg;base64,%s", b64)},
	}
}

// FunctionCall names a tool and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one structured function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is a single conversation entry.
type Message struct {
	Role       Role         `json:"role"`
	Label      MessageLabel `json:"label,omitempty"`
	Content    []Content    `json:"content"`
	ToolCalls  []ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

// Texts returns the text parts of the message in order.
func (m *Message) Texts() []Content {
	var out []Content
	for _, c := range m.Content {
		if c.Type == "text" {
			out = append(out, c)
		}
	}
	return out
}

// Images returns the image parts of the message in order.
func (m *Message) Images() []Content {
	var out []Content
	for _, c := range m.Content {
		if c.Type == "image_url" {
			out = append(out, c)
		}
	}
	return out
}

// FirstText returns the first text part, or "" when the message has none.
func (m *Message) FirstText() string {
	for _, c := range m.Content {
		if c.Type == "text" {
			return c.Text
		}
	}
	return ""
}

// NewSystemMessage builds a system message from a prompt string.
func NewSystemMessage(text string) Message {
	return Message{
		Role:    RoleSystem,
		Label:   LabelSystem,
		Content: []Content{TextContent(text)},
	}
}

// NewUserMessage builds a user message with optional text followed by
// optional image content.
func NewUserMessage(text string, image []byte) Message {
	msg := Message{Role: RoleUser}
	if text != "" {
		msg.Content = append(msg.Content, TextContent(text))
	}
	if len(image) > 0 {
		msg.Content = append(msg.Content, ImageContent(image))
	}
	return msg
}

// NewAssistantMessage builds an assistant message carrying the model's text
// and any requested tool calls.
func NewAssistantMessage(text string, toolCalls []ToolCall) Message {
	msg := Message{
		Role:      RoleAssistant,
		Label:     LabelAgentModelResponse,
		ToolCalls: toolCalls,
	}
	if text != "" {
		msg.Content = append(msg.Content, TextContent(text))
	}
	return msg
}

// NewToolMessage builds a tool-response message answering one tool call.
func NewToolMessage(toolCallID, text string) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Content:    []Content{TextContent(text)},
	}
}

// MessageHistory is an ordered sequence of messages. Append-only except for
// an explicit Pop.
type MessageHistory struct {
	Messages []Message `json:"messages"`
}

// Append adds a message, optionally overriding its label.
func (h *MessageHistory) Append(msg Message, label MessageLabel) {
	if label != "" {
		msg.Label = label
	}
	h.Messages = append(h.Messages, msg)
}

// Pop removes and returns the most recent message. The second return is
// false when the history is empty.
func (h *MessageHistory) Pop() (Message, bool) {
	if len(h.Messages) == 0 {
		return Message{}, false
	}
	last := h.Messages[len(h.Messages)-1]
	h.Messages = h.Messages[:len(h.Messages)-1]
	return last, true
}

// Extend appends every message from other.
func (h *MessageHistory) Extend(other *MessageHistory) {
	h.Messages = append(h.Messages, other.Messages...)
}

// Len returns the number of messages.
func (h *MessageHistory) Len() int { return len(h.Messages) }

// Concat returns a new history holding a's messages followed by b's.
func Concat(a, b *MessageHistory) *MessageHistory {
	out := &MessageHistory{Messages: make([]Message, 0, len(a.Messages)+len(b.Messages))}
	out.Extend(a)
	out.Extend(b)
	return out
}

// View builds the context-window projection of the history. Scanning
// newest-first, a message whose label appears in limits is kept only until
// that label's cap is reached; unlabeled and uncapped messages are always
// kept. The result is restored to chronological order. The receiver is not
// modified.
func (h *MessageHistory) View(limits map[MessageLabel]int) *MessageHistory {
	labelCounts := make(map[MessageLabel]int, len(limits))
	var kept []Message
	for i := len(h.Messages) - 1; i >= 0; i-- {
		msg := h.Messages[i]
		if max, capped := limits[msg.Label]; capped {
			if labelCounts[msg.Label] < max {
				kept = append(kept, msg)
				labelCounts[msg.Label]++
			}
			continue
		}
		kept = append(kept, msg)
	}
	// Restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return &MessageHistory{Messages: kept}
}
