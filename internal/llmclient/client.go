// File: internal/llmclient/client.go

// Package llmclient talks to OpenAI-compatible chat completion
// endpoints, including locally served vLLM models.
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/tools"
)

// Request is one chat completion call.
type Request struct {
	Messages    *history.MessageHistory
	Temperature float32
	Seed        *int
	// Tools, when set, is offered to the model as its function-calling
	// surface.
	Tools []tools.Schema
	// JSONResponse constrains the model to emit a JSON object.
	JSONResponse bool
}

// Completion is the model's reply.
type Completion struct {
	Text      string
	ToolCalls []history.ToolCall
}

// Client produces chat completions.
type Client interface {
	CreateCompletion(ctx context.Context, req Request) (Completion, error)
}

// New builds the client selected by the configuration.
func New(cfg config.ClientConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Kind {
	case config.ClientOpenAI, config.ClientConvergence:
		return newOpenAIClient(cfg, logger), nil
	default:
		return nil, &config.UnknownKindError{Field: "client", Value: string(cfg.Kind)}
	}
}

// openAIClient serves both hosted OpenAI models and self-hosted
// endpoints speaking the same protocol. The differences are the base
// URL, the tool_choice mode (vLLM rejects "required") and an initial
// model listing to fail fast when the served model is missing.
type openAIClient struct {
	cfg    config.ClientConfig
	client *openai.Client
	logger *zap.Logger

	validateOnce sync.Once
	validateErr  error
}

func newOpenAIClient(cfg config.ClientConfig, logger *zap.Logger) *openAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	return &openAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger.Named("LLMClient").With(zap.String("model", cfg.ModelID)),
	}
}

// validateModel checks once that the endpoint actually serves the
// configured model.
func (c *openAIClient) validateModel(ctx context.Context) error {
	c.validateOnce.Do(func() {
		list, err := c.client.ListModels(ctx)
		if err != nil {
			c.validateErr = fmt.Errorf("listing models: %w", err)
			return
		}
		for _, m := range list.Models {
			if m.ID == c.cfg.ModelID {
				c.logger.Debug("Model validated and connected to cluster")
				return
			}
		}
		c.validateErr = fmt.Errorf("model %q not served by %s", c.cfg.ModelID, c.cfg.APIBase)
	})
	return c.validateErr
}

func (c *openAIClient) CreateCompletion(ctx context.Context, req Request) (Completion, error) {
	if c.cfg.Kind == config.ClientConvergence {
		if err := c.validateModel(ctx); err != nil {
			return Completion{}, err
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.ModelID,
		Messages:    serializeMessages(req.Messages),
		Temperature: req.Temperature,
	}
	if req.Seed != nil {
		chatReq.Seed = req.Seed
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = serializeTools(req.Tools)
		if c.cfg.Kind == config.ClientConvergence {
			chatReq.ToolChoice = "auto"
		} else {
			chatReq.ToolChoice = "required"
		}
	}
	if req.JSONResponse {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("chat completion returned no choices")
	}
	msg := resp.Choices[0].Message

	out := Completion{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, history.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: history.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

// serializeMessages converts the internal history into wire messages.
// Retention labels are dropped; they are local bookkeeping.
func serializeMessages(h *history.MessageHistory) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, h.Len())
	for _, msg := range h.Messages {
		out = append(out, serializeMessage(msg))
	}
	return out
}

func serializeMessage(msg history.Message) openai.ChatCompletionMessage {
	wire := openai.ChatCompletionMessage{Role: string(msg.Role)}

	switch msg.Role {
	case history.RoleUser:
		// User turns may mix text and screenshots, which requires the
		// multi-part content form.
		for _, part := range msg.Content {
			switch part.Type {
			case "text":
				wire.MultiContent = append(wire.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case "image_url":
				wire.MultiContent = append(wire.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL.URL},
				})
			}
		}
	default:
		wire.Content = msg.FirstText()
	}

	for _, tc := range msg.ToolCalls {
		wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	wire.ToolCallID = msg.ToolCallID
	return wire
}

func serializeTools(schemas []tools.Schema) []openai.Tool {
	out := make([]openai.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
