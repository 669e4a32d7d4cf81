// File: internal/agent/agent.go

// Package agent wraps a language model behind a message history and a
// retry loop, producing assistant turns for the solver.
package agent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/llmclient"
	"github.com/yhl48/proxy-lite/internal/tools"
)

const (
	completionMaxAttempts  = 3
	completionRetryMinWait = 4 * time.Second
	completionRetryMaxWait = 10 * time.Second
)

// GenerateOptions controls one model turn.
type GenerateOptions struct {
	// UseTools offers the tool schemas to the model.
	UseTools bool
	// JSONResponse constrains the reply to a JSON object.
	JSONResponse bool
}

// Agent owns the conversation with the model.
type Agent interface {
	// SystemPrompt is the prompt prepended to every model request.
	SystemPrompt() string
	// History is the full accumulated conversation, excluding the
	// system prompt.
	History() *history.MessageHistory
	// ReceiveUserMessage records a user turn.
	ReceiveUserMessage(text string, image []byte, label history.MessageLabel)
	// ReceiveToolMessage records a tool response turn.
	ReceiveToolMessage(text, toolCallID string, label history.MessageLabel)
	// GenerateOutput requests one assistant turn, appends it to the
	// history and returns it. Transient failures are retried.
	GenerateOutput(ctx context.Context, opts GenerateOptions) (history.Message, error)
}

// New builds the agent selected by the configuration.
func New(cfg config.AgentConfig, client llmclient.Client, schemas []tools.Schema, logger *zap.Logger) (Agent, error) {
	switch cfg.Kind {
	case config.AgentBrowser:
		return NewBrowserAgent(cfg, client, schemas, logger), nil
	default:
		return nil, &config.UnknownKindError{Field: "agent", Value: string(cfg.Kind)}
	}
}

// base carries the machinery shared by agents: the history, the client
// call with retries and the context-window projection.
type base struct {
	cfg     config.AgentConfig
	client  llmclient.Client
	schemas []tools.Schema
	logger  *zap.Logger
	history *history.MessageHistory
	limits  map[history.MessageLabel]int

	// newBackOff overrides the retry policy, set by tests.
	newBackOff func() backoff.BackOff
}

func (b *base) History() *history.MessageHistory { return b.history }

func (b *base) ReceiveUserMessage(text string, image []byte, label history.MessageLabel) {
	b.history.Append(history.NewUserMessage(text, image), label)
}

func (b *base) ReceiveToolMessage(text, toolCallID string, label history.MessageLabel) {
	b.history.Append(history.NewToolMessage(toolCallID, text), label)
}

// historyView is the request payload: the system prompt followed by
// the label-capped projection of the conversation.
func (b *base) historyView(systemPrompt string) *history.MessageHistory {
	head := &history.MessageHistory{}
	head.Append(history.NewSystemMessage(systemPrompt), "")
	return history.Concat(head, b.history.View(b.limits))
}

func (b *base) generate(ctx context.Context, systemPrompt string, opts GenerateOptions) (history.Message, error) {
	req := llmclient.Request{
		Messages:     b.historyView(systemPrompt),
		Temperature:  b.cfg.Temperature,
		Seed:         b.cfg.Seed,
		JSONResponse: opts.JSONResponse,
	}
	if opts.UseTools {
		req.Tools = b.schemas
	}

	var policy backoff.BackOff
	if b.newBackOff != nil {
		policy = b.newBackOff()
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = completionRetryMinWait
		exp.MaxInterval = completionRetryMaxWait
		exp.MaxElapsedTime = 0
		policy = exp
	}

	var completion llmclient.Completion
	err := backoff.RetryNotify(
		func() error {
			var err error
			completion, err = b.client.CreateCompletion(ctx, req)
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, completionMaxAttempts-1), ctx),
		func(err error, wait time.Duration) {
			b.logger.Error("Completion failed, retrying",
				zap.Error(err), zap.Duration("backoff", wait))
		},
	)
	if err != nil {
		return history.Message{}, err
	}

	msg := history.NewAssistantMessage(completion.Text, completion.ToolCalls)
	b.history.Append(msg, history.LabelAgentModelResponse)
	return msg, nil
}
