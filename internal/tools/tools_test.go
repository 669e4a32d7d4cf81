// File: internal/tools/tools_test.go
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhl48/proxy-lite/internal/browser"
	"github.com/yhl48/proxy-lite/internal/history"
)

type fakeTool struct {
	schemas  []Schema
	handlers map[string]Handler
}

func (f *fakeTool) Schemas() []Schema            { return f.schemas }
func (f *fakeTool) Handlers() map[string]Handler { return f.handlers }

func echoHandler(content string) Handler {
	return func(context.Context, json.RawMessage) (ExecutionResponse, error) {
		return ExecutionResponse{Content: content}, nil
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("merges multiple tools", func(t *testing.T) {
		a := &fakeTool{
			schemas:  []Schema{{Name: "first", Description: "d", Parameters: objectSchema(nil)}},
			handlers: map[string]Handler{"first": echoHandler("a")},
		}
		b := &fakeTool{
			schemas:  []Schema{{Name: "second", Description: "d", Parameters: objectSchema(nil)}},
			handlers: map[string]Handler{"second": echoHandler("b")},
		}
		r, err := NewRegistry(a, b)
		require.NoError(t, err)
		assert.Len(t, r.Schemas(), 2)
	})

	t.Run("rejects missing description", func(t *testing.T) {
		bad := &fakeTool{
			schemas:  []Schema{{Name: "nameless", Parameters: objectSchema(nil)}},
			handlers: map[string]Handler{"nameless": echoHandler("")},
		}
		_, err := NewRegistry(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no description")
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		dup := &fakeTool{
			schemas:  []Schema{{Name: "same", Description: "d"}, {Name: "same", Description: "d"}},
			handlers: map[string]Handler{"same": echoHandler("")},
		}
		_, err := NewRegistry(dup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("rejects schema without handler", func(t *testing.T) {
		orphan := &fakeTool{
			schemas:  []Schema{{Name: "ghost", Description: "d"}},
			handlers: map[string]Handler{},
		}
		_, err := NewRegistry(orphan)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no handler")
	})
}

func TestRegistryExecute(t *testing.T) {
	r, err := NewRegistry(&fakeTool{
		schemas:  []Schema{{Name: "echo", Description: "d", Parameters: objectSchema(nil)}},
		handlers: map[string]Handler{"echo": echoHandler("hello")},
	})
	require.NoError(t, err)

	t.Run("dispatches by name and carries the call id", func(t *testing.T) {
		resp, err := r.Execute(context.Background(), history.ToolCall{
			ID:       "call-1",
			Function: history.FunctionCall{Name: "echo", Arguments: "{}"},
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", resp.Content)
		assert.Equal(t, "call-1", resp.ID)
	})

	t.Run("unknown name is an error", func(t *testing.T) {
		_, err := r.Execute(context.Background(), history.ToolCall{
			ID:       "call-2",
			Function: history.FunctionCall{Name: "teleport"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no tool function with name "teleport"`)
	})
}

func TestBrowserToolSchemas(t *testing.T) {
	bt := &BrowserTool{}
	handlers := bt.Handlers()
	names := make([]string, 0)
	for _, s := range bt.Schemas() {
		names = append(names, s.Name)
		assert.NotEmpty(t, s.Description, "schema %s", s.Name)
		assert.Contains(t, handlers, s.Name)
	}
	assert.ElementsMatch(t, []string{
		"goto", "google_search", "click", "type", "scroll",
		"back", "wait", "reload", "do_nothing",
	}, names)
}

func TestBackResponse(t *testing.T) {
	t.Run("missing history becomes a tool response", func(t *testing.T) {
		resp, err := backResponse(browser.ErrNoHistory)
		require.NoError(t, err)
		assert.Equal(t, "There is no previous page to go back to.", resp.Content)
	})

	t.Run("wrapped sentinel is still recognised", func(t *testing.T) {
		resp, err := backResponse(fmt.Errorf("go back: %w", browser.ErrNoHistory))
		require.NoError(t, err)
		assert.Equal(t, noHistoryMessage, resp.Content)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := backResponse(boom)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("success stays empty", func(t *testing.T) {
		resp, err := backResponse(nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Content)
	})
}

func TestReturnValueTool(t *testing.T) {
	rt := NewReturnValueTool()
	resp, err := rt.Handlers()["return_value"](context.Background(),
		json.RawMessage(`{"value":"the answer is 42"}`))
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", resp.Content)
}

func TestFormatTable(t *testing.T) {
	rows := [][]string{
		{"name", "price"},
		{"apple", "1.20"},
		{"pear", "0.95"},
	}

	t.Run("json", func(t *testing.T) {
		out, err := formatTable(rows, "json")
		require.NoError(t, err)
		var records []map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "apple", records[0]["name"])
		assert.Equal(t, "0.95", records[1]["price"])
	})

	t.Run("csv", func(t *testing.T) {
		out, err := formatTable(rows, "csv")
		require.NoError(t, err)
		assert.Equal(t, "name,price\napple,1.20\npear,0.95", out)
	})

	t.Run("markdown", func(t *testing.T) {
		out, err := formatTable(rows, "markdown")
		require.NoError(t, err)
		assert.Equal(t,
			"| name | price |\n| --- | --- |\n| apple | 1.20 |\n| pear | 0.95 |",
			out)
	})

	t.Run("markdown escapes pipes", func(t *testing.T) {
		out, err := formatTable([][]string{{"a|b"}, {"c"}}, "markdown")
		require.NoError(t, err)
		assert.Contains(t, out, `a\|b`)
	})

	t.Run("short rows pad with empty strings", func(t *testing.T) {
		out, err := formatTable([][]string{{"a", "b"}, {"only"}}, "json")
		require.NoError(t, err)
		var records []map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		assert.Equal(t, "", records[0]["b"])
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := formatTable(rows, "yaml")
		require.Error(t, err)
	})
}
