// File: internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
)

// captureStdout redirects os.Stdout into a pipe and returns a function
// that finishes the capture and hands back everything written. The
// reader side is drained on its own goroutine; finish closes the
// writer and waits for the drain to complete before returning, so the
// caller always sees the full output.
func captureStdout(t *testing.T) (finish func() string) {
	t.Helper()
	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	output := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		output <- string(data)
	}()

	return func() string {
		w.Close()
		os.Stdout = original
		return <-output
	}
}

func TestInitializeLogger(t *testing.T) {
	t.Run("console format with colors", func(t *testing.T) {
		ResetForTest()
		finish := captureStdout(t)

		InitializeLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Info("This is a test message.")
		Sync()

		out := finish()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "This is a test message.")
		assert.Contains(t, out, colorGreen)
		assert.Contains(t, out, colorReset)
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		finish := captureStdout(t)

		InitializeLogger(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(finish()), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("log file", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "proxy-lite.log")

		InitializeLogger(config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("second initialization is ignored", func(t *testing.T) {
		ResetForTest()
		finish := captureStdout(t)

		InitializeLogger(config.LoggerConfig{Level: "info", ServiceName: "First"})
		first := GetLogger()
		InitializeLogger(config.LoggerConfig{Level: "debug", ServiceName: "Second"})
		second := GetLogger()
		assert.Equal(t, first, second)

		second.Info("test")
		Sync()

		out := finish()
		assert.True(t, strings.Contains(out, "First"))
		assert.False(t, strings.Contains(out, "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("global logger after initialization", func(t *testing.T) {
		ResetForTest()
		InitializeLogger(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
