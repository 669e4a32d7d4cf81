// File: internal/browser/browser_test.go
package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/annotate"
)

func newTestSession() *Session {
	return NewSession(Options{ViewportWidth: 1280, ViewportHeight: 1080, Headless: true}, zap.NewNop())
}

func TestElementAsText(t *testing.T) {
	logger := zap.NewNop()

	t.Run("normal element with attributes and text", func(t *testing.T) {
		line := ElementAsText(3, map[string]any{
			"tag":  "A",
			"text": "About us",
			"href": "/about",
		}, logger)
		assert.Equal(t, `- [3] <a href="/about">About us</a>`, line)
	})

	t.Run("boolean attributes", func(t *testing.T) {
		line := ElementAsText(0, map[string]any{
			"tag":      "button",
			"disabled": true,
			"hidden":   false,
		}, logger)
		assert.Equal(t, `- [0] <button disabled></button>`, line)
	})

	t.Run("self contained tag", func(t *testing.T) {
		line := ElementAsText(7, map[string]any{
			"tag":  "input",
			"type": "text",
			"name": "q",
		}, logger)
		assert.Equal(t, `- [7] <input name="q" type="text"/>`, line)
	})

	t.Run("self contained tag with text falls back to closing form", func(t *testing.T) {
		line := ElementAsText(1, map[string]any{
			"tag":  "input",
			"text": "oops",
		}, logger)
		assert.Equal(t, `- [1] <input>oops</input>`, line)
	})

	t.Run("newlines become visible markers", func(t *testing.T) {
		line := ElementAsText(2, map[string]any{
			"tag":  "button",
			"text": "line one\nline two\r\nline three",
		}, logger)
		assert.NotContains(t, line, "\n")
		assert.Equal(t, `- [2] <button>line one⏎line two⏎line three</button>`, line)
	})

	t.Run("long values are truncated with ellipsis", func(t *testing.T) {
		long := strings.Repeat("x", 3000)
		line := ElementAsText(0, map[string]any{
			"tag":  "a",
			"href": long,
		}, logger)
		assert.Contains(t, line, "…")
		assert.Less(t, len(line), 3000)
	})

	t.Run("nil attribute values are skipped", func(t *testing.T) {
		line := ElementAsText(0, map[string]any{
			"tag":   "a",
			"title": nil,
		}, logger)
		assert.Equal(t, `- [0] <a></a>`, line)
	})
}

func TestPOIText(t *testing.T) {
	s := newTestSession()
	s.elements = []map[string]any{
		{"tag": "a", "text": "Home", "href": "/"},
		{"tag": "input", "type": "search"},
	}
	text := s.POIText()
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `- [0] <a href="/">Home</a>`, lines[0])
	assert.Equal(t, `- [1] <input type="search"/>`, lines[1])
}

func TestMarkResolutionIsPositional(t *testing.T) {
	s := newTestSession()
	s.centroids = []annotate.Point{{X: 10, Y: 10}, {X: 20, Y: 20}, {X: 30, Y: 30}}
	s.boxes = []annotate.BoundingBox{
		{Label: "0", Left: 0, Top: 0, Right: 20, Bottom: 20},
		{Label: "1", Left: 10, Top: 10, Right: 30, Bottom: 30},
		{Label: "2", Left: 20, Top: 20, Right: 40, Bottom: 40},
	}

	point, err := s.markCentroid(2)
	require.NoError(t, err)
	assert.Equal(t, annotate.Point{X: 30, Y: 30}, point)

	// A new, shorter snapshot changes what the same mark id resolves to.
	s.centroids = []annotate.Point{{X: 99, Y: 99}}
	point, err = s.markCentroid(0)
	require.NoError(t, err)
	assert.Equal(t, annotate.Point{X: 99, Y: 99}, point)

	_, err = s.markCentroid(2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark id 2")

	_, err = s.markCentroid(-1)
	require.Error(t, err)

	_, err = s.markBox(5)
	require.Error(t, err)
}

func TestSnapshotAccessorsReturnCopies(t *testing.T) {
	s := newTestSession()
	s.centroids = []annotate.Point{{X: 1, Y: 1}}
	s.boxes = []annotate.BoundingBox{{Label: "0"}}
	s.pois = []annotate.POI{{ElementCentroid: annotate.Point{X: 1, Y: 1}}}

	got := s.Centroids()
	got[0].X = 42
	assert.Equal(t, 1, s.centroids[0].X)

	boxes := s.BoundingBoxes()
	boxes[0].Label = "changed"
	assert.Equal(t, "0", s.boxes[0].Label)

	require.Len(t, s.POIs(), 1)
}

func TestRunRequiresActiveSession(t *testing.T) {
	s := newTestSession()
	err := s.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")

	// Navigation helpers surface the same state error.
	assert.Error(t, s.Goto(context.Background(), "https://example.com"))
	assert.Error(t, s.Reload(context.Background()))
}

func TestScrollRejectsUnknownDirection(t *testing.T) {
	s := newTestSession()
	s.centroids = []annotate.Point{{X: 5, Y: 5}}
	s.boxes = []annotate.BoundingBox{{Label: "0", Right: 10, Bottom: 10}}

	err := s.Scroll(context.Background(), "sideways", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestCaptureFormat(t *testing.T) {
	assert.Equal(t, page.CaptureScreenshotFormatPng, captureFormat(FormatPNG))
	assert.Equal(t, page.CaptureScreenshotFormatJpeg, captureFormat(FormatJPEG))
	// The zero value of ScreenshotOptions means jpeg.
	assert.Equal(t, page.CaptureScreenshotFormatJpeg, captureFormat(""))
}

func TestBuildAllocatorOptions(t *testing.T) {
	s := NewSession(Options{
		ViewportWidth:  1280,
		ViewportHeight: 1080,
		Headless:       true,
		Args:           []string{"--proxy-server=localhost:8080", "incognito"},
	}, zap.NewNop())

	opts := s.buildAllocatorOptions()
	// All defaults are kept; the automation override, the session flags
	// and one option per extra arg come on top.
	assert.GreaterOrEqual(t, len(opts), len(chromedp.DefaultExecAllocatorOptions)+9)
}

func TestCloseBeforeStartIsSafe(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	// A closed session refuses further work.
	assert.Error(t, s.Goto(context.Background(), "https://example.com"))
}
