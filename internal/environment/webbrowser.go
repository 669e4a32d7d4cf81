// File: internal/environment/webbrowser.go
package environment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/annotate"
	"github.com/yhl48/proxy-lite/internal/browser"
	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/tools"
)

// cancelMessage answers every tool call of an action that was dropped
// because the page moved underneath it.
const cancelMessage = "The page changed before the action could be executed, instead of being ran it was cancelled."

const screenshotQuality = 70

// pageSession is the slice of the browser session the environment
// drives. *browser.Session satisfies it; tests substitute a fake.
type pageSession interface {
	Goto(ctx context.Context, url string) error
	Close(ctx context.Context) error
	UpdatePOI(ctx context.Context) error
	Centroids() []annotate.Point
	POIs() []annotate.POI
	POIText() string
	Screenshot(ctx context.Context, opts browser.ScreenshotOptions) (raw, annotated []byte, err error)
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
}

// WebBrowser is an Environment backed by a Chrome session. Elements
// are addressed by mark ids that are only valid against the snapshot
// the agent last saw, so actions are checked for staleness before
// they run.
type WebBrowser struct {
	cfg     config.EnvironmentConfig
	logger  *zap.Logger
	session pageSession
	tools   *tools.Registry

	// cancelledLastAction forces the next action through unchecked:
	// the agent has already seen the post-change page, re-cancelling
	// would stall forever on a page that mutates every step.
	cancelledLastAction bool
}

// NewWebBrowser builds the browser environment. The underlying Chrome
// process is not launched until Start.
func NewWebBrowser(cfg config.EnvironmentConfig, logger *zap.Logger) *WebBrowser {
	return &WebBrowser{cfg: cfg, logger: logger.Named("WebBrowser")}
}

// Start launches the browser and assembles the tool registry.
func (w *WebBrowser) Start(ctx context.Context) error {
	session := browser.NewSession(browser.Options{
		ViewportWidth:  w.cfg.ViewportWidth,
		ViewportHeight: w.cfg.ViewportHeight,
		Headless:       w.cfg.Headless,
		Args:           w.cfg.BrowserArgs,
	}, w.logger)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	registry, err := tools.NewRegistry(
		tools.NewBrowserTool(session, w.logger),
		tools.NewReturnValueTool(),
		tools.NewTableExtractionTool(session, w.logger),
	)
	if err != nil {
		session.Close(ctx)
		return fmt.Errorf("building tool registry: %w", err)
	}
	w.session = session
	w.tools = registry
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (w *WebBrowser) Close() error {
	if w.session == nil {
		return nil
	}
	return w.session.Close(context.Background())
}

// Tools implements Environment.
func (w *WebBrowser) Tools() *tools.Registry { return w.tools }

// InfoForUser implements Environment.
func (w *WebBrowser) InfoForUser() string {
	return "This is a web browser environment. You can navigate the web, search the web, and perform actions on the web."
}

// Initialise opens the homepage and returns the first observation.
func (w *WebBrowser) Initialise(ctx context.Context) (Observation, error) {
	w.cancelledLastAction = false
	if err := w.session.Goto(ctx, w.cfg.Homepage); err != nil {
		return Observation{}, fmt.Errorf("opening homepage: %w", err)
	}
	return w.observe(ctx, nil, false)
}

// shouldPerformAction decides whether the pending action still targets
// the page the agent saw. A previously cancelled action goes through
// unconditionally; otherwise the element marks are refreshed and the
// action is cancelled when they moved.
func (w *WebBrowser) shouldPerformAction(ctx context.Context) (bool, error) {
	if w.cancelledLastAction {
		w.cancelledLastAction = false
		return true, nil
	}
	before := w.session.Centroids()
	if err := w.session.UpdatePOI(ctx); err != nil {
		return false, err
	}
	if !annotate.SameCentroids(before, w.session.Centroids()) {
		w.cancelledLastAction = true
		return false, nil
	}
	return true, nil
}

// ExecuteAction runs the action's tool calls and returns the resulting
// observation. Per-call failures become tool responses rather than
// aborting the step.
func (w *WebBrowser) ExecuteAction(ctx context.Context, action Action) (Observation, error) {
	perform, err := w.shouldPerformAction(ctx)
	if err != nil {
		return Observation{}, err
	}

	responses := make([]tools.ExecutionResponse, 0, len(action.ToolCalls))
	if !perform {
		w.logger.Warn("Page changed since last observation, cancelling action",
			zap.Int("toolCalls", len(action.ToolCalls)))
		for _, call := range action.ToolCalls {
			responses = append(responses, tools.ExecutionResponse{Content: cancelMessage, ID: call.ID})
		}
		return w.observe(ctx, responses, true)
	}

	for _, call := range action.ToolCalls {
		resp, err := w.tools.Execute(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return Observation{}, ctx.Err()
			}
			w.logger.Error("Tool call failed",
				zap.String("tool", call.Function.Name), zap.Error(err))
			resp = tools.ExecutionResponse{Content: err.Error(), ID: call.ID}
		}
		responses = append(responses, resp)
	}
	return w.observe(ctx, responses, false)
}

// observe captures a fresh screenshot and packages the page state.
func (w *WebBrowser) observe(ctx context.Context, responses []tools.ExecutionResponse, cancelled bool) (Observation, error) {
	raw, annotated, err := w.session.Screenshot(ctx, browser.ScreenshotOptions{
		Delay:   w.cfg.ScreenshotDelay,
		Quality: screenshotQuality,
	})
	if err != nil {
		return Observation{}, fmt.Errorf("capturing observation: %w", err)
	}
	url, err := w.session.CurrentURL(ctx)
	if err != nil {
		return Observation{}, err
	}

	image := annotated
	if !w.cfg.AnnotateImage || w.cfg.NoPOIsInImage {
		image = raw
	}
	text := "URL: " + url
	if w.cfg.IncludePOIText {
		text += "\n" + w.session.POIText()
	}

	state := State{Text: text, Image: image, ToolResponses: responses}
	if w.cfg.IncludeHTML {
		html, err := w.session.HTML(ctx)
		if err != nil {
			return Observation{}, err
		}
		state.HTML = html
	}

	info := map[string]any{
		"url":             url,
		"cancelled_tools": cancelled,
	}
	if w.cfg.RecordPOIs {
		info["pois"] = w.session.POIs()
	}
	if w.cfg.KeepOriginalImage {
		info["original_image"] = raw
	}
	return NewObservation(state, false, info), nil
}

var _ Environment = (*WebBrowser)(nil)
