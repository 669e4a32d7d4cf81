// File: internal/tools/browser_tool.go
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/annotate"
	"github.com/yhl48/proxy-lite/internal/browser"
)

const waitDuration = 3 * time.Second

// noHistoryMessage is the tool response for back() on a history-less page.
const noHistoryMessage = "There is no previous page to go back to."

// GotoParams are the arguments of the goto function.
type GotoParams struct {
	URL string `json:"url"`
}

// GoogleSearchParams are the arguments of the google_search function.
type GoogleSearchParams struct {
	QueryPlan string `json:"query_plan"`
	Query     string `json:"query"`
}

// ClickParams are the arguments of the click function.
type ClickParams struct {
	MarkID int `json:"mark_id"`
}

// TypeEntry is one element-and-text pair for the type function.
type TypeEntry struct {
	MarkID  int    `json:"mark_id"`
	Content string `json:"content"`
}

// TypeParams are the arguments of the type function.
type TypeParams struct {
	Entries []TypeEntry `json:"entries"`
	Submit  bool        `json:"submit"`
}

// ScrollParams are the arguments of the scroll function.
type ScrollParams struct {
	Direction string `json:"direction"`
	MarkID    int    `json:"mark_id"`
}

// BrowserTool exposes the web navigation functions over a live browser
// session.
type BrowserTool struct {
	session *browser.Session
	logger  *zap.Logger
}

// NewBrowserTool wires the navigation function set to a session.
func NewBrowserTool(session *browser.Session, logger *zap.Logger) *BrowserTool {
	return &BrowserTool{session: session, logger: logger.Named("BrowserTool")}
}

// Schemas implements Tool.
func (b *BrowserTool) Schemas() []Schema {
	return []Schema{
		{
			Name:        "goto",
			Description: "Go directly to a specific web url. Specify the exact URL.",
			Parameters: objectSchema(map[string]any{
				"url": stringProperty("The url to go to."),
			}, "url"),
		},
		{
			Name:        "google_search",
			Description: "Perform a generic web search using Google. Results may not be relevant. If you see poor results, you can try another query.",
			Parameters: objectSchema(map[string]any{
				"query_plan": stringProperty("Plan out the query you will make. Re-write queries in a way that will yield the best results."),
				"query":      stringProperty("The query to search for."),
			}, "query_plan", "query"),
		},
		{
			Name:        "click",
			Description: "Click on an element of the page.",
			Parameters: objectSchema(map[string]any{
				"mark_id": integerProperty("The mark id of the element to click on."),
			}, "mark_id"),
		},
		{
			Name:        "type",
			Description: "Type text. You can type into one or more elements. Note that the text inside an element is cleared before typing.",
			Parameters: objectSchema(map[string]any{
				"entries": map[string]any{
					"type":        "array",
					"description": "The elements to type into and the text to type.",
					"items": objectSchema(map[string]any{
						"mark_id": integerProperty("The mark id of the element to type into."),
						"content": stringProperty("The text to type."),
					}, "mark_id", "content"),
				},
				"submit": booleanProperty("Whether to press enter after typing into the final element."),
			}, "entries", "submit"),
		},
		{
			Name:        "scroll",
			Description: "Scroll the page (or a scrollable element) up, down, left or right.",
			Parameters: objectSchema(map[string]any{
				"direction": map[string]any{
					"type":        "string",
					"enum":        []string{"up", "down", "left", "right"},
					"description": "The direction to scroll.",
				},
				"mark_id": integerProperty("The mark id of the element to scroll. Use -1 to scroll the whole page."),
			}, "direction", "mark_id"),
		},
		{
			Name:        "back",
			Description: "Go back to the previous page.",
			Parameters:  objectSchema(map[string]any{}),
		},
		{
			Name:        "wait",
			Description: "Wait three seconds. Useful when the page appears to still be loading, or if there are any unfinished webpage processes.",
			Parameters:  objectSchema(map[string]any{}),
		},
		{
			Name:        "reload",
			Description: "Reload the current page. Useful when the page seems unresponsive, broken, outdated, or if you want to reset the page to its initial state.",
			Parameters:  objectSchema(map[string]any{}),
		},
		{
			Name:        "do_nothing",
			Description: "Do nothing. Use this if you have no need for the browser at this time.",
			Parameters:  objectSchema(map[string]any{}),
		},
	}
}

// Handlers implements Tool.
func (b *BrowserTool) Handlers() map[string]Handler {
	return map[string]Handler{
		"goto":          b.gotoURL,
		"google_search": b.googleSearch,
		"click":         b.click,
		"type":          b.typeText,
		"scroll":        b.scroll,
		"back":          b.back,
		"wait":          b.wait,
		"reload":        b.reload,
		"do_nothing":    b.doNothing,
	}
}

func (b *BrowserTool) gotoURL(ctx context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p GotoParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	return ExecutionResponse{}, b.session.Goto(ctx, p.URL)
}

func (b *BrowserTool) googleSearch(ctx context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p GoogleSearchParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	target := "https://www.google.com/search?q=" + url.QueryEscape(p.Query)
	return ExecutionResponse{}, b.session.Goto(ctx, target)
}

func (b *BrowserTool) click(ctx context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p ClickParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	return ExecutionResponse{}, b.session.Click(ctx, p.MarkID)
}

// typeText enters text into each requested element in order. Typing
// can change the page, so the element marks are refreshed between
// entries; when they no longer line up with the snapshot the remaining
// entries are skipped rather than typed into the wrong elements.
func (b *BrowserTool) typeText(ctx context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p TypeParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	for i, entry := range p.Entries {
		last := i == len(p.Entries)-1
		before := b.session.Centroids()
		if err := b.session.EnterText(ctx, entry.MarkID, entry.Content, p.Submit && last); err != nil {
			return ExecutionResponse{}, err
		}
		if last {
			break
		}
		if err := b.session.UpdatePOI(ctx); err != nil {
			return ExecutionResponse{}, err
		}
		if !annotate.SameCentroids(before, b.session.Centroids()) {
			b.logger.Error("Page changed mid-typing, cancelling remaining entries",
				zap.Int("completed", i+1),
				zap.Int("remaining", len(p.Entries)-i-1))
			break
		}
	}
	return ExecutionResponse{}, nil
}

func (b *BrowserTool) scroll(ctx context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p ScrollParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	return ExecutionResponse{}, b.session.Scroll(ctx, p.Direction, p.MarkID)
}

func (b *BrowserTool) back(ctx context.Context, _ json.RawMessage) (ExecutionResponse, error) {
	return backResponse(b.session.GoBack(ctx))
}

// backResponse translates a missing-history error into the message shown
// to the model; other errors pass through.
func backResponse(err error) (ExecutionResponse, error) {
	if errors.Is(err, browser.ErrNoHistory) {
		return ExecutionResponse{Content: noHistoryMessage}, nil
	}
	return ExecutionResponse{}, err
}

func (b *BrowserTool) wait(ctx context.Context, _ json.RawMessage) (ExecutionResponse, error) {
	select {
	case <-time.After(waitDuration):
		return ExecutionResponse{}, nil
	case <-ctx.Done():
		return ExecutionResponse{}, ctx.Err()
	}
}

func (b *BrowserTool) reload(ctx context.Context, _ json.RawMessage) (ExecutionResponse, error) {
	return ExecutionResponse{}, b.session.Reload(ctx)
}

func (b *BrowserTool) doNothing(context.Context, json.RawMessage) (ExecutionResponse, error) {
	return ExecutionResponse{}, nil
}

var _ Tool = (*BrowserTool)(nil)
