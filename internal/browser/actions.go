// File: internal/browser/actions.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/yhl48/proxy-lite/internal/annotate"
)

// ErrNoHistory is returned by GoBack when the page has no previous entry.
var ErrNoHistory = errors.New("no previous page to go back to")

// scrollFraction is the share of the scrollable extent moved per scroll.
const scrollFraction = 0.8

// Goto navigates to url.
func (s *Session) Goto(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload())
}

// GoBack navigates to the previous history entry. A history-less page is a
// reported error, not a silent no-op.
func (s *Session) GoBack(ctx context.Context) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		currentIndex, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return fmt.Errorf("read navigation history: %w", err)
		}
		if currentIndex <= 0 || int(currentIndex) >= len(entries) {
			return ErrNoHistory
		}
		return page.NavigateToHistoryEntry(entries[currentIndex-1].ID).Do(ctx)
	}))
}

// Hover moves the pointer to point.
func (s *Session) Hover(ctx context.Context, point annotate.Point) error {
	return s.run(ctx, input.DispatchMouseEvent(input.MouseMoved, float64(point.X), float64(point.Y)))
}

// Click resolves markID to its centroid, hovers there and left-clicks.
func (s *Session) Click(ctx context.Context, markID int) error {
	point, err := s.markCentroid(markID)
	if err != nil {
		return err
	}
	return s.run(ctx, mouseClick(point, input.Left)...)
}

// ClickTab middle-clicks the element so links open in a new tab.
func (s *Session) ClickTab(ctx context.Context, markID int) error {
	point, err := s.markCentroid(markID)
	if err != nil {
		return err
	}
	return s.run(ctx, mouseClick(point, input.Middle)...)
}

func mouseClick(point annotate.Point, button input.MouseButton) []chromedp.Action {
	x, y := float64(point.X), float64(point.Y)
	return []chromedp.Action{
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(button).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(button).WithClickCount(1),
	}
}

// EnterText clears any existing field content, clicks the field, types the
// text and optionally presses Enter.
func (s *Session) EnterText(ctx context.Context, markID int, text string, submit bool) error {
	if err := s.ClearTextField(ctx, markID); err != nil {
		return err
	}
	if err := s.Click(ctx, markID); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return err
	}
	if submit {
		return s.run(ctx, chromedp.KeyEvent(kb.Enter))
	}
	return nil
}

// Scroll scrolls the viewport (markID < 0) or within an element's bounding
// box extent. The magnitude is scrollFraction of the relevant extent, signed
// by direction.
func (s *Session) Scroll(ctx context.Context, direction string, markID int) error {
	var point annotate.Point
	var maxScrollX, maxScrollY int

	if markID < 0 {
		point = annotate.Point{X: int(s.opts.ViewportWidth / 2), Y: int(s.opts.ViewportHeight / 2)}
		maxScrollX = int(s.opts.ViewportWidth)
		maxScrollY = int(s.opts.ViewportHeight)
	} else {
		var err error
		if point, err = s.markCentroid(markID); err != nil {
			return err
		}
		box, err := s.markBox(markID)
		if err != nil {
			return err
		}
		maxScrollX = box.Right - box.Left
		maxScrollY = box.Bottom - box.Top
	}

	var deltaX, deltaY float64
	scrollX := float64(maxScrollX) * scrollFraction
	scrollY := float64(maxScrollY) * scrollFraction
	switch direction {
	case "up":
		deltaY = -scrollY
	case "down":
		deltaY = scrollY
	case "left":
		deltaX = -scrollX
	case "right":
		deltaX = scrollX
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}

	return s.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, float64(point.X), float64(point.Y)),
		input.DispatchMouseEvent(input.MouseWheel, float64(point.X), float64(point.Y)).
			WithDeltaX(deltaX).WithDeltaY(deltaY),
	)
}

// Focus focuses the element under the mark's centroid.
func (s *Session) Focus(ctx context.Context, markID int) error {
	point, err := s.markCentroid(markID)
	if err != nil {
		return err
	}
	expr := fmt.Sprintf(`(() => {
		const element = document.elementFromPoint(%d, %d);
		if (element && element.focus) { element.focus(); }
	})()`, point.X, point.Y)
	return s.run(ctx, chromedp.Evaluate(expr, nil))
}

// GetText reads the value or text content of the marked element.
func (s *Session) GetText(ctx context.Context, markID int) (string, error) {
	if _, err := s.markCentroid(markID); err != nil {
		return "", err
	}
	var text string
	expr := fmt.Sprintf(`(() => {
		const marked = window.__proxyMarkedElements || [];
		const element = marked[%d];
		if (element && (element.value !== undefined || element.textContent !== undefined)) {
			return element.value || element.textContent || '';
		}
		return '';
	})()`, markID)
	if err := s.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// ClearTextField selects and deletes existing field content. Select-all is
// platform specific.
func (s *Session) ClearTextField(ctx context.Context, markID int) error {
	existing, err := s.GetText(ctx, markID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(existing) == "" {
		return nil
	}

	if err := s.Click(ctx, markID); err != nil {
		return err
	}
	if runtime.GOOS == "darwin" {
		if err := s.Click(ctx, markID); err != nil {
			return err
		}
		if err := s.run(ctx, chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierMeta))); err != nil {
			return err
		}
	} else {
		if err := s.run(ctx,
			chromedp.KeyEvent(kb.Home, chromedp.KeyModifiers(input.ModifierCtrl)),
			chromedp.KeyEvent(kb.End, chromedp.KeyModifiers(input.ModifierCtrl|input.ModifierShift)),
		); err != nil {
			return err
		}
	}
	return s.run(ctx, chromedp.KeyEvent(kb.Backspace))
}
