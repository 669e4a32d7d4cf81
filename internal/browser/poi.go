// File: internal/browser/poi.go
package browser

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yhl48/proxy-lite/internal/annotate"
)

const (
	// maxIframes bounds the per-page iframe fan-out.
	maxIframes = 10

	// poiRetryBudget bounds the total retry time for a full POI pass.
	// Failures here usually indicate a mid-navigation race that settles
	// within a few seconds.
	poiRetryBudget = 5 * time.Second
)

// rawCentroid matches the geometry objects produced by the injected script.
type rawCentroid struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// pagePOIs is the result of one __proxyFindPOIs call.
type pagePOIs struct {
	ElementDescriptions []map[string]any `json:"element_descriptions"`
	ElementCentroids    []rawCentroid    `json:"element_centroids"`
}

// frameResult is the result of one __proxyExtractFrame call.
type frameResult struct {
	POI    pagePOIs `json:"poi"`
	Offset struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"offset"`
}

func addScriptOnNewDocument(ctx context.Context, script string) (page.ScriptIdentifier, error) {
	return page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
}

// UpdatePOI recomputes the POI snapshot: main-page elements first, then the
// elements of each processed iframe in discovery order. That concatenation
// order is the mark-id assignment. The whole pass is retried with bounded
// exponential backoff since extraction commonly races mid-run redirects.
func (s *Session) UpdatePOI(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = poiRetryBudget

	operation := func() error {
		return s.updatePOIOnce(ctx)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Error("POI extraction failed, retrying",
			zap.Error(err), zap.Duration("backoff", wait))
	}
	return backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
}

func (s *Session) updatePOIOnce(ctx context.Context) error {
	s.waitForLoad(ctx)

	var main pagePOIs
	err := s.run(ctx, chromedp.Evaluate(
		`(() => { __proxyOverrideSelect(); return __proxyFindPOIs(); })()`,
		&main,
	))
	if err != nil {
		return fmt.Errorf("extract page elements: %w", err)
	}

	descriptions := main.ElementDescriptions
	centroids := main.ElementCentroids

	frames, err := s.extractIframes(ctx)
	if err != nil {
		// Partial results are fine; iframe trouble never fails the pass.
		s.logger.Error("Error extracting iframe elements", zap.Error(err))
	}
	for _, frame := range frames {
		descriptions = append(descriptions, frame.POI.ElementDescriptions...)
		for _, c := range frame.POI.ElementCentroids {
			c.X += frame.Offset.X
			c.Y += frame.Offset.Y
			c.Left += frame.Offset.X
			c.Top += frame.Offset.Y
			c.Right += frame.Offset.X
			c.Bottom += frame.Offset.Y
			centroids = append(centroids, c)
		}
	}

	points := make([]annotate.Point, len(centroids))
	boxes := make([]annotate.BoundingBox, len(centroids))
	for i, c := range centroids {
		points[i] = annotate.Point{X: int(math.Round(c.X)), Y: int(math.Round(c.Y))}
		boxes[i] = annotate.NewBoundingBox(strconv.Itoa(i), c.Left, c.Top, c.Right, c.Bottom)
	}
	pois := make([]annotate.POI, 0, len(points))
	for i := range points {
		if i >= len(descriptions) {
			break
		}
		pois = append(pois, annotate.POI{
			Info:            descriptions[i],
			ElementCentroid: points[i],
			BoundingBox:     boxes[i],
		})
	}

	s.mu.Lock()
	s.elements = descriptions
	s.centroids = points
	s.boxes = boxes
	s.pois = pois
	s.mu.Unlock()
	return nil
}

// extractIframes runs the per-iframe extraction as a bounded scatter/gather.
// Each branch is independent; a failed branch is logged and its elements
// omitted. Results keep iframe-discovery order.
func (s *Session) extractIframes(ctx context.Context) ([]frameResult, error) {
	var count int
	err := s.run(ctx, chromedp.Evaluate(`document.querySelectorAll('iframe').length`, &count))
	if err != nil {
		return nil, fmt.Errorf("count iframes: %w", err)
	}
	if count > maxIframes {
		count = maxIframes
	}
	if count == 0 {
		return nil, nil
	}

	results := make([]*frameResult, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			var result *frameResult
			expr := fmt.Sprintf(`__proxyExtractFrame(%d)`, i)
			if err := s.run(gctx, chromedp.Evaluate(expr, &result)); err != nil {
				s.logger.Error("Error processing iframe", zap.Int("iframe", i), zap.Error(err))
				return nil
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]frameResult, 0, count)
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// waitForLoad waits for the document body, degrading to best-effort state on
// timeout.
func (s *Session) waitForLoad(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, pageLoadTimeout)
	defer cancel()
	if err := s.run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.logger.Error("Timeout waiting for page load state", zap.Error(err))
	}
}
