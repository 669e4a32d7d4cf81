// File: internal/browser/screenshot.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/annotate"
)

// defaultScreenshotQuality matches the capture quality used for model input.
const defaultScreenshotQuality = 70

// Screenshot capture formats and pixel scales.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"

	ScaleCSS    = "css"
	ScaleDevice = "device"
)

// ScreenshotOptions parameterizes one capture. Zero values mean the
// defaults: no delay, quality 70, jpeg encoding at css pixel scale.
type ScreenshotOptions struct {
	Delay   time.Duration
	Quality int
	Format  string
	Scale   string
}

// Screenshot captures the page and returns both the raw and annotated image
// bytes. The contract: optional delay, recompute POI, capture, annotate with
// the current boxes, then recompute POI again and compare against the
// pre-capture snapshot. If the page mutated during capture the screenshot is
// retaken and re-annotated exactly once.
func (s *Session) Screenshot(ctx context.Context, opts ScreenshotOptions) (raw, annotated []byte, err error) {
	if opts.Quality <= 0 {
		opts.Quality = defaultScreenshotQuality
	}
	if opts.Delay > 0 {
		select {
		case <-time.After(opts.Delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	if err := s.UpdatePOI(ctx); err != nil {
		return nil, nil, err
	}
	before := s.Centroids()

	raw, err = s.capture(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	annotated, err = annotate.AnnotateImage(raw, s.BoundingBoxes())
	if err != nil {
		return nil, nil, err
	}

	if err := s.UpdatePOI(ctx); err != nil {
		return nil, nil, err
	}
	if !annotate.SameCentroids(before, s.Centroids()) {
		// The page moved under the capture; retake once so annotations match
		// what the model sees.
		s.logger.Debug("Page changed during screenshot, retaking",
			zap.Int("elements_before", len(before)),
			zap.Int("elements_after", len(s.Centroids())))
		raw, err = s.capture(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		if err := s.UpdatePOI(ctx); err != nil {
			return nil, nil, err
		}
		annotated, err = annotate.AnnotateImage(raw, s.BoundingBoxes())
		if err != nil {
			return nil, nil, err
		}
	}
	return raw, annotated, nil
}

// captureFormat maps a requested format to its protocol value. Anything
// other than png falls back to jpeg.
func captureFormat(format string) page.CaptureScreenshotFormat {
	if format == FormatPNG {
		return page.CaptureScreenshotFormatPng
	}
	return page.CaptureScreenshotFormatJpeg
}

func (s *Session) capture(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	format := captureFormat(opts.Format)

	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(format)
		if format == page.CaptureScreenshotFormatJpeg {
			params = params.WithQuality(int64(opts.Quality))
		}
		if opts.Scale != ScaleDevice {
			// Clip to the layout viewport at page scale 1 so the output has
			// one pixel per css pixel regardless of the device pixel ratio.
			_, _, _, cssViewport, _, _, err := page.GetLayoutMetrics().Do(ctx)
			if err != nil {
				return err
			}
			if cssViewport != nil {
				params = params.WithClip(&page.Viewport{
					X:      float64(cssViewport.PageX),
					Y:      float64(cssViewport.PageY),
					Width:  float64(cssViewport.ClientWidth),
					Height: float64(cssViewport.ClientHeight),
					Scale:  1,
				})
			}
		}

		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}
