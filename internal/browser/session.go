// File: internal/browser/session.go
package browser

import (
	"context"
	_ "embed" // Required for the go:embed directive
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/annotate"
	"github.com/yhl48/proxy-lite/internal/browser/stealth"
)

//go:embed scripts/custom_select.js
var customSelectScript string

//go:embed scripts/find_pois.js
var findPOIsScript string

// pageLoadTimeout bounds waits for page readiness. Many pages never reach a
// fully idle state, so a timeout degrades to best-effort rather than failing.
const pageLoadTimeout = 60 * time.Second

type sessionState int

const (
	stateUnstarted sessionState = iota
	stateActive
	stateClosed
)

// Options parameterizes a browser session.
type Options struct {
	ViewportWidth  int64
	ViewportHeight int64
	Headless       bool
	Args           []string
}

// Session owns one browser process and page. All element addressing is by
// mark id: the position of an element in the most recently computed POI
// snapshot.
type Session struct {
	opts    Options
	logger  *zap.Logger
	persona stealth.Persona

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once

	// mu guards state and the POI snapshot.
	mu        sync.Mutex
	state     sessionState
	elements  []map[string]any
	centroids []annotate.Point
	boxes     []annotate.BoundingBox
	pois      []annotate.POI
}

// NewSession creates an unstarted session. Start must be called next.
func NewSession(opts Options, logger *zap.Logger) *Session {
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1280
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 1080
	}
	return &Session{
		opts:    opts,
		logger:  logger.Named("browser"),
		persona: stealth.Default(opts.ViewportWidth, opts.ViewportHeight),
	}
}

// Start launches the browser process, creates the page, applies the stealth
// profile and registers the page-lifecycle scripts so they re-run on every
// navigation.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateUnstarted {
		s.mu.Unlock()
		return fmt.Errorf("browser session already started")
	}
	s.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.buildAllocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	err := chromedp.Run(browserCtx,
		stealth.Apply(s.persona, s.logger),
		injectOnNewDocument(customSelectScript),
		injectOnNewDocument(findPOIsScript),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.mu.Lock()
	s.allocCtx = allocCtx
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.state = stateActive
	s.mu.Unlock()

	s.logger.Info("Browser session started",
		zap.Int64("viewport_width", s.opts.ViewportWidth),
		zap.Int64("viewport_height", s.opts.ViewportHeight),
		zap.Bool("headless", s.opts.Headless),
	)
	return nil
}

// Close terminates the browser process. It is safe to call more than once
// and from any exit path.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		browserCtx := s.browserCtx
		browserCancel := s.browserCancel
		allocCancel := s.allocCancel
		s.mu.Unlock()

		if browserCancel != nil {
			browserCancel()
		}
		if browserCtx != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
			defer cancelWait()
			select {
			case <-browserCtx.Done():
				s.logger.Debug("Browser session closed gracefully.")
			case <-waitCtx.Done():
				s.logger.Warn("Deadline exceeded waiting for browser session to close.", zap.Error(waitCtx.Err()))
			}
		}
		if allocCancel != nil {
			allocCancel()
		}
	})
	return nil
}

// buildAllocatorOptions assembles browser launch flags, dropping the ones
// that reveal automation.
func (s *Session) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// The defaults pass --enable-automation; a false flag value drops it
		// from the command line.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", s.opts.Headless),
		chromedp.WindowSize(int(s.opts.ViewportWidth), int(s.opts.ViewportHeight)),
		chromedp.UserAgent(s.persona.UserAgent),
	)

	for _, arg := range s.opts.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// run executes chromedp actions against the session, cancelling them when
// the caller's context is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return fmt.Errorf("browser session is not active")
	}
	browserCtx := s.browserCtx
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// injectOnNewDocument registers a script to run before any page script on
// every new document, in every frame.
func injectOnNewDocument(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := addScriptOnNewDocument(ctx, script)
		return err
	})
}

// CurrentURL returns the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// POIs returns a copy of the current POI snapshot.
func (s *Session) POIs() []annotate.POI {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]annotate.POI, len(s.pois))
	copy(out, s.pois)
	return out
}

// Centroids returns a copy of the current centroid list.
func (s *Session) Centroids() []annotate.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]annotate.Point, len(s.centroids))
	copy(out, s.centroids)
	return out
}

// BoundingBoxes returns a copy of the current bounding box list.
func (s *Session) BoundingBoxes() []annotate.BoundingBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]annotate.BoundingBox, len(s.boxes))
	copy(out, s.boxes)
	return out
}

// markCentroid resolves a mark id to its centroid in the current snapshot.
func (s *Session) markCentroid(markID int) (annotate.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if markID < 0 || markID >= len(s.centroids) {
		return annotate.Point{}, fmt.Errorf("no element with mark id %d (have %d elements)", markID, len(s.centroids))
	}
	return s.centroids[markID], nil
}

// markBox resolves a mark id to its bounding box in the current snapshot.
func (s *Session) markBox(markID int) (annotate.BoundingBox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if markID < 0 || markID >= len(s.boxes) {
		return annotate.BoundingBox{}, fmt.Errorf("no element with mark id %d (have %d elements)", markID, len(s.boxes))
	}
	return s.boxes[markID], nil
}
