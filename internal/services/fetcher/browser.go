package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/models"
)

// browserWaitTime gives client-side JavaScript a chance to populate the DOM
// after navigation completes.
const browserWaitTime = 2 * time.Second

// browserRenderer drives a headless Chrome instance for pages that need
// JavaScript execution before their content is extractable. The browser
// starts lazily on first use and is shared across renders; each render runs
// in its own tab.
type browserRenderer struct {
	mu          sync.Mutex
	browserCtx  context.Context
	cancels     []context.CancelFunc
	userAgent   string
	logger      arbor.ILogger
	initialized bool
}

func newBrowserRenderer(userAgent string, logger arbor.ILogger) *browserRenderer {
	return &browserRenderer{
		userAgent: userAgent,
		logger:    logger,
	}
}

// init starts the browser. Callers hold r.mu.
func (r *browserRenderer) init() error {
	if r.initialized {
		return nil
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup probe; a missing Chrome binary surfaces here instead of deep
	// inside the first render.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start headless browser: %w", err)
	}

	r.browserCtx = browserCtx
	r.cancels = []context.CancelFunc{browserCancel, allocCancel}
	r.initialized = true

	r.logger.Info().
		Str("user_agent", r.userAgent).
		Msg("Headless browser started")

	return nil
}

// render navigates to the URL in a fresh tab and returns the rendered HTML.
func (r *browserRenderer) render(ctx context.Context, targetURL string, timeout time.Duration) (string, error) {
	r.mu.Lock()
	if err := r.init(); err != nil {
		r.mu.Unlock()
		return "", err
	}
	browserCtx := r.browserCtx
	r.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	renderCtx, renderCancel := context.WithTimeout(tabCtx, timeout)
	defer renderCancel()

	// Caller cancellation propagates to the tab.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			renderCancel()
		case <-done:
		}
	}()

	headers := network.Headers{
		"Accept-Language": "en-US,en;q=0.9",
	}

	var html string
	err := chromedp.Run(renderCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(targetURL),
		chromedp.Sleep(browserWaitTime),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
			return "", &models.TimeoutError{Op: "fetch", Err: err}
		}
		return "", fmt.Errorf("browser render failed for %s: %w", targetURL, err)
	}

	r.logger.Debug().
		Str("url", targetURL).
		Int("html_length", len(html)).
		Msg("Rendered page in browser")

	return html, nil
}

// Close shuts the browser down. Safe to call when it never started.
func (r *browserRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return
	}
	for _, cancel := range r.cancels {
		cancel()
	}
	r.initialized = false

	r.logger.Debug().Msg("Headless browser stopped")
}
