package interfaces

import (
	"context"

	"github.com/ternarybob/rogo/internal/models"
)

// FetchOptions tune a single fetch.
type FetchOptions struct {
	// RenderMode selects "http" (default) or "browser" for JS-heavy pages.
	RenderMode string

	// BypassCache forces a network fetch even when a fresh cached page exists.
	BypassCache bool
}

// Fetcher retrieves a URL and extracts its text content. Implementations
// handle plain HTML, PDF responses, GitHub repositories, and optional
// headless-browser rendering, and consult the page cache before the network.
type Fetcher interface {
	// Fetch retrieves and extracts the page at rawURL.
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*models.Page, error)
}
