// Package fetcher retrieves URLs and extracts their text content. Plain
// HTML goes through a goquery extraction pipeline, GitHub repository URLs
// resolve to the README via the GitHub API, PDF responses go through pdfcpu,
// and JavaScript-heavy pages can be rendered in headless Chrome. Fetched
// pages are cached so repeat loads of the same URL within the TTL skip the
// network.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// Render modes accepted by FetchOptions and the fetcher config.
const (
	RenderModeHTTP    = "http"
	RenderModeBrowser = "browser"
)

// Service implements interfaces.Fetcher.
type Service struct {
	config  *common.Config
	pages   interfaces.PageStorage
	kv      interfaces.KeyValueStorage
	client  *http.Client
	browser *browserRenderer
	logger  arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.Fetcher = (*Service)(nil)

// NewService creates a fetcher. pages and kv may be nil, in which case the
// page cache is skipped and the GitHub token comes from config or environment
// only.
func NewService(config *common.Config, pages interfaces.PageStorage, kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		pages:   pages,
		kv:      kv,
		client:  &http.Client{},
		browser: newBrowserRenderer(config.Fetcher.UserAgent, logger),
		logger:  logger,
	}
}

// Fetch retrieves and extracts the page at rawURL. The page cache is
// consulted first unless opts.BypassCache is set; fresh results are
// persisted back to the cache.
func (s *Service) Fetch(ctx context.Context, rawURL string, opts interfaces.FetchOptions) (*models.Page, error) {
	target, err := s.validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	if s.pages != nil && !opts.BypassCache {
		cached, err := s.pages.GetPage(ctx, target.String())
		if err == nil && s.pages.IsFresh(cached, s.config.Fetcher.PageCacheTTL()) {
			s.logger.Debug().
				Str("url", target.String()).
				Msg("Serving page from cache")
			return cached, nil
		}
	}

	start := time.Now()
	page, err := s.fetch(ctx, target, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("url", page.URL).
		Int("status_code", page.StatusCode).
		Int("content_length", page.ContentLength).
		Dur("fetch_time", time.Since(start)).
		Msg("Fetched page")

	if s.pages != nil {
		if err := s.pages.SavePage(ctx, page); err != nil {
			s.logger.Warn().Err(err).Str("url", page.URL).Msg("Failed to cache fetched page")
		}
	}

	return page, nil
}

// fetch dispatches by URL shape and render mode. GitHub repository URLs are
// answered from the GitHub API rather than scraped.
func (s *Service) fetch(ctx context.Context, target *url.URL, opts interfaces.FetchOptions) (*models.Page, error) {
	if owner, repo, ok := parseGitHubRepo(target); ok {
		return s.fetchGitHubReadme(ctx, target, owner, repo)
	}

	mode := strings.ToLower(strings.TrimSpace(opts.RenderMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(s.config.Fetcher.RenderMode))
	}
	if mode == RenderModeBrowser {
		return s.fetchBrowser(ctx, target)
	}

	return s.fetchHTTP(ctx, target)
}

func (s *Service) fetchBrowser(ctx context.Context, target *url.URL) (*models.Page, error) {
	html, err := s.browser.render(ctx, target.String(), s.config.Fetcher.FetchTimeout())
	if err != nil {
		return nil, err
	}
	return s.parseHTML(target.String(), []byte(html), http.StatusOK, "text/html")
}

// validateURL rejects anything that is not an absolute http(s) URL. Loopback
// hosts are only allowed outside production.
func (s *Service) validateURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", trimmed, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q: only http and https are supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing host", trimmed)
	}
	if isLoopbackHost(parsed.Hostname()) && !s.config.AllowTestURLs() {
		return nil, fmt.Errorf("local URLs are not allowed in production: %s", trimmed)
	}

	return parsed, nil
}

func isLoopbackHost(host string) bool {
	lowered := strings.ToLower(host)
	if lowered == "localhost" || strings.HasSuffix(lowered, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

// Close releases the headless browser if one was started.
func (s *Service) Close() {
	s.browser.Close()
}
