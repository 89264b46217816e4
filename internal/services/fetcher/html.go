package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/rogo/internal/models"
)

const defaultMaxBodySize = 10 * 1024 * 1024

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// fetchHTTP performs a plain GET and extracts the response by content type.
func (s *Service) fetchHTTP(ctx context.Context, target *url.URL) (*models.Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.Fetcher.FetchTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target.String(), err)
	}
	req.Header.Set("User-Agent", s.config.Fetcher.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.TimeoutError{Op: "fetch", Err: err}
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", target.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch failed for %s: HTTP status %d %s", target.String(), resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	limit := int64(s.config.Fetcher.MaxBodySize)
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.TimeoutError{Op: "fetch", Err: err}
		}
		return nil, fmt.Errorf("failed to read response from %s: %w", target.String(), err)
	}

	contentType := resp.Header.Get("Content-Type")
	if isPDFContent(contentType, body) {
		return s.parsePDF(target, body, resp.StatusCode, contentType)
	}

	return s.parseHTML(target.String(), body, resp.StatusCode, contentType)
}

// parseHTML extracts metadata, plain text, and a markdown rendition from an
// HTML body.
func (s *Service) parseHTML(pageURL string, body []byte, statusCode int, contentType string) (*models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "No title found"
	}
	description := strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", ""))
	keywords := strings.TrimSpace(doc.Find("meta[name='keywords']").AttrOr("content", ""))

	content := contentSelection(doc)
	markdown := s.toMarkdown(pageURL, content)
	text := cleanWhitespace(content.Text())

	return &models.Page{
		URL:           pageURL,
		Title:         title,
		Description:   description,
		Keywords:      keywords,
		Text:          text,
		Markdown:      markdown,
		ContentLength: utf8.RuneCountInString(text),
		StatusCode:    statusCode,
		ContentType:   contentType,
		FetchedAt:     time.Now(),
	}, nil
}

// contentSelection narrows the document to its main content and strips
// boilerplate. When the page marks its main content with main/article/
// [role=main] that subtree wins; otherwise the whole body is used with
// navigation and ad elements removed.
func contentSelection(doc *goquery.Document) *goquery.Selection {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	if main := body.Find("main, article, [role=main]").First(); main.Length() > 0 {
		body = main
	}

	body.Find("script, style, noscript").Remove()
	body.Find("nav, header, footer, aside").Remove()
	body.Find("[class*=ad], [id*=ad], [class*=promo]").Remove()

	return body
}

func (s *Service) toMarkdown(pageURL string, content *goquery.Selection) string {
	html, err := content.Html()
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to extract HTML for markdown conversion")
		return ""
	}

	converter := md.NewConverter(pageURL, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to convert HTML to markdown")
		return ""
	}

	return markdown
}

// cleanWhitespace collapses space runs and excessive blank lines while
// keeping paragraph breaks for the chunker to split on.
func cleanWhitespace(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
