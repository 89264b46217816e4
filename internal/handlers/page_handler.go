package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/interfaces"
)

// PageHandler serves the cached-page endpoints: listing what the fetcher has
// stored and previewing a cached page as HTML.
type PageHandler struct {
	pages    interfaces.PageStorage
	exporter interfaces.ExportService
	logger   arbor.ILogger
}

// NewPageHandler creates a new page handler.
func NewPageHandler(pages interfaces.PageStorage, exporter interfaces.ExportService, logger arbor.ILogger) *PageHandler {
	return &PageHandler{
		pages:    pages,
		exporter: exporter,
		logger:   logger,
	}
}

// ListPagesHandler returns summaries of all cached pages, newest first.
func (h *PageHandler) ListPagesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	pages, err := h.pages.ListPages(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list cached pages")
		WriteError(w, http.StatusInternalServerError, "Failed to list pages")
		return
	}

	summaries := make([]map[string]interface{}, 0, len(pages))
	for _, page := range pages {
		summaries = append(summaries, map[string]interface{}{
			"url":            page.URL,
			"title":          page.Title,
			"content_length": page.ContentLength,
			"status_code":    page.StatusCode,
			"fetched_at":     page.FetchedAt,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(summaries),
		"pages":   summaries,
	})
}

// PreviewHandler renders a cached page's markdown as HTML for display. The
// page must already be cached; preview never triggers a fetch.
func (h *PageHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		WriteError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	page, err := h.pages.GetPage(r.Context(), url)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Page not cached")
			return
		}
		h.logger.Error().Err(err).Str("url", url).Msg("Failed to load cached page")
		WriteError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}

	source := page.Markdown
	if source == "" {
		source = page.Text
	}

	html, err := h.exporter.RenderHTML(source)
	if err != nil {
		h.logger.Error().Err(err).Str("url", url).Msg("Page preview render failed")
		WriteError(w, http.StatusInternalServerError, "Failed to render preview")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"url":        page.URL,
		"title":      page.Title,
		"html":       html,
		"fetched_at": page.FetchedAt,
	})
}
