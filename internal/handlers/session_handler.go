package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/qa"
	"github.com/ternarybob/rogo/internal/services/session"
)

// SessionHandler serves the session lifecycle endpoints: create, inspect,
// document loading, questions, transcripts, and teardown.
type SessionHandler struct {
	sessions *session.Manager
	qa       *qa.Service
	fetcher  interfaces.Fetcher
	exporter interfaces.ExportService
	logger   arbor.ILogger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *session.Manager, qaService *qa.Service, fetcher interfaces.Fetcher, exporter interfaces.ExportService, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		qa:       qaService,
		fetcher:  fetcher,
		exporter: exporter,
		logger:   logger,
	}
}

type createSessionRequest struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Persona     string  `json:"persona,omitempty"`
	ChunkSize   int     `json:"chunk_size,omitempty"`
	// Pointer so an explicit zero overlap is distinguishable from an absent
	// field, which falls back to the configured default.
	ChunkOverlap *int `json:"chunk_overlap,omitempty"`
}

// CreateSessionHandler registers a new chat session and attempts to configure
// its provider. A failed provider setup is reported as a warning rather than
// an error; the session is still created and the provider can be configured
// later.
func (h *SessionHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createSessionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	overlap := -1
	if req.ChunkOverlap != nil {
		overlap = *req.ChunkOverlap
	}

	sess, err := h.sessions.Create(req.Persona, req.ChunkSize, overlap)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	selection := models.ProviderConfig{
		Provider:    req.Provider,
		Credential:  req.APIKey,
		Model:       req.Model,
		Temperature: req.Temperature,
	}

	response := map[string]interface{}{"success": true}
	info, err := h.qa.ConfigureProvider(r.Context(), sess, selection)
	if err != nil {
		response["warning"] = err.Error()
		response["provider"] = h.qa.ProviderInfo(sess)
	} else {
		response["provider"] = info
	}
	response["session"] = sess.Info()

	WriteJSON(w, http.StatusCreated, response)
}

// ListSessionsHandler returns summaries for all live sessions, most recently
// active first.
func (h *SessionHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sessions := h.sessions.List()
	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActiveAt.After(infos[j].LastActiveAt)
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(infos),
		"sessions": infos,
	})
}

// GetSessionHandler returns the session summary with its provider and
// processing stats.
func (h *SessionHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"session":  sess.Info(),
		"provider": h.qa.ProviderInfo(sess),
		"stats":    h.qa.Stats(sess),
	})
}

// DeleteSessionHandler removes a session.
func (h *SessionHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := sessionID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Session id is required")
		return
	}
	if !h.sessions.Remove(id) {
		WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	WriteSuccess(w, "Session deleted")
}

type configureProviderRequest struct {
	Provider       string `json:"provider"`
	Model          string `json:"model,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	// GoogleAPIKey carries the embedding credential for Claude sessions,
	// which embed through Gemini.
	GoogleAPIKey string  `json:"google_api_key,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// ConfigureProviderHandler switches the session's AI provider. The existing
// index is marked stale and rebuilt with the new provider on the next
// question.
func (h *SessionHandler) ConfigureProviderHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req configureProviderRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	selection := models.ProviderConfig{
		Provider:        req.Provider,
		Credential:      req.APIKey,
		EmbedCredential: req.GoogleAPIKey,
		Model:           req.Model,
		EmbeddingModel:  req.EmbeddingModel,
		Temperature:     req.Temperature,
	}

	info, err := h.qa.ConfigureProvider(r.Context(), sess, selection)
	if err != nil {
		WriteError(w, statusForKind(models.KindOf(err)), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"provider": info,
		"session":  sess.Info(),
	})
}

type loadDocumentsRequest struct {
	URL          string `json:"url,omitempty"`
	Text         string `json:"text,omitempty"`
	Title        string `json:"title,omitempty"`
	RenderMode   string `json:"render_mode,omitempty"`
	BypassCache  bool   `json:"bypass_cache,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
}

// LoadDocumentsHandler fetches a URL (or accepts pasted text), splits it into
// chunks, and stores the result on the session. Pages with no extractable
// text succeed with a warning so the client can tell the user instead of
// retrying.
func (h *SessionHandler) LoadDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req loadDocumentsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" && strings.TrimSpace(req.Text) == "" {
		WriteError(w, http.StatusBadRequest, "Either url or text is required")
		return
	}
	if req.URL != "" && req.Text != "" {
		WriteError(w, http.StatusBadRequest, "Provide either url or text, not both")
		return
	}

	var page *models.Page
	if req.URL != "" {
		fetched, err := h.fetcher.Fetch(r.Context(), req.URL, interfaces.FetchOptions{
			RenderMode:  req.RenderMode,
			BypassCache: req.BypassCache,
		})
		if err != nil {
			h.logger.Warn().Err(err).Str("url", req.URL).Msg("Document fetch failed")
			WriteError(w, http.StatusBadGateway, fmt.Sprintf("Failed to fetch %s: %v", req.URL, err))
			return
		}
		page = fetched
	} else {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = "Pasted text"
		}
		page = &models.Page{
			Title:         title,
			Text:          req.Text,
			ContentLength: len(req.Text),
			FetchedAt:     time.Now(),
		}
	}

	overlap := -1
	if req.ChunkOverlap != nil {
		overlap = *req.ChunkOverlap
	}

	result, err := h.qa.ProcessDocuments(r.Context(), sess, page, req.ChunkSize, overlap)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	response := map[string]interface{}{
		"success": true,
		"session": sess.Info(),
		"stats":   result.Stats,
		"page": map[string]interface{}{
			"url":            page.URL,
			"title":          page.Title,
			"content_length": page.ContentLength,
			"fetched_at":     page.FetchedAt,
		},
	}
	if result.NoContent {
		response["no_content"] = true
		response["warning"] = "The page contains no extractable text"
	}

	WriteJSON(w, http.StatusOK, response)
}

// StatsHandler returns the session's readiness and the stats from its last
// document load.
func (h *SessionHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   sess.State(),
		"ready":   h.qa.IsReady(sess),
		"stats":   h.qa.Stats(sess),
	})
}

type askRequest struct {
	Question string `json:"question"`
}

// AskHandler answers a question against the session's documents. The response
// is always 200 with a user-presentable answer; pipeline failures surface in
// the error field with success false.
func (h *SessionHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req askRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	answer := h.qa.Ask(r.Context(), sess, req.Question)

	sources := answer.Sources
	if sources == nil {
		sources = []models.Source{}
	}

	response := map[string]interface{}{
		"success": answer.OK(),
		"answer":  answer.Text,
		"sources": sources,
	}
	if answer.Err != nil {
		response["error"] = answer.Err
	}

	WriteJSON(w, http.StatusOK, response)
}

// MessagesHandler returns the session transcript in order.
func (h *SessionHandler) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	messages := sess.Messages()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(messages),
		"messages": messages,
	})
}

// ResetHandler clears the session's documents, index, and transcript while
// keeping its provider configuration.
func (h *SessionHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	h.qa.Reset(r.Context(), sess)
	WriteSuccess(w, "Session reset")
}

// TranscriptHandler exports the conversation. The format query parameter
// selects markdown (default), html, or pdf.
func (h *SessionHandler) TranscriptHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	info := sess.Info()
	messages := sess.Messages()

	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", "markdown", "md":
		markdown := h.exporter.TranscriptMarkdown(info, messages)
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", transcriptDisposition(info.ID, "md"))
		w.Write([]byte(markdown))

	case "html":
		html, err := h.exporter.TranscriptHTML(info, messages)
		if err != nil {
			h.logger.Error().Err(err).Str("session_id", info.ID).Msg("Transcript HTML render failed")
			WriteError(w, http.StatusInternalServerError, "Failed to render transcript")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))

	case "pdf":
		pdf, err := h.exporter.TranscriptPDF(info, messages)
		if err != nil {
			h.logger.Error().Err(err).Str("session_id", info.ID).Msg("Transcript PDF render failed")
			WriteError(w, http.StatusInternalServerError, "Failed to render transcript")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", transcriptDisposition(info.ID, "pdf"))
		w.Write(pdf)

	default:
		WriteError(w, http.StatusBadRequest, "Unsupported format: use markdown, html, or pdf")
	}
}

// lookup resolves the session addressed by the request path, writing the
// error response when the id is missing or unknown.
func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := sessionID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Session id is required")
		return nil, false
	}

	sess, ok := h.sessions.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return sess, true
}

// sessionID extracts the id segment from /api/sessions/{id} and
// /api/sessions/{id}/{action} paths.
func sessionID(path string) string {
	rest := strings.TrimPrefix(path, "/api/sessions/")
	if rest == path {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func transcriptDisposition(sessionID, ext string) string {
	return fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("transcript-%s.%s", sessionID, ext))
}

// statusForKind maps pipeline error kinds onto HTTP status codes.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindUnsupportedProvider, models.ErrKindMissingCredential:
		return http.StatusBadRequest
	case models.ErrKindInvalidCredential:
		return http.StatusUnauthorized
	case models.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
