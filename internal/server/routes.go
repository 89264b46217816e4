package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Sessions
	mux.HandleFunc("/api/sessions", s.handleSessionsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes) // /{id} and /{id}/{action}

	// API routes - Cached pages
	mux.HandleFunc("/api/pages", s.app.PageHandler.ListPagesHandler)
	mux.HandleFunc("/api/pages/preview", s.app.PageHandler.PreviewHandler)

	// API routes - Key/value store (credentials, settings)
	mux.HandleFunc("/api/kv", s.app.KVHandler.ListKVHandler)
	mux.HandleFunc("/api/kv/", s.handleKVRoutes) // GET/PUT/DELETE /{key}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSessionsRoute routes /api/sessions requests (list and create)
func (s *Server) handleSessionsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.SessionHandler.ListSessionsHandler,
		s.app.SessionHandler.CreateSessionHandler)
}

// handleSessionRoutes routes /api/sessions/{id} requests and action subpaths.
// Handlers resolve the session id from the path themselves; actions with a
// single verb enforce their own method guard.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	switch sessionAction(r.URL.Path) {
	case "":
		RouteResourceItem(w, r,
			s.app.SessionHandler.GetSessionHandler,
			nil,
			s.app.SessionHandler.DeleteSessionHandler)
	case "provider":
		s.app.SessionHandler.ConfigureProviderHandler(w, r)
	case "documents":
		s.app.SessionHandler.LoadDocumentsHandler(w, r)
	case "stats":
		s.app.SessionHandler.StatsHandler(w, r)
	case "ask":
		s.app.SessionHandler.AskHandler(w, r)
	case "messages":
		s.app.SessionHandler.MessagesHandler(w, r)
	case "reset":
		s.app.SessionHandler.ResetHandler(w, r)
	case "transcript":
		s.app.SessionHandler.TranscriptHandler(w, r)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleKVRoutes routes /api/kv/{key} requests
func (s *Server) handleKVRoutes(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r,
		s.app.KVHandler.GetKVHandler,
		nil,
		s.app.KVHandler.UpdateKVHandler,
		s.app.KVHandler.DeleteKVHandler)
}

// sessionAction extracts the action segment from /api/sessions/{id}/{action}
// paths. Returns "" when the path addresses the session itself.
func sessionAction(path string) string {
	rest := strings.TrimPrefix(path, "/api/sessions/")
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return ""
	}
	return strings.Trim(rest[i+1:], "/")
}
