package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/interfaces"
)

// KVHandler serves the settings store endpoints. Values are typically API
// keys, so the list view masks them; fetching a single key returns the full
// value for editing.
type KVHandler struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewKVHandler creates a new KV handler.
func NewKVHandler(kv interfaces.KeyValueStorage, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kv:     kv,
		logger: logger,
	}
}

// ListKVHandler handles GET /api/kv with masked values.
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	pairs, err := h.kv.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		WriteError(w, http.StatusInternalServerError, "Failed to list key/value pairs")
		return
	}

	masked := make([]map[string]interface{}, len(pairs))
	for i, pair := range pairs {
		masked[i] = map[string]interface{}{
			"key":         pair.Key,
			"value":       maskValue(pair.Value),
			"description": pair.Description,
			"created_at":  pair.CreatedAt,
			"updated_at":  pair.UpdatedAt,
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(masked),
		"pairs":   masked,
	})
}

// GetKVHandler handles GET /api/kv/{key}. The value is returned unmasked for
// editing.
func (h *KVHandler) GetKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	key, ok := kvKey(w, r)
	if !ok {
		return
	}

	pair, err := h.kv.GetPair(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to get key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve key/value pair")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"key":         pair.Key,
		"value":       pair.Value,
		"description": pair.Description,
		"created_at":  pair.CreatedAt,
		"updated_at":  pair.UpdatedAt,
	})
}

// UpdateKVHandler handles PUT /api/kv/{key}, creating or replacing the pair.
// An empty value updates the description only and requires the key to exist.
func (h *KVHandler) UpdateKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	key, ok := kvKey(w, r)
	if !ok {
		return
	}

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	value := req.Value
	if value == "" {
		current, err := h.kv.GetPair(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusNotFound, "Key not found")
				return
			}
			h.logger.Error().Err(err).Str("key", key).Msg("Failed to get current value")
			WriteError(w, http.StatusInternalServerError, "Failed to retrieve current value")
			return
		}
		value = current.Value
	}

	created, err := h.kv.Upsert(r.Context(), key, value, req.Description)
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to upsert key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to store key/value pair")
		return
	}

	status := http.StatusOK
	message := "Key/value pair updated"
	if created {
		status = http.StatusCreated
		message = "Key/value pair created"
	}

	WriteJSON(w, status, map[string]interface{}{
		"success": true,
		"message": message,
		"key":     key,
		"created": created,
	})
}

// DeleteKVHandler handles DELETE /api/kv/{key}.
func (h *KVHandler) DeleteKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	key, ok := kvKey(w, r)
	if !ok {
		return
	}

	if err := h.kv.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to delete key/value pair")
		return
	}

	WriteSuccess(w, "Key/value pair deleted")
}

// kvKey extracts and decodes the key segment from /api/kv/{key} paths,
// writing the error response when it is missing or malformed.
func kvKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	encoded := r.URL.Path[len("/api/kv/"):]

	key, err := url.QueryUnescape(encoded)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return "", false
	}
	return key, true
}

// maskValue hides stored secrets in list responses. Short values mask
// entirely; longer ones keep the first and last four characters.
func maskValue(value string) string {
	if len(value) < 8 {
		return "••••••••"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
