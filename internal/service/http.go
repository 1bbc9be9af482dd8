package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// HTTPHandler exposes Matcher over a JSON HTTP API: GET /fuzzy and
// GET /near. It does not serve /health or /ready. Grounded on the teacher's
// internal/server/handlers.go writeJSON/writeError response convention and
// cmd/server/main.go's route registration.
type HTTPHandler struct {
	matcher *Matcher
	logger  *slog.Logger
}

// NewHTTPHandler returns a handler backed by matcher.
func NewHTTPHandler(matcher *Matcher, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{matcher: matcher, logger: logger}
}

// RegisterRoutes registers every route this handler serves on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /fuzzy", h.handleFuzzy)
	mux.HandleFunc("GET /near", h.handleNear)
}

func (h *HTTPHandler) handleFuzzy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: q")
		return
	}
	k, err := intParam(q, "k", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prefix, err := intParam(q, "prefix", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, err := h.matcher.Fuzzy(r.Context(), []byte(query), k, prefix)
	if err != nil {
		h.logger.Error("fuzzy request failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer it.Close()

	writeJSON(w, http.StatusOK, matchesResponse(it))
}

func (h *HTTPHandler) handleNear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: q")
		return
	}
	prefix, err := intParam(q, "prefix", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	greedy := q.Get("greedy") == "true"

	it, err := h.matcher.Near(r.Context(), []byte(query), prefix, greedy)
	if err != nil {
		h.logger.Error("near request failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer it.Close()

	writeJSON(w, http.StatusOK, matchesResponse(it))
}

func matchesResponse(it *ClosingIterator) map[string]any {
	var matches []map[string]any
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		matches = append(matches, map[string]any{
			"key":   string(m.Key()),
			"value": string(m.Value()),
			"score": m.Score(),
		})
	}
	return map[string]any{
		"matches": matches,
		"count":   len(matches),
	}
}

func intParam(q map[string][]string, name string, fallback int) (int, error) {
	v, ok := q[name]
	if !ok || len(v) == 0 || v[0] == "" {
		return fallback, nil
	}
	return strconv.Atoi(v[0])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}
