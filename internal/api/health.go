package api

import "net/http"

// healthHandler reports service identity and the configured models, for
// probes and client sanity checks.
type healthHandler struct {
	generationModel string
	embeddingModel  string
}

func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "RAG API",
		"model":     h.generationModel,
		"embedding": h.embeddingModel,
	})
}
