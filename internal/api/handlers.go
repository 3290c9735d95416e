package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCheckSubscription(w http.ResponseWriter, r *http.Request) {
	accountKey := strings.TrimSpace(r.PathValue("accountKey"))
	if accountKey == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "account key is required"})
		return
	}

	status, err := s.resolver.CheckSubscription(r.Context(), accountKey)
	if err != nil {
		log.Error().Err(err).Str("account", accountKey).Msg("Subscription check rejected")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
