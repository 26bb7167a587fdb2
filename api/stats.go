package api

import (
	"net/http"
)

type statsResponse struct {
	Events        int `json:"events"`
	Subscriptions int `json:"subscriptions"`
	Connections   int `json:"connections"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.backend.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Events:        stats.Events,
		Subscriptions: stats.Subscriptions,
		Connections:   stats.Connections,
	})
}
