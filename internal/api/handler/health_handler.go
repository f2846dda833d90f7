package handler

import (
	"net/http"

	"github.com/notifyhub/changewatch/internal/queue"
)

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	q *queue.RecheckQueue
}

func NewHealthHandler(q *queue.RecheckQueue) *HealthHandler { return &HealthHandler{q: q} }

// Health handles GET /health. Once the recheck queue has shut down the
// service is draining and reports 503.
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.q.Closed() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
