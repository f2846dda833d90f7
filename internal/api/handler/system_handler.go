package handler

import (
	"net/http"

	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/service"
)

// SystemHandler serves process-wide status.
type SystemHandler struct {
	svc *service.WatchService
	q   *queue.RecheckQueue
}

func NewSystemHandler(svc *service.WatchService, q *queue.RecheckQueue) *SystemHandler {
	return &SystemHandler{svc: svc, q: q}
}

// SystemInfo handles GET /api/v1/systeminfo
//
// @Summary  Queue size, overdue watches, uptime and watch count
// @Tags     system
// @Produce  json
// @Success  200  {object}  status.Status
// @Router   /api/v1/systeminfo [get]
func (h *SystemHandler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.SystemInfo())
}

// Queue handles GET /api/v1/queue
//
// @Summary  Pending rechecks in dequeue order
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/queue [get]
func (h *SystemHandler) Queue(w http.ResponseWriter, r *http.Request) {
	pending := h.q.Pending()
	respondJSON(w, http.StatusOK, map[string]any{
		"size":    len(pending),
		"pending": pending,
	})
}
