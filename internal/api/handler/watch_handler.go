package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/changewatch/internal/api/middleware"
	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/service"
)

// WatchHandler handles the watch CRUD and recheck endpoints.
type WatchHandler struct {
	svc    *service.WatchService
	logger *zap.Logger
}

func NewWatchHandler(svc *service.WatchService, logger *zap.Logger) *WatchHandler {
	return &WatchHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/watch
//
// @Summary     Create a watch and queue its first check
// @Tags        watch
// @Accept      json
// @Produce     json
// @Param       body  body      domain.CreateWatchRequest  true  "Watch payload"
// @Success     201   {object}  service.WatchView
// @Failure     400   {object}  map[string]string
// @Router      /api/v1/watch [post]
func (h *WatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := domain.DecodeCreateWatchRequest(r.Body)
	if err != nil {
		mapError(w, err)
		return
	}

	v, err := h.svc.Create(req)
	if err != nil {
		h.logger.Warn("create watch failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// List handles GET /api/v1/watch
//
// With ?recheck_all=1 every listed watch is queued for an immediate check
// instead.
//
// @Summary  List watches, optionally by tag
// @Tags     watch
// @Produce  json
// @Param    tag          query     string  false  "Tag filter"
// @Param    recheck_all  query     string  false  "1 to queue all listed watches"
// @Success  200          {object}  map[string]domain.WatchSummary
// @Router   /api/v1/watch [get]
func (h *WatchHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tag := q.Get("tag")

	if q.Get("recheck_all") == "1" {
		n, err := h.svc.RecheckAll(tag)
		if err != nil {
			mapError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"queued": n})
		return
	}

	respondJSON(w, http.StatusOK, h.svc.List(tag))
}

// Get handles GET /api/v1/watch/{id}
//
// The action parameters ?recheck=1, ?paused=paused|unpaused and
// ?muted=muted|unmuted act on the watch and answer {"status":"OK"}.
//
// @Summary  Get a watch, or act on it
// @Tags     watch
// @Produce  json
// @Param    id       path      string  true   "Watch UUID"
// @Param    recheck  query     string  false  "1 to queue an immediate check"
// @Param    paused   query     string  false  "paused | unpaused"
// @Param    muted    query     string  false  "muted | unmuted"
// @Success  200      {object}  service.WatchView
// @Failure  400      {object}  map[string]string
// @Failure  404      {object}  map[string]string
// @Router   /api/v1/watch/{id} [get]
func (h *WatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	acted, err := h.act(id, q.Get("recheck"), q.Get("paused"), q.Get("muted"))
	if err != nil {
		mapError(w, err)
		return
	}
	if acted {
		respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
		return
	}

	v, err := h.svc.Get(id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *WatchHandler) act(id, recheck, paused, muted string) (bool, error) {
	acted := false
	if recheck == "1" {
		if err := h.svc.Recheck(id); err != nil {
			return false, err
		}
		acted = true
	}
	switch paused {
	case "":
	case "paused", "unpaused":
		if err := h.svc.SetPaused(id, paused == "paused"); err != nil {
			return false, err
		}
		acted = true
	default:
		return false, fmt.Errorf("%w: paused must be 'paused' or 'unpaused'", domain.ErrSchema)
	}
	switch muted {
	case "":
	case "muted", "unmuted":
		if err := h.svc.SetMuted(id, muted == "muted"); err != nil {
			return false, err
		}
		acted = true
	default:
		return false, fmt.Errorf("%w: muted must be 'muted' or 'unmuted'", domain.ErrSchema)
	}
	return acted, nil
}

// Update handles PUT /api/v1/watch/{id}
//
// @Summary  Partially update a watch
// @Tags     watch
// @Accept   json
// @Produce  json
// @Param    id    path      string             true  "Watch UUID"
// @Param    body  body      domain.WatchPatch  true  "Fields to change"
// @Success  200   {object}  service.WatchView
// @Failure  400   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/watch/{id} [put]
func (h *WatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	patch, err := domain.DecodeWatchPatch(r.Body)
	if err != nil {
		mapError(w, err)
		return
	}
	v, err := h.svc.Update(chi.URLParam(r, "id"), patch)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/v1/watch/{id}
//
// @Summary  Delete a watch and any pending recheck
// @Tags     watch
// @Param    id   path  string  true  "Watch UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/watch/{id} [delete]
func (h *WatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
