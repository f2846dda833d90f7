package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/api/handler"
	apimw "github.com/notifyhub/changewatch/internal/api/middleware"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
// /health and /metrics stay outside the API key check.
func NewRouter(
	svc *service.WatchService,
	q *queue.RecheckQueue,
	reg prometheus.Gatherer,
	apiKey string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	wh := handler.NewWatchHandler(svc, logger)
	sh := handler.NewSystemHandler(svc, q)
	hh := handler.NewHealthHandler(q)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apimw.APIKey(apiKey))

		r.Get("/watch", wh.List)
		r.Post("/watch", wh.Create)
		r.Get("/watch/{id}", wh.Get)
		r.Put("/watch/{id}", wh.Update)
		r.Delete("/watch/{id}", wh.Delete)

		r.Get("/systeminfo", sh.SystemInfo)
		r.Get("/queue", sh.Queue)
	})

	return r
}
