package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/hospital-bed-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hospital-bed-platform/internal/http/middleware"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Allocation         *handlers.AllocationHandler
	EventsFeed         http.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-client limit on mutating API calls; zero disables it.
	WriteRateLimit float64
	WriteBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	h := cfg.Allocation
	r.Get("/health", h.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	// Websocket upgrades need the raw writer, so the feed sits outside the
	// compressed API group.
	if cfg.EventsFeed != nil {
		r.Handle("/ws/events", cfg.EventsFeed)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Compress(5))

		writes := func(next http.Handler) http.Handler { return next }
		if cfg.WriteRateLimit > 0 {
			burst := cfg.WriteBurst
			if burst <= 0 {
				burst = 1
			}
			writes = httpmiddleware.RateLimit(cfg.WriteRateLimit, burst)
		}

		api.Route("/beds", func(b chi.Router) {
			b.Get("/", h.ListBeds)
			b.With(writes).Post("/{id}/cleaned", h.CompleteCleaning)
			b.With(writes).Post("/{id}/maintenance", h.StartMaintenance)
			b.With(writes).Delete("/{id}/maintenance", h.EndMaintenance)
		})
		api.Get("/dashboard/summary", h.DashboardSummary)

		api.Route("/patients", func(p chi.Router) {
			p.With(writes).Post("/", h.RegisterPatient)
			p.Get("/{id}/discharge-estimate", h.DischargeEstimate)
			p.With(writes).Post("/{id}/discharge", h.DischargePatient)
		})
		api.With(writes).Post("/recommendations", h.Recommend)

		api.Route("/assignments", func(a chi.Router) {
			a.Get("/", h.ListAssignments)
			a.With(writes).Post("/", h.StartAssignment)
			a.Get("/{id}", h.GetAssignment)
			a.With(writes).Post("/{id}/cancel", h.CancelAssignment)
		})

		api.Route("/alerts", func(al chi.Router) {
			al.Get("/", h.ListAlerts)
			al.With(writes).Post("/sweep", h.SweepAlerts)
			al.With(writes).Post("/{id}/acknowledge", h.AcknowledgeAlert)
			al.With(writes).Post("/{id}/resolve", h.ResolveAlert)
		})
	})

	return r
}
