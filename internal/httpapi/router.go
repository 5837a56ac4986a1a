package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"busbooking/internal/api"
	"busbooking/internal/approval"
	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/dashboard"
	"busbooking/internal/notify"
	"busbooking/internal/tripsheet"
	"busbooking/internal/user"
	"busbooking/pkg/config"
	"busbooking/pkg/logger"
	"busbooking/pkg/metrics"
)

type Dependencies struct {
	Cfg     config.Config
	Log     logger.Logger
	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Buses    bus.Store
	Bookings booking.Store
	Users    user.Directory
	Sink     notify.Sink

	DriverScope dashboard.DriverScope
	// Ping reports store health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
	// Now overrides the clock used for token expiry and "today". Tests only.
	Now func() time.Time
}

func NewRouter(deps Dependencies) http.Handler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	loc := deps.Cfg.SchoolTimezone
	if loc == nil {
		loc = time.UTC
	}

	registry := bus.NewRegistry(deps.Buses, deps.Log, deps.Metrics).WithClock(now, loc)
	machine := booking.NewMachine(deps.Bookings, registry, deps.Sink, deps.Log, deps.Metrics, loc).WithClock(now)
	coordinator := approval.NewCoordinator(machine)
	aggregator := dashboard.NewAggregator(deps.Bookings, deps.Buses, deps.Users, deps.DriverScope, loc).WithClock(now)

	busHandlers := bus.Handlers{Registry: registry, Log: deps.Log}
	bookingHandlers := booking.Handlers{Machine: machine, Log: deps.Log}
	approvalHandlers := approval.Handlers{Coordinator: coordinator, Log: deps.Log}
	dashboardHandlers := dashboard.Handlers{Aggregator: aggregator, Log: deps.Log}
	sheetHandlers := tripsheet.Handlers{Builder: tripsheet.NewBuilder(machine, registry), Log: deps.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(api.RequestLogger(deps.Log))
	r.Use(api.CORSMiddleware(api.CORSOptions{
		AllowedOrigins: deps.Cfg.AllowedOrigins,
		MaxAgeSeconds:  600,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				deps.Log.Warn("health check failed", "error", err)
				api.WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "record store unreachable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	limiter := api.NewRateLimiter(deps.Cfg.RateLimitRPS, deps.Cfg.RateLimitBurst)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.SessionAuth(deps.Cfg.Session.Secret, now))
		if deps.Cfg.RateLimitRPS > 0 {
			r.Use(limiter.Middleware)
		}
		r.Use(api.StoreTimeout(deps.Cfg.StoreTimeout))

		r.Get("/dashboard", dashboardHandlers.Get)

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", bookingHandlers.List)
			r.Post("/", approvalHandlers.Create)
			r.Get("/mine", bookingHandlers.Mine)
			r.Get("/{id}", bookingHandlers.Get)
			r.Get("/{id}/actions", bookingHandlers.Actions)
			r.Get("/{id}/capacity", bookingHandlers.Capacity)
			r.Get("/{id}/trip-sheet", sheetHandlers.Get)
			r.Post("/{id}/cancel", approvalHandlers.Cancel)
		})

		r.Route("/buses", func(r chi.Router) {
			r.Get("/", busHandlers.List)
			r.Get("/available", busHandlers.Available)
			r.Post("/", busHandlers.Create)
			r.Put("/{id}", busHandlers.Update)
			r.Delete("/{id}", busHandlers.Delete)
			r.Get("/{id}/audit", busHandlers.Audit)
		})

		r.Post("/deputy/bookings/{id}/approve", approvalHandlers.DeputyApprove)
		r.Post("/deputy/bookings/{id}/reject", approvalHandlers.DeputyReject)
		r.Put("/deputy/bookings/{id}/buses", approvalHandlers.ReassignBuses)
		r.Post("/principal/bookings/{id}/approve", approvalHandlers.PrincipalApprove)
		r.Post("/principal/bookings/{id}/reject", approvalHandlers.PrincipalReject)
		r.Post("/driver/bookings/{id}/acknowledge", approvalHandlers.Acknowledge)
		r.Post("/driver/bookings/{id}/extra-buses", approvalHandlers.AddExtraBus)
	})

	return r
}
