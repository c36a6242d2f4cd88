package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const healthCheckTimeout = 2 * time.Second

// Services bundles the application services the routes call into.
type Services struct {
	Cards *service.CardService
	Users *service.UserService
	Auth  *service.AuthService
}

// HealthCheck is a named dependency probed by /healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Options carries the HTTP-edge settings.
type Options struct {
	CORSAllowedOrigins []string
	HealthChecks       []HealthCheck

	// AuthRateLimiter throttles /auth per client IP when set. The caller owns it and closes it.
	AuthRateLimiter *RateLimiter

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, opts Options, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.HealthChecks))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// =============================================
	// Auth (public, rate limited per IP)
	// =============================================
	r.Route("/auth", func(r chi.Router) {
		if opts.AuthRateLimiter != nil {
			r.Use(RateLimitMiddleware(opts.AuthRateLimiter, logger))
		}
		r.Post("/sign-up", signUpHandler(svc.Auth, logger))
		r.Post("/sign-in", signInHandler(svc.Auth, logger))
	})

	// =============================================
	// Authenticated API
	// =============================================
	r.Route("/api", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(svc.Auth, logger))

		r.Route("/cards", func(r chi.Router) {
			r.Use(RequireCapability(domain.CapOwnCards, logger))
			r.Get("/", listOwnCardsHandler(svc.Cards, logger))
			r.Post("/", transferHandler(svc.Cards, logger))
			r.Get("/transfers", listOwnTransfersHandler(svc.Cards, logger))
			r.Post("/filter", filterOwnCardsHandler(svc.Cards, logger))
			r.Get("/{id}/balance", getBalanceHandler(svc.Cards, logger))
			r.Post("/{id}/block-request", requestBlockHandler(svc.Cards, logger))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(domain.CapManageCards, logger))
				r.Get("/cards", listCardsHandler(svc.Cards, logger))
				r.Post("/cards/{userId}", createCardHandler(svc.Cards, logger))
				r.Patch("/cards/{id}/active", activateCardHandler(svc.Cards, logger))
				r.Patch("/cards/{id}/block", blockCardHandler(svc.Cards, logger))
				r.Delete("/cards/{id}", deleteCardHandler(svc.Cards, logger))
				r.Get("/block-requests", listBlockRequestsHandler(svc.Cards, logger))
				r.Get("/stats", statsHandler(metrics))
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(domain.CapManageUsers, logger))
				r.Get("/users", listUsersHandler(svc.Users, logger))
				r.Post("/users", createUserHandler(svc.Users, logger))
				r.Get("/users/{id}", getUserHandler(svc.Users, logger))
				r.Patch("/users/{id}", updateUserHandler(svc.Users, logger))
				r.Delete("/users/{id}", deleteUserHandler(svc.Users, logger))
			})
		})
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "bankcards-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			start := time.Now()
			err := c.Ping(ctx)
			cancel()

			status := "healthy"
			if err != nil {
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name:        c.Name,
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overall = "degraded"
				break
			}
		}

		code := http.StatusOK
		if overall != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
