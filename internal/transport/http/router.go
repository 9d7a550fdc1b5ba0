package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/go-todo-api/internal/config"
	"github.com/go-todo-api/internal/transport/http/handler"
	appmiddleware "github.com/go-todo-api/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		limit = deps.Limiter.Limit
	}
	authMw := appmiddleware.Auth(deps.Tokens)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(deps.Auth)
	pwH := handler.NewPasswordRecoveryHandler(deps.Auth)
	otpH := handler.NewOTPHandler(deps.Auth)
	todoH := handler.NewTodoHandler(deps.Todos)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/auth/refresh", authH.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(limit)

			r.Post("/auth/register", authH.Register)
			r.Post("/auth/verify-email", authH.VerifyEmail)
			r.Post("/auth/resend-verification", authH.ResendVerification)
			r.Post("/auth/login", authH.Login)
			r.Post("/password-recovery/{action}", pwH.Action)
			r.Post("/otp/send", otpH.Send)
			r.Post("/otp/verify", otpH.Verify)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Post("/auth/logout", authH.Logout)
			r.Get("/protected", authH.Protected)

			r.Get("/todos", todoH.List)
			r.Post("/todos", todoH.Create)
			r.Get("/todos/{id}", todoH.Get)
			r.Put("/todos/{id}", todoH.Update)
			r.Patch("/todos/{id}", todoH.Update)
			r.Delete("/todos/{id}", todoH.Delete)
		})
	})

	return r
}
