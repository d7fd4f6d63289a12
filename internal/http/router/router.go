package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slidesmith/slidesmith/internal/http/handler"
	"github.com/slidesmith/slidesmith/internal/http/middleware"
	"github.com/slidesmith/slidesmith/internal/http/response"
	"github.com/slidesmith/slidesmith/internal/service"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	AdminHandler     *handler.AdminHandler
	AuthService      *service.AuthService
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	// GlobalRateLimiter and AuthRateLimiter override the local
	// fixed-window defaults, typically with the Redis backend.
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	ReadyCheck        ReadyCheckFunc
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler
type ReadyCheckFunc func(r *http.Request) error

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}
	r.Use(middleware.SessionAuth(dep.AuthService))

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.ReadyCheck != nil {
			if err := dep.ReadyCheck(r); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready")
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
		r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
		r.Post("/logout", dep.AuthHandler.Logout)
		r.Get("/check", dep.AuthHandler.Check)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Get("/me", dep.AuthHandler.Me)
			r.With(authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Get("/users", dep.AdminHandler.ListUsers)
		r.Post("/users/{user_id}/deactivate", dep.AdminHandler.DeactivateUser)
		r.Get("/users/{user_id}/sessions", dep.AdminHandler.ListUserSessions)
		r.Post("/sessions/cleanup", dep.AdminHandler.CleanupSessions)
	})

	if dep.EnableOTelHTTP {
		return otelhttp.NewHandler(r, "http.server")
	}
	return r
}
