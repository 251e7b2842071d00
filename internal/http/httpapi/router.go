package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/middleware"
	"server/internal/infra/geoip"
)

// NewRouter assembles the full route tree. The public surface carries cache
// headers, the auth surface is rate limited, and the admin surface sits
// behind JWT auth with role guards.
func NewRouter(app *handlers.App, geo *geoip.Resolver) stdhttp.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestLogger(app.Logger, app.Monitor, geo, app.Cfg.SlowRequestThreshold),
		middleware.CORS(app.Cfg.AllowedOrigins),
	)

	authLimiter := middleware.NewRateLimiter(app.Cfg.RateLimitPerMin, time.Minute)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Handler)
			r.Post("/register", app.Register)
			r.Post("/login", app.Login)
			r.Post("/admin/login", app.AdminLogin)
		})
		r.Post("/logout", app.Logout)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(app.Cfg.JWTSecret))
			r.Get("/me", app.Me)
		})
	})

	r.Route("/api/public/videos", func(r chi.Router) {
		r.With(middleware.CacheHeaders(app.Cfg.PublicFeedCacheSeconds, app.Cfg.StaleWhileRevalidate)).
			Get("/", app.PublicFeed)
		r.With(middleware.CacheHeaders(app.Cfg.PublicSearchCacheSeconds, app.Cfg.StaleWhileRevalidate)).
			Get("/search", app.SearchVideos)
		r.With(middleware.CacheHeaders(app.Cfg.PublicDetailCacheSeconds, app.Cfg.StaleWhileRevalidate)).
			Get("/{id}", app.PublicVideoDetail)
		r.With(middleware.CacheHeaders(app.Cfg.PublicDetailCacheSeconds, app.Cfg.StaleWhileRevalidate)).
			Get("/{id}/up-next", app.UpNext)
		r.Post("/{id}/view", app.RecordView)
	})

	r.Route("/api/admin", func(r chi.Router) {
		// Bootstrap authenticates via the setup key, not a JWT, because it
		// runs before any account exists.
		r.Post("/users/setup", app.BootstrapSuperAdmin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(app.Cfg.JWTSecret))

			r.Route("/videos", func(r chi.Router) {
				r.Use(middleware.RequireRoles(domain.RoleSuperAdmin, domain.RoleMiniAdmin))
				r.Post("/", app.UploadVideo)
				r.Get("/status/{uploadId}", app.UploadStatus)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireRoles(domain.RoleSuperAdmin))
				r.Post("/", app.CreateMiniAdmin)
				r.Get("/", app.ListUsers)
				r.Patch("/{id}/active", app.SetUserActive)
			})
		})
	})

	r.Get("/api/monitoring/health", app.Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(app.Cfg.JWTSecret))
		r.Use(middleware.RequireRoles(domain.RoleSuperAdmin))
		r.Get("/api/monitoring/metrics", app.Metrics)
	})

	return r
}
