package rest

import (
	"log/slog"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/auth"
	"github.com/frahmantamala/orgtree/internal/node"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/internal/transport/middleware"
	"github.com/frahmantamala/orgtree/internal/transport/swagger"
	"github.com/frahmantamala/orgtree/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies is everything the HTTP surface needs. Metrics is nil when
// metrics are disabled.
type Dependencies struct {
	Config        *internal.Config
	Authenticator middleware.Authenticator
	AuthHandler   *auth.Handler
	UserHandler   *user.Handler
	NodeHandler   *node.Handler
	Health        *HealthHandler
	Metrics       prometheus.Gatherer
	OpenAPI       []byte
	Logger        *slog.Logger
}

func RegisterAllRoutes(router chi.Router, deps Dependencies) {
	base := transport.NewBaseHandler(deps.Logger)
	authenticate := middleware.Authenticate(deps.Authenticator, base)
	loginLimiter := middleware.NewRateLimiter(deps.Config.RateLimit, base)

	adminOnly := middleware.RequireRoles(base, internal.RoleAdmin)
	staff := middleware.RequireRoles(base, internal.RoleAdmin, internal.RoleManager)
	anyRole := middleware.RequireRoles(base, internal.RoleAdmin, internal.RoleManager, internal.RoleEmployee)
	selfService := middleware.RequireRoles(base, internal.RoleManager, internal.RoleEmployee)

	// Apply global middleware
	router.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	if deps.Config.RateLimit.TrustProxy {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger)
	router.Use(middleware.Recovery(base))
	if deps.Metrics != nil {
		router.Use(middleware.Instrument)
		router.Handle(deps.Config.Observability.Metrics.Path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	if len(deps.OpenAPI) > 0 {
		router.Get(swagger.DocPath, swagger.DocHandler(deps.OpenAPI))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", deps.Health.healthCheckHandler)
		r.Get("/ping", deps.Health.pingHandler)

		r.Route("/admin", func(ar chi.Router) {
			ar.With(loginLimiter.Middleware).Post("/login", deps.AuthHandler.AdminLogin)

			ar.Group(func(pr chi.Router) {
				pr.Use(authenticate)
				pr.With(adminOnly).Get("/logout", deps.AuthHandler.AdminLogout)

				pr.Route("/users", func(ur chi.Router) {
					ur.With(anyRole).Get("/", deps.UserHandler.ListUsers)
					ur.With(anyRole).Get("/{userId}", deps.UserHandler.GetUser)

					ur.Group(func(mr chi.Router) {
						mr.Use(staff)
						mr.Post("/", deps.UserHandler.CreateUser)
						mr.Put("/{userId}", deps.UserHandler.UpdateUser)
						mr.Delete("/{userId}", deps.UserHandler.ArchiveUser)
						mr.Put("/{userId}/restore", deps.UserHandler.RestoreUser)
					})
				})
			})
		})

		r.Route("/users", func(ur chi.Router) {
			ur.With(loginLimiter.Middleware).Post("/login", deps.AuthHandler.UserLogin)
			// the access token may already be expired here
			ur.Put("/refresh", deps.AuthHandler.Refresh)

			ur.Group(func(pr chi.Router) {
				pr.Use(authenticate, selfService)
				pr.Get("/logout", deps.AuthHandler.UserLogout)
				pr.Get("/profile", deps.UserHandler.GetProfile)
				pr.Put("/profile", deps.UserHandler.UpdateProfile)
				pr.Put("/profile/password", deps.UserHandler.ChangePassword)
			})
		})

		r.Route("/nodes", func(nr chi.Router) {
			nr.Use(authenticate)
			nr.With(anyRole).Get("/", deps.NodeHandler.ListNodes)
			nr.With(anyRole).Get("/{nodeId}", deps.NodeHandler.GetNode)

			nr.Group(func(mr chi.Router) {
				mr.Use(staff)
				mr.Post("/", deps.NodeHandler.CreateNode)
				mr.Put("/{nodeId}", deps.NodeHandler.UpdateNode)
				mr.Delete("/{nodeId}", deps.NodeHandler.ArchiveNode)
				mr.Put("/{nodeId}/restore", deps.NodeHandler.RestoreNode)
			})
		})
	})
}
