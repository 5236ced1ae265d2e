package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/infra/config"
	"github.com/arklim/rbac-engine/internal/transport/http/handlers"
	"github.com/arklim/rbac-engine/internal/transport/http/middleware"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Access    *usecase.AccessService
	Admin     *usecase.AdminService
	Hierarchy *usecase.HierarchyService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		SkipPaths: []string{"/metrics", "/healthz", "/readyz"},
	})
	if err != nil {
		deps.Logger.Warn("init http metrics", zap.Error(err))
	} else {
		r.Use(httpMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1/contexts/:context_id")
	{
		sessionHandler := handlers.NewSessionHandler(deps.Services.Access)
		sessionHandler.RegisterRoutes(api.Group("/sessions"))

		roleHandler := handlers.NewRoleHandler(deps.Services.Admin, deps.Services.Hierarchy)
		roleHandler.RegisterRoutes(api.Group("/roles"))
		roleHandler.RegisterRelationshipRoutes(api.Group("/relationships"))
		roleHandler.RegisterAssignmentRoutes(api.Group("/assignments"))

		permissionHandler := handlers.NewPermissionHandler(deps.Services.Admin)
		permissionHandler.RegisterObjectRoutes(api.Group("/objects"))
		permissionHandler.RegisterGrantRoutes(api.Group("/grants"))

		userHandler := handlers.NewUserHandler(deps.Services.Admin)
		userHandler.RegisterRoutes(api.Group("/users"))

		sdsetHandler := handlers.NewSDSetHandler(deps.Services.Admin)
		sdsetHandler.RegisterRoutes(api.Group("/sdsets"))
	}

	return r
}
