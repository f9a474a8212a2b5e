package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpapi "github.com/GoSim-25-26J-441/issue-tracker/internal/api/http"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/api/http/middleware"
	issueshttp "github.com/GoSim-25-26J-441/issue-tracker/internal/issues/http"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/service"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	Backend        string
	BasePath       string
	LegacyStatus   bool
	AllowedOrigins []string
	Limiter        *middleware.RateLimiter
	Service        *service.IssueService
	Logger         *zap.Logger
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(dep.Logger))
	r.Use(cors.New(corsConfig(dep.AllowedOrigins)))
	r.Use(middleware.Metrics())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Backend, dep.Service)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(dep.BasePath)
	if dep.Limiter != nil {
		api.Use(middleware.RateLimitByIP(dep.Limiter))
	}

	issues := issueshttp.New(dep.Service, issueshttp.Options{LegacyStatus: dep.LegacyStatus})
	issues.Register(api)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
