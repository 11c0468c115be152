package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/handler"
	"finextract/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	extractionH *handler.ExtractionHandler,
	healthH *handler.HealthHandler,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	}

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	var verifier *middleware.TokenVerifier
	if cfg.Auth.Enabled() {
		verifier = middleware.NewTokenVerifier(&cfg.Auth)
	} else {
		logger.Warn("API auth disabled, set FINEX_AUTH_SECRET to require bearer tokens")
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(verifier))

	extractions := v1.Group("/extractions")
	extractions.POST("", extractionH.Create)
	extractions.POST("/from-storage", extractionH.FromStorage)
	extractions.GET("", extractionH.List)
	extractions.GET("/:id", extractionH.Get)
	extractions.GET("/:id/export", extractionH.Export)
	extractions.GET("/:id/archive", extractionH.Archive)

	return r
}
