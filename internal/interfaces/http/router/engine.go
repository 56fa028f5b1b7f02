package router

import (
	"github.com/gin-gonic/gin"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/telemetry"
	"github.com/promptlab/backend/internal/interfaces/http/handler"
	"github.com/promptlab/backend/internal/interfaces/http/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/promptlab/backend/docs"
)

// Handlers are the API handlers mounted by NewEngine
type Handlers struct {
	Auth        *handler.AuthHandler
	Tenant      *handler.TenantHandler
	Prompt      *handler.PromptHandler
	Run         *handler.RunHandler
	Credential  *handler.CredentialHandler
	Entitlement *handler.EntitlementHandler
	// Billing is optional
	Billing *handler.BillingHandler
	System  *handler.SystemHandler
}

// EngineConfig wires the engine's middleware
type EngineConfig struct {
	ServiceName string
	HTTP        config.HTTPConfig
	Auth        middleware.AuthConfig
	Logger      *zap.Logger
	// Metrics is optional; without it /metrics is not mounted
	Metrics *telemetry.Metrics
}

// NewEngine builds the gin engine serving the v1 API
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}

	engine := gin.New()
	_ = engine.SetTrustedProxies(cfg.HTTP.TrustedProxies)
	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(cfg.ServiceName),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		cfg.Metrics.GinMiddleware(),
	)
	middleware.SetupValidator()

	engine.GET("/health", h.System.Health)
	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.HTTP.Swagger {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	session := []gin.HandlerFunc{middleware.Auth(cfg.Auth)}
	if cfg.HTTP.RateLimitEnabled {
		session = append(session, middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst).Middleware())
	}

	r := NewRouter(engine)
	r.Register(NewDomainGroup("auth", "/auth").
		POST("/signup", h.Auth.Signup).
		POST("/login", h.Auth.Login))
	r.Register(NewDomainGroup("session", "/auth").Use(session...).
		POST("/logout", h.Auth.Logout))

	r.Register(NewDomainGroup("tenant", "/tenant").Use(session...).
		GET("", h.Tenant.Get).
		PUT("/plan", middleware.RequireManager(), h.Tenant.ChangePlan))

	r.Register(NewDomainGroup("projects", "/projects").Use(session...).
		GET("", h.Prompt.ListProjects).
		POST("", h.Prompt.CreateProject))

	r.Register(NewDomainGroup("prompts", "/prompts").Use(session...).
		GET("", h.Prompt.ListPrompts).
		POST("", h.Prompt.CreatePrompt).
		GET("/:id", h.Prompt.GetPrompt).
		PUT("/:id", h.Prompt.UpdatePrompt).
		DELETE("/:id", h.Prompt.DeletePrompt).
		GET("/:id/versions", h.Prompt.ListVersions).
		POST("/:id/versions", h.Prompt.CreateVersion).
		GET("/:id/versions/:number", h.Prompt.GetVersion).
		GET("/:id/test-cases", h.Prompt.ListTestCases).
		POST("/:id/test-cases", h.Prompt.CreateTestCase))

	r.Register(NewDomainGroup("runs", "/runs").Use(session...).
		POST("", h.Run.CreateRun).
		GET("", h.Run.ListRuns).
		GET("/:id", h.Run.GetRun).
		GET("/:id/feedback", h.Run.ListFeedback).
		POST("/:id/feedback", h.Run.AddFeedback))

	r.Register(NewDomainGroup("credentials", "/credentials").Use(session...).
		GET("", h.Credential.List).
		POST("", middleware.RequireManager(), h.Credential.Save))

	r.Register(NewDomainGroup("entitlements", "/entitlements").Use(session...).
		GET("/quotas/:name", h.Entitlement.CheckQuota).
		GET("/features/:name", h.Entitlement.CheckFeature))
	r.Register(NewDomainGroup("usage", "/usage").Use(session...).
		GET("", h.Entitlement.Usage))

	if h.Billing != nil {
		r.Register(NewDomainGroup("billing", "/billing").Use(session...).
			GET("/meters", h.Billing.ListMeters).
			PUT("/meters/:meter", middleware.RequireManager(), h.Billing.LinkMeter))
	}

	r.Setup()
	return engine
}
