package router

import (
	"time"

	"kasabot/internal/config"
	"kasabot/internal/handler"
	"kasabot/internal/middleware"
	"kasabot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Deps are the long-lived components the admin API reads from. DB and Redis
// are nil when the file store and direct delivery are used.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Registry *service.Registry
	Poller   *service.Poller
	Fiscal   service.FiscalClient
	Breakers map[string]handler.BreakerReporter
}

// New wires the admin services and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Registry/Poller ← Store
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(300, time.Minute))

	// ── Services ─────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(cfg)
	kasaSvc := service.NewKasaService(deps.Registry, deps.Fiscal, deps.Poller)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	kasasH := handler.NewKasasHandler(kasaSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(deps.DB, deps.Redis, deps.Breakers))

	if !cfg.AdminEnabled() {
		log.Warn().Msg("ADMIN_PASSWORD_HASH not set, admin API disabled")
		return r
	}

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
	}

	// Protected routes
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), middleware.RequireRole("admin"))
	{
		users := v1.Group("/users/:user_id")
		{
			users.GET("/kasas", kasasH.List)
			users.POST("/kasas", kasasH.Register)
			users.GET("/kasas/:kasa_id/status", kasasH.Status)
			users.DELETE("/kasas/:kasa_id", kasasH.Remove)
			users.POST("/polling/start", kasasH.StartPolling)
		}
	}

	// Swagger UI, only outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
