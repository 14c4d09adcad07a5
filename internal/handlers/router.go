package handlers

import (
	"net/http"

	"github.com/chachabrian/devforum-backend/internal/metrics"
	"github.com/chachabrian/devforum-backend/internal/middleware"
	"github.com/chachabrian/devforum-backend/internal/services"
	"github.com/chachabrian/devforum-backend/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Identity     *services.IdentityService
	Tokens       *utils.TokenManager
	Log          *zap.SugaredLogger
	AllowOrigins []string
	Login        LoginOptions
	// Limiter guards the OTP-issuing and OTP-checking routes. Nil disables it.
	Limiter *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(cfg.Log), middleware.Metrics())

	// Configure CORS
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.AllowOrigins
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		respond(c, http.StatusOK, "ok", nil)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if cfg.Limiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{cfg.Limiter.ByClientIP(), h}
	}

	api := r.Group("/api")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/signup", limited(Signup(cfg.Identity, cfg.Log))...)
			auth.POST("/verify-otp", limited(VerifyOTP(cfg.Identity, cfg.Log))...)
			auth.POST("/login", limited(Login(cfg.Identity, cfg.Log, cfg.Login))...)
			auth.POST("/forgot-password", limited(ForgotPassword(cfg.Identity, cfg.Log))...)
			auth.POST("/logout", Logout())
			auth.GET("/users", ListUsers(cfg.Identity, cfg.Log))
		}

		// Protected routes
		users := api.Group("/users")
		users.Use(middleware.AuthMiddleware(cfg.Tokens))
		{
			users.GET("/me", GetProfile(cfg.Identity, cfg.Log))
			users.PUT("/me", UpdateProfile(cfg.Identity, cfg.Log))
		}
	}

	return r
}
