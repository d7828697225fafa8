package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/handler"
	"github.com/mishalinitiative/quizbot/internal/middleware"
	"github.com/mishalinitiative/quizbot/internal/response"
	"github.com/mishalinitiative/quizbot/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Dashboard *handler.DashboardHandler
	ExamAdmin *handler.ExamAdminHandler
	System    *handler.SystemHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	loginLimiter *middleware.LoginRateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// Restrict CORS to the configured origin list; an empty list allows all
	// so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Status surface for uptime monitors.
	router.GET("/", handlers.System.StatusPage)
	router.GET("/api/v1/health", handlers.System.Health)

	// Auth (public, rate limited).
	auth := router.Group("/api/v1/auth")
	auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
	auth.GET("/me", middleware.RequireAdminJWT(authService), handlers.Auth.Me)

	// Dashboard (admin JWT).
	dashboard := router.Group("/api/v1/dashboard")
	dashboard.Use(middleware.RequireAdminJWT(authService))
	{
		dashboard.GET("/summary", handlers.Dashboard.GetSummary)
		dashboard.GET("/exams/:exam_key/stats", handlers.Dashboard.GetExamStats)
	}

	// Exam administration (admin JWT).
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdminJWT(authService))
	{
		admin.GET("/exams", handlers.ExamAdmin.List)
		admin.PATCH("/exams/:exam_id/visibility", handlers.ExamAdmin.SetVisibility)
		admin.POST("/content/reload", handlers.ExamAdmin.ReloadContent)
	}

	// Live completion feed (admin JWT via query token).
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAdminJWT(authService))
	{
		ws.GET("/completions", handlers.WS.CompletionsStream)
	}

	return router
}
