package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Quiz    *handler.QuizHandler
	Session *handler.SessionHandler
	Attempt *handler.AttemptHandler
	Import  *handler.ImportHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	sessionLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log and every envelope share it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Respondent Group (Optional JWT) ────────────────────────────
	// Requests without a token run as guests.
	respondentAPI := router.Group("/api/v1")
	respondentAPI.Use(middleware.OptionalJWT(authService))
	{
		respondentAPI.GET("/quizzes/:quiz_id",
			middleware.CacheControl(30),
			handlers.Quiz.Intro,
		)
		respondentAPI.POST("/quizzes/:quiz_id/sessions",
			sessionLimiter.Middleware(),
			handlers.Session.CreateSession,
		)

		sessions := respondentAPI.Group("/sessions/:session_id")
		sessions.Use(middleware.NoStore())
		{
			sessions.GET("", handlers.Session.GetState)
			sessions.DELETE("", handlers.Session.CloseSession)
			sessions.GET("/questions", handlers.Session.GetQuestions)
			sessions.POST("/start", handlers.Session.Start)
			sessions.POST("/submit", handlers.Session.Submit)
			sessions.POST("/retake", handlers.Session.Retake)
			sessions.PUT("/answers", handlers.Session.Answer)
			sessions.POST("/flags/:question_id", handlers.Session.ToggleFlag)
			sessions.PUT("/position", handlers.Session.GoTo)
			sessions.GET("/result", handlers.Session.GetResult)
		}
	}

	// ─── 2. Me Group (JWT) ─────────────────────────────────────────────
	meAPI := router.Group("/api/v1/me")
	meAPI.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		meAPI.GET("/attempts", handlers.Attempt.MyAttempts)
	}

	// ─── 3. WebSocket Group (Optional JWT via ?token=) ─────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.OptionalJWT(authService))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		adminAPI.POST("/quizzes",
			middleware.RequirePermission(model.PermissionQuizzesWrite),
			handlers.Quiz.CreateQuiz,
		)
		adminAPI.POST("/quizzes/:quiz_id/publish",
			middleware.RequirePermission(model.PermissionQuizzesPublish),
			handlers.Quiz.PublishQuiz,
		)
		adminAPI.GET("/quizzes/:quiz_id/attempts",
			middleware.RequirePermission(model.PermissionAttemptsRead),
			handlers.Attempt.QuizAttempts,
		)

		// Question import
		adminAPI.POST("/quizzes/:quiz_id/questions/preview",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Import.PreviewQuestions,
		)
		adminAPI.PUT("/quizzes/:quiz_id/questions/import",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Import.ImportQuestions,
		)

		// System metrics (SSE)
		adminAPI.GET("/system/metrics",
			middleware.RequireAnyPermission(model.AllPermissions...),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
