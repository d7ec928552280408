package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"prepkitty/internal/api/middleware"
	"prepkitty/internal/auth"
	"prepkitty/internal/practice"
)

// Deps 汇总路由注册所需的依赖。
type Deps struct {
	DB             *gorm.DB
	Redis          redis.UniversalClient
	Queue          TaskEnqueuer
	AuthService    *auth.AuthService
	Storage        CVStore
	Scanner        VirusScanner
	Generator      practice.Generator
	Sessions       SessionStore
	Logger         *slog.Logger
	AuthOptions    AuthOptions
	AllowedOrigins []string
	MaxUploadBytes int64
	TotalQuestions int
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewRedisSessionStore(deps.Redis, DefaultSessionTTL)
	}

	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Redis, deps.Queue, deps.Logger, deps.AuthOptions)
	userHandler := NewUserHandler(deps.DB, deps.Logger)
	cvHandler := NewCVHandler(deps.DB, deps.Storage, deps.Queue, deps.Scanner, deps.Logger, deps.MaxUploadBytes)
	practiceHandler := NewPracticeHandler(deps.DB, deps.Generator, sessions, deps.Logger, deps.TotalQuestions)
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, deps.Logger, deps.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.Signup)
			authGroup.GET("/verify-email", authHandler.VerifyEmail)
			authGroup.POST("/resend-verification", authHandler.ResendVerification)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		protected := v1.Group("")
		protected.Use(authMiddleware, passwordGate)
		{
			protected.GET("/user", userHandler.GetUser)
			protected.GET("/user-scores", userHandler.GetUserScores)
			protected.POST("/onboarding", userHandler.Onboarding)

			protected.POST("/cv", cvHandler.EnsureProfile)
			protected.PUT("/cv/:id", cvHandler.UpdateCV)
			protected.POST("/cv-upload", cvHandler.UploadCV)
			protected.POST("/cv/generate", cvHandler.GenerateCV)
			protected.GET("/cv/download-link", cvHandler.DownloadLink)

			protected.POST("/save-practice-result", practiceHandler.SaveResult)
			protected.POST("/gemini", practiceHandler.Generate)
			protected.POST("/practice/sessions", practiceHandler.StartSession)
			protected.GET("/practice/sessions/:id", practiceHandler.GetSession)
			protected.POST("/practice/sessions/:id/answer", practiceHandler.AnswerSession)
		}
	}
}
