package api

import (
	"creditchat/backend/internal/conversation"
	"creditchat/backend/internal/ledger"
	"creditchat/backend/internal/registry"
	"creditchat/backend/internal/relay"
	"creditchat/backend/internal/session"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/health"
	"creditchat/backend/pkg/jwt"
	"creditchat/backend/pkg/logger"
	"creditchat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	DB         *gorm.DB
	JWTService *jwt.Service
	Ledger     *ledger.Service
	Sessions   *session.Manager
	Conv       *conversation.Store
	Bots       *registry.BotService
	Models     *registry.ModelService
	Relay      *relay.Service
	Health     *health.Checker
	Logger     *logger.Logger
	ChatLimit  *middleware.RateLimiter
}

// NewRouter assembles the HTTP surface.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(logger.Middleware(d.Logger))
	r.Use(apperrors.RecoveryWithLogger(d.Logger))
	r.Use(apperrors.ErrorHandler(d.Logger))

	if d.Health != nil {
		r.GET("/health", d.Health.Handler())
	} else {
		r.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := NewAuthHandler(d.DB, d.JWTService)
	userHandler := NewUserHandler(d.Ledger)
	botHandler := NewBotHandler(d.Bots)
	modelHandler := NewModelHandler(d.Models)
	sessionHandler := NewSessionHandler(d.Sessions, d.Conv)
	chatHandler := NewChatHandler(d.Relay, d.Logger)

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	authed := api.Group("")
	authed.Use(AuthRequired(d.JWTService, d.DB))
	{
		authed.GET("/users/me", userHandler.Me)
		authed.GET("/users/me/credits", userHandler.Balance)
		authed.POST("/users/me/credits/recharge", userHandler.Recharge)
		authed.GET("/users/me/credits/history", userHandler.CreditHistory)
		authed.GET("/users/:id/credits", userHandler.BalanceByID)

		authed.POST("/bots", botHandler.Create)
		authed.POST("/bots/official", botHandler.CreateOfficial)
		authed.GET("/bots/:id", botHandler.Get)
		authed.PUT("/bots", botHandler.Update)
		authed.DELETE("/bots/:id", botHandler.Delete)

		authed.GET("/models", modelHandler.List)
		authed.GET("/models/:id", modelHandler.Get)
		authed.POST("/models", AdminRequired(), modelHandler.Create)
		authed.PUT("/models/:id", AdminRequired(), modelHandler.Update)
		authed.DELETE("/models/:id", AdminRequired(), modelHandler.Delete)

		authed.POST("/sessions", sessionHandler.Create)
		authed.GET("/sessions", sessionHandler.List)
		authed.PUT("/sessions/:id", sessionHandler.Update)
		authed.GET("/sessions/:id/messages", sessionHandler.History)

		chat := authed.Group("")
		if d.ChatLimit != nil {
			chat.Use(d.ChatLimit.Middleware())
		}
		{
			chat.POST("/sessions/:id/chat", chatHandler.Send)
			chat.GET("/sessions/:id/stream", chatHandler.StreamSSE)
			chat.GET("/sessions/:id/ws", chatHandler.StreamWS)
		}
	}

	return r
}
