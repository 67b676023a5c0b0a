package api

import (
	"github.com/gin-gonic/gin"

	"webpush-service/internal/config"
	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	session := SessionAuth(cfg.Auth.JWTSecret, cfg.Auth.CookieName, h.accounts)
	sessionOnly := SessionAuth(cfg.Auth.JWTSecret, cfg.Auth.CookieName, nil)

	api := r.Group(cfg.API.BasePath)
	{
		// Sender-facing, authorized by push token or approval token
		api.POST("/push", h.Publish)
		api.POST("/approval", OptionalSession(cfg.Auth.JWTSecret, cfg.Auth.CookieName), h.ResolveApproval)

		user := api.Group("", session)

		// Credentials
		user.GET("/vapid-keys", h.GetVAPIDKeys)
		user.POST("/vapid-keys", h.RotateVAPIDKeys)
		user.GET("/push-token", h.GetPushToken)
		user.POST("/push-token", h.ResetPushToken)

		// Devices
		user.PUT("/subscription", h.SaveSubscription)
		user.DELETE("/subscription", h.DeleteSubscription)

		// Notifications
		user.GET("/notifications", h.ListNotifications)
		user.DELETE("/notifications/:id", h.DeleteNotification)

		// API tokens cannot mint or revoke other API tokens
		tokens := api.Group("/api-token", sessionOnly)
		tokens.POST("", h.CreateAPIToken)
		tokens.GET("", h.ListAPITokens)
		tokens.DELETE("", h.RevokeAPIToken)

		// Live events
		user.GET("/stream", h.Stream)
		user.GET("/ws", h.WebSocket)
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", metrics.Handler())
	return r
}
