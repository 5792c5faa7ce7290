package handler

import (
	"net/http"
	"time"

	"crimestats-chat/internal/config"
	"crimestats-chat/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(cfg *config.Config, chatHandler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	router.POST("/stream", chatHandler.StreamChat)

	api := router.Group("/api")
	{
		chat := api.Group("/chat")
		{
			chat.POST("/stream", chatHandler.StreamChat)
			chat.POST("/session", chatHandler.CreateSession)
			chat.GET("/sessions", chatHandler.GetSessionList)
			chat.GET("/session/:session_id", chatHandler.GetSession)
			chat.PUT("/session/:session_id", chatHandler.UpdateSessionTitle)
			chat.DELETE("/session/:session_id", chatHandler.DeleteSession)
			chat.DELETE("/sessions", chatHandler.ClearAllSessions)
			chat.GET("/messages/:session_id", chatHandler.GetMessages)
		}
	}

	return router
}

// requestLogger 用 logrus 记录访问日志
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logger.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}
