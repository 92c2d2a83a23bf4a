package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
)

// NewRouter builds the gin engine with the dashboard API routes.
func NewRouter(h *Handler, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		api.GET("/latest", h.GetLatest)
		api.GET("/history", h.GetHistory)
		api.GET("/stats", h.GetStats)
		api.GET("/alerts", h.GetAlerts)
		api.GET("/status", h.GetStatus)
		api.POST("/notify/test", h.NotifyTest)
	}

	r.GET("/ws", h.ServeWS)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
