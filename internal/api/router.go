package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const corsMaxAge = 12 * time.Hour

// NewRouter builds the gin engine with CORS and the service routes.
func NewRouter(handler *Handler, corsAllowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/generate", handler.Generate)
		apiGroup.GET("/health", handler.Health)
	}

	return router
}
