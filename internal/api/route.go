package api

import (
	"Crosspost/internal/api/middleware"
	"Crosspost/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		postGroup := apiGroup.Group("/posts")
		{
			postGroup.POST("", group.PostHandler.CreatePost)
			postGroup.GET("", group.PostHandler.ListPosts)
			postGroup.GET("/:post_id", group.PostHandler.GetPost)
			postGroup.PUT("/:post_id", group.PostHandler.UpdatePost)
			postGroup.DELETE("/:post_id", group.PostHandler.DeletePost)
			postGroup.POST("/:post_id/restore", group.PostHandler.RestorePost)
			postGroup.POST("/:post_id/publish", group.PostHandler.PublishNow)
			postGroup.POST("/:post_id/retract", group.PostHandler.RetractPost)
			postGroup.GET("/:post_id/history", group.PostHandler.GetSendHistory)
		}

		pendingGroup := apiGroup.Group("/pending")
		{
			pendingGroup.GET("", group.PendingHandler.ListPending)
			pendingGroup.POST("/:post_id/publish", group.PendingHandler.PublishPending)
			pendingGroup.POST("/:post_id/discard", group.PendingHandler.DiscardPending)
		}
	}

	return r
}
