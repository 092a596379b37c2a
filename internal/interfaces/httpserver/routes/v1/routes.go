package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/support-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under the /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")

	group.POST("/webhook/telegram", r.handlers.Webhook.HandleTelegram)

	group.GET("/conversations", r.handlers.Conversation.List)
	group.POST("/conversations", r.handlers.Conversation.Create)
	group.GET("/conversations/:id", r.handlers.Conversation.Get)
	group.PATCH("/conversations/:id", r.handlers.Conversation.Update)
	group.GET("/conversations/:id/messages", r.handlers.Conversation.ListMessages)
	group.POST("/conversations/:id/messages", r.handlers.Conversation.SendMessage)
	group.POST("/conversations/:id/read", r.handlers.Conversation.MarkRead)
	group.GET("/conversations/:id/events", r.handlers.Events.Stream)

	group.POST("/uploads", r.handlers.Upload.Upload)
	group.GET("/files/*filepath", r.handlers.Upload.ServeFile)
}
