package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Agents        *AgentHandler
	Knowledge     *KnowledgeHandler
	Chat          *ChatHandler
	Conversations *ConversationHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/agents", deps.Agents.Create)
	api.GET("/agents", deps.Agents.List)
	api.GET("/agents/:id", deps.Agents.Get)
	api.PUT("/agents/:id", deps.Agents.Update)
	api.DELETE("/agents/:id", deps.Agents.Delete)

	api.POST("/agents/:id/triggers", deps.Agents.AddTrigger)
	api.GET("/agents/:id/triggers", deps.Agents.ListTriggers)
	api.DELETE("/agents/:id/triggers/:trigger_id", deps.Agents.RemoveTrigger)

	api.POST("/agents/:id/knowledge/url", deps.Knowledge.IngestURL)
	api.POST("/agents/:id/knowledge/files", deps.Knowledge.IngestFiles)
	api.GET("/agents/:id/knowledge", deps.Knowledge.List)
	api.DELETE("/knowledge/:id", deps.Knowledge.Delete)

	api.POST("/chat", deps.Chat.Chat)
	api.POST("/chat/stream", deps.Chat.ChatStream)
	api.GET("/conversations/:id/messages", deps.Conversations.Messages)
}
