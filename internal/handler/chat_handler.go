package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/pkg/response"
	"github.com/chatstack/chatstack/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AgentID == "" || req.Message == "" {
		badRequest(c, "agent_id and message are required")
		return
	}
	reply, err := h.chat.Chat(c.Request.Context(), req.AgentID, req.ConversationID, req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, reply)
}

// ChatStream answers over SSE: "delta" events carry raw tokens as they
// arrive, one final "done" event carries the rendered reply, sources and
// triggered actions.
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AgentID == "" || req.Message == "" {
		badRequest(c, "agent_id and message are required")
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	reply, err := h.chat.ChatStream(c.Request.Context(), req.AgentID, req.ConversationID, req.Message, func(token string) error {
		c.SSEvent("delta", token)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Error("stream turn failed", zap.Error(err))
		c.SSEvent("error", "failed to generate a response, please retry")
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", reply)
	c.Writer.Flush()
}
