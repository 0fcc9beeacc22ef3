package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chatstack/chatstack/internal/pkg/response"
	"github.com/chatstack/chatstack/internal/service"
)

type ConversationHandler struct {
	chat *service.ChatService
}

func NewConversationHandler(chat *service.ChatService) *ConversationHandler {
	return &ConversationHandler{chat: chat}
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	limit := uint(50)
	offset := uint(0)
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = uint(parsed)
		}
	}
	if value := c.Query("offset"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			offset = uint(parsed)
		}
	}
	msgs, err := h.chat.Messages(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, msgs)
}
