package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/pkg/errcode"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
	"github.com/chatstack/chatstack/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case appErr.IsNotFound(err):
		response.Error(c, errcode.ErrNotFound, "not found")
	case err == appErr.ErrInvalid:
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case appErr.IsConflict(err):
		response.Error(c, errcode.ErrConflict, "conflict")
	case err == appErr.ErrAIUnavailable:
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	case appErr.IsFetch(err) || appErr.IsParse(err):
		response.Error(c, errcode.ErrIngestFailed, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

func badRequest(c *gin.Context, message string) {
	response.Error(c, errcode.ErrInvalid, message)
}
