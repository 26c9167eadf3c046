package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rc4-stream-go/internal/errors"
	"github.com/rc4-stream-go/internal/trace"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// RespondError writes a JSON error response with logging
func RespondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.NewInternalWithCause("Internal server error", err)
	}

	status := errors.ToHTTPStatus(appErr)
	logger := trace.Logger(c.Request.Context())
	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	if appErr.Cause != nil {
		ev = ev.Err(appErr.Cause)
	}
	ev.Int("code", int(appErr.Code)).Msg(appErr.Message)

	c.AbortWithStatusJSON(status, APIResponse{
		Code: int(appErr.Code),
		Msg:  appErr.Message,
	})
}

// RespondSuccess writes a JSON success response
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code: 0,
		Data: data,
	})
}

// RespondSuccessMsg writes a JSON success response with a message
func RespondSuccessMsg(c *gin.Context, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Code: 0,
		Msg:  message,
	})
}
