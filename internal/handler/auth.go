package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rc4-stream-go/internal/auth"
	"github.com/rc4-stream-go/internal/cache"
	"github.com/rc4-stream-go/internal/dao"
	"github.com/rc4-stream-go/internal/errors"
)

// MaxLoginFailures is how many bad passwords a user gets per window
const MaxLoginFailures = 5

// AuthHandler serves /api/login
type AuthHandler struct {
	jwtAuth  *auth.JWTAuth
	userDAO  *dao.UserDAO
	attempts *cache.Attempts
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtAuth *auth.JWTAuth, userDAO *dao.UserDAO, attempts *cache.Attempts) *AuthHandler {
	return &AuthHandler{jwtAuth: jwtAuth, userDAO: userDAO, attempts: attempts}
}

// Login validates credentials and returns a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.NewBadRequestWithCause("invalid request body", err))
		return
	}

	if h.attempts.Blocked(req.Username) {
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, APIResponse{
			Code: http.StatusTooManyRequests,
			Msg:  "too many failed logins",
		})
		return
	}

	if err := h.userDAO.Validate(req.Username, req.Password); err != nil {
		h.attempts.Fail(req.Username)
		RespondError(c, errors.NewUnauthorized("invalid username or password"))
		return
	}
	h.attempts.Reset(req.Username)

	token, err := h.jwtAuth.GenerateToken(req.Username)
	if err != nil {
		RespondError(c, errors.NewInternalWithCause("failed to issue token", err))
		return
	}
	RespondSuccess(c, gin.H{
		"token":    token,
		"username": req.Username,
		"issued":   time.Now().Unix(),
	})
}

// ChangePassword replaces the caller's password: POST /api/password.
// Must run behind RequireToken.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.NewBadRequestWithCause("invalid request body", err))
		return
	}
	if req.NewPassword == "" {
		RespondError(c, errors.NewBadRequest("new password must not be empty"))
		return
	}

	username := c.GetString("username")
	if h.attempts.Blocked(username) {
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, APIResponse{
			Code: http.StatusTooManyRequests,
			Msg:  "too many failed logins",
		})
		return
	}
	if err := h.userDAO.Validate(username, req.OldPassword); err != nil {
		h.attempts.Fail(username)
		RespondError(c, errors.NewUnauthorized("invalid username or password"))
		return
	}
	if err := h.userDAO.UpdatePassword(username, req.NewPassword); err != nil {
		RespondError(c, errors.NewInternalWithCause("failed to update password", err))
		return
	}
	RespondSuccessMsg(c, "password updated")
}

// RequireToken rejects requests without a valid bearer token
func RequireToken(jwtAuth *auth.JWTAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}

		claims, err := jwtAuth.ValidateToken(token)
		if err != nil {
			RespondError(c, errors.NewUnauthorized(err.Error()))
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}
