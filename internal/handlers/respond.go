package handlers

import (
	"errors"
	"net/http"

	"github.com/chachabrian/devforum-backend/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"status": status}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrInvalidOTPKey):
		return http.StatusNotFound
	case errors.Is(err, services.ErrOTPMismatch):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrOTPExpired), errors.Is(err, services.ErrOTPUsed):
		return http.StatusGone
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrUnverified):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *zap.SugaredLogger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		respond(c, status, services.ErrServer.Error(), nil)
		return
	}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		c.JSON(status, gin.H{
			"status":  status,
			"message": verr.Error(),
			"errors":  verr.Fields,
		})
		return
	}
	respond(c, status, err.Error(), nil)
}

func invalidBody() error {
	return &services.ValidationError{Fields: map[string]string{"body": "must be a valid JSON object"}}
}
