package handlers

import (
	"net/http"

	"github.com/chachabrian/devforum-backend/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListUsers returns every member's public profile.
func ListUsers(svc *services.IdentityService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}
		respond(c, http.StatusOK, "", users)
	}
}

// GetProfile retrieves the caller's profile
func GetProfile(svc *services.IdentityService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := svc.GetProfile(c.Request.Context(), c.GetString("userId"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		respond(c, http.StatusOK, "", profile)
	}
}

// UpdateProfile updates the caller's name, phone, about and tags.
func UpdateProfile(svc *services.IdentityService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.ProfileUpdate
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, log, invalidBody())
			return
		}

		profile, err := svc.UpdateProfile(c.Request.Context(), c.GetString("userId"), input)
		if err != nil {
			respondError(c, log, err)
			return
		}
		respond(c, http.StatusOK, "Profile updated successfully", profile)
	}
}
