package handlers

import (
	"io"
	"net/http"

	"github.com/chachabrian/devforum-backend/internal/middleware"
	"github.com/chachabrian/devforum-backend/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Signup registers an unverified account and emails it a passcode.
func Signup(svc *services.IdentityService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.RegisterInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, log, invalidBody())
			return
		}

		key, err := svc.RegisterAccount(c.Request.Context(), input)
		if err != nil {
			respondError(c, log, err)
			return
		}

		respond(c, http.StatusCreated, "User created successfully. Please check your email for verification code.", gin.H{
			"otp_key": key,
		})
	}
}

// VerifyOTP activates an account with its signup passcode.
func VerifyOTP(svc *services.IdentityService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.ActivateInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, log, invalidBody())
			return
		}

		if err := svc.ActivateAccount(c.Request.Context(), input); err != nil {
			respondError(c, log, err)
			return
		}

		respond(c, http.StatusOK, "Email verified successfully", nil)
	}
}

// LoginOptions control the session cookie set on successful login.
type LoginOptions struct {
	CookieMaxAge int
	SecureCookie bool
}

func Login(svc *services.IdentityService, log *zap.SugaredLogger, opts LoginOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, log, invalidBody())
			return
		}

		res, err := svc.Authenticate(c.Request.Context(), input)
		if err != nil {
			respondError(c, log, err)
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.TokenCookie, res.Token, opts.CookieMaxAge, "/", "", opts.SecureCookie, true)
		respond(c, http.StatusOK, "Login successful", res)
	}
}

// ForgotPassword serves all three reset steps, selected by the "action"
// field of the body.
func ForgotPassword(svc *services.IdentityService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondError(c, log, invalidBody())
			return
		}

		cmd, err := services.DecodeResetCommand(body)
		if err != nil {
			respondError(c, log, err)
			return
		}

		out, err := svc.ForgotPassword(c.Request.Context(), cmd)
		if err != nil {
			respondError(c, log, err)
			return
		}

		switch out.Action {
		case services.ActionRequestOTP:
			respond(c, http.StatusOK, "OTP sent to your email", gin.H{"otp_key": out.OTPKey})
		case services.ActionVerifyOTP:
			respond(c, http.StatusOK, "OTP verified", gin.H{"verified": out.Verified})
		default:
			respond(c, http.StatusOK, "Password reset successfully", nil)
		}
	}
}

func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.TokenCookie, "", -1, "/", "", false, true)
		respond(c, http.StatusOK, "Logged out", nil)
	}
}
