package security

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/monitoring"
)

// UserIDKey is the gin context key holding the authenticated profile ID.
const UserIDKey = "user_id"

// DevUserHeader names the profile to act as when the dev bypass is on.
const DevUserHeader = "X-Dev-User"

// TokenValidator resolves a session token to a profile ID.
type TokenValidator interface {
	ValidateSessionToken(token string) (string, error)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireBearerSecret guards cron and admin routes with a static shared
// secret. An unset secret rejects every request.
func RequireBearerSecret(secret, realm string, logger *monitoring.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			if logger != nil {
				logger.SecurityLogger("unauthorized_"+realm, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
					"path":       c.Request.URL.Path,
					"configured": secret != "",
				})
			}
			c.Header("WWW-Authenticate", `Bearer realm="`+realm+`"`)
			errors.Respond(c, errors.NewUnauthorizedError("Unauthorized"))
			return
		}
		c.Next()
	}
}

// RequireSession authenticates the caller from a session token. With
// devBypass set, the X-Dev-User header is trusted instead when no token is sent.
func RequireSession(validator TokenValidator, devBypass bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			profileID, err := validator.ValidateSessionToken(token)
			if err != nil {
				errors.Respond(c, errors.NewUnauthorizedError("Invalid or expired session"))
				return
			}
			c.Set(UserIDKey, profileID)
			c.Next()
			return
		}

		if devBypass {
			if dev := strings.TrimSpace(c.GetHeader(DevUserHeader)); dev != "" {
				c.Set(UserIDKey, dev)
				c.Header("X-Dev-Bypass", "true")
				c.Next()
				return
			}
		}

		c.Header("WWW-Authenticate", `Bearer realm="shiploop"`)
		errors.Respond(c, errors.NewUnauthorizedError("Authentication required"))
	}
}

// UserID returns the authenticated profile ID set by RequireSession.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
