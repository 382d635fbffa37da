package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults for a dashboard served from siteURL
func DefaultSecurityConfig(siteURL string) SecurityConfig {
	origins := []string{"http://localhost:3000"}
	if siteURL = strings.TrimRight(siteURL, "/"); siteURL != "" && siteURL != origins[0] {
		origins = append(origins, siteURL)
	}
	return SecurityConfig{
		AllowedOrigins: origins,
		RequestTimeout: 30 * time.Second,
		EnableHSTS:     strings.HasPrefix(siteURL, "https://"),
	}
}

// SecurityMiddleware groups the request hardening middleware
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

var githubNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateGitHubName checks an owner or repository path segment before it
// is interpolated into a GitHub API URL.
func ValidateGitHubName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(name) > 100 {
		return fmt.Errorf("%s is too long", field)
	}
	if strings.Contains(name, "..") || !githubNamePattern.MatchString(name) {
		return fmt.Errorf("invalid GitHub %s", field)
	}
	return nil
}

// ValidateContentType rejects bodies that are not JSON on mutating requests
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported content type",
		})
		return
	}

	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORS allows the dashboard origins, including the custom GitHub token header
func (sm *SecurityMiddleware) CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-GitHub-Token", "X-Dev-User"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// Headers returns the response header middleware for this configuration
func (sm *SecurityMiddleware) Headers() gin.HandlerFunc {
	return SecurityHeadersMiddleware(sm.config.EnableHSTS)
}
