package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/security"
)

const (
	githubTokenHeader   = "X-GitHub-Token"
	recentCommitsWindow = 7 * 24 * time.Hour
	recentCommitsRepos  = 10
	stripeRedirectPath  = "/settings/integrations/stripe"
)

type connectRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

// handleStripeConnectStart godoc
// @Summary Begin Stripe Connect
// @Description Redirects to the Stripe Connect OAuth page with a signed state for the caller.
// @Tags stripe
// @Security BearerAuth
// @Success 302
// @Failure 500 {object} errors.Body
// @Router /api/stripe/connect [get]
func (s *Server) handleStripeConnectStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := s.state.Sign(security.UserID(c), stripeStatePurpose)
		if err != nil {
			errors.Respond(c, errors.NewInternalError("failed to sign state", err))
			return
		}

		redirect := strings.TrimRight(s.Config.Server.SiteURL, "/") + stripeRedirectPath
		target, err := s.Stripe.AuthorizeURL(state, redirect)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.Redirect(http.StatusFound, target)
	}
}

// handleStripeConnectFinish godoc
// @Summary Complete Stripe Connect
// @Description Exchanges the OAuth code and stores the connected account on the caller's profile.
// @Tags stripe
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.Body
// @Failure 502 {object} errors.Body
// @Router /api/stripe/connect [post]
func (s *Server) handleStripeConnectFinish() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req connectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("code and state are required"))
			return
		}

		profileID := security.UserID(c)
		owner, err := s.state.Verify(req.State, stripeStatePurpose)
		if err != nil || owner != profileID {
			s.Logger.SecurityLogger("stripe_state_mismatch", c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
				"profile_id": profileID,
			})
			errors.Respond(c, errors.NewValidationError("Invalid or expired state"))
			return
		}

		accountID, err := s.Stripe.ExchangeCode(c.Request.Context(), req.Code)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		if err := s.Profiles.ConnectStripe(c.Request.Context(), profileID, accountID); err != nil {
			respondProfileError(c, err)
			return
		}

		s.Logger.Info("Stripe account connected", "profile_id", profileID, "account_id", accountID)
		c.JSON(http.StatusOK, gin.H{"connected": true, "accountId": accountID})
	}
}

// handleStripeRevenue godoc
// @Summary Connected account revenue
// @Description Sums the last 30 days of balance transactions and the 30 days before them.
// @Tags stripe
// @Produce json
// @Security BearerAuth
// @Success 200 {object} adapters.RevenueSummary
// @Failure 404 {object} errors.Body
// @Router /api/stripe/revenue [get]
func (s *Server) handleStripeRevenue() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := s.Profiles.GetProfile(c.Request.Context(), security.UserID(c))
		if err != nil {
			respondProfileError(c, err)
			return
		}
		if profile.StripeAccountID == "" {
			errors.Respond(c, errors.NewNotFoundError("Connected Stripe account"))
			return
		}

		summary, err := s.Stripe.Revenue(c.Request.Context(), profile.StripeAccountID)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func githubToken(c *gin.Context) (string, bool) {
	token := strings.TrimSpace(c.GetHeader(githubTokenHeader))
	if token == "" {
		errors.Respond(c, errors.NewUnauthorizedError("GitHub token required"))
		return "", false
	}
	return token, true
}

// handleGitHubRepos godoc
// @Summary List GitHub repositories
// @Tags github
// @Produce json
// @Param X-GitHub-Token header string true "GitHub access token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} errors.Body
// @Router /api/github/repos [get]
func (s *Server) handleGitHubRepos() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := githubToken(c)
		if !ok {
			return
		}

		repos, err := s.GitHub.ListRepos(c.Request.Context(), token)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"repos": repos, "count": len(repos)})
	}
}

// handleGitHubCommits godoc
// @Summary List GitHub commits
// @Description Without owner and repo, merges commits from the caller's most recently pushed repositories.
// @Tags github
// @Produce json
// @Param X-GitHub-Token header string true "GitHub access token"
// @Param owner query string false "Repository owner"
// @Param repo query string false "Repository name"
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.Body
// @Failure 401 {object} errors.Body
// @Router /api/github/commits [get]
func (s *Server) handleGitHubCommits() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := githubToken(c)
		if !ok {
			return
		}

		since := time.Now().UTC().Add(-recentCommitsWindow)
		if raw := c.Query("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				errors.Respond(c, errors.NewValidationError("since must be an RFC3339 timestamp"))
				return
			}
			since = parsed
		}

		owner, repo := c.Query("owner"), c.Query("repo")
		if owner == "" && repo == "" {
			commits, err := s.GitHub.RecentCommits(c.Request.Context(), token, since, recentCommitsRepos)
			if err != nil {
				errors.Respond(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"commits": commits, "count": len(commits)})
			return
		}

		for field, name := range map[string]string{"owner": owner, "repo": repo} {
			if err := security.ValidateGitHubName(field, name); err != nil {
				errors.Respond(c, errors.NewValidationError(err.Error()))
				return
			}
		}

		commits, err := s.GitHub.ListCommits(c.Request.Context(), token, owner, repo, since)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"commits": commits, "count": len(commits)})
	}
}
