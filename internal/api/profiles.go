package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/finance"
	"github.com/shiploop/shiploop-api/internal/score"
	"github.com/shiploop/shiploop-api/internal/security"
	"github.com/shiploop/shiploop-api/internal/waitlist"
)

type sessionRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	GitHubLogin string `json:"githubLogin"`
}

// respondProfileError maps repository errors for the current profile.
func respondProfileError(c *gin.Context, err error) {
	if stderrors.Is(err, database.ErrNotFound) {
		errors.Respond(c, errors.NewNotFoundError("Profile"))
		return
	}
	errors.Respond(c, err)
}

// handleSession godoc
// @Summary Start a session
// @Description Creates the profile with its score, streak and rank on first use and returns a session token.
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.Body
// @Router /api/auth/session [post]
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid request body"))
			return
		}

		addr := waitlist.NormalizeEmail(req.Email)
		if !waitlist.ValidEmail(addr) {
			errors.Respond(c, errors.NewValidationError("Invalid email address"))
			return
		}
		if req.GitHubLogin != "" {
			if err := security.ValidateGitHubName("githubLogin", req.GitHubLogin); err != nil {
				errors.Respond(c, errors.NewValidationError(err.Error()))
				return
			}
		}

		profile, created, err := s.Profiles.Bootstrap(c.Request.Context(), addr, req.Name, req.GitHubLogin)
		if err != nil {
			errors.Respond(c, errors.NewInternalError("failed to create profile", err))
			return
		}
		if created {
			s.Leaderboard.Invalidate()
		}

		token, err := s.Profiles.GenerateSessionToken(profile.ID)
		if err != nil {
			errors.Respond(c, errors.NewInternalError("failed to issue session", err))
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{
			"token":   token,
			"profile": profile,
			"created": created,
		})
	}
}

// handleScore godoc
// @Summary Current ship score
// @Tags score
// @Produce json
// @Security BearerAuth
// @Success 200 {object} score.ShipScore
// @Failure 401 {object} errors.Body
// @Router /api/score [get]
func (s *Server) handleScore() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := s.Profiles.GetShipScore(c.Request.Context(), security.UserID(c))
		if err != nil {
			respondProfileError(c, err)
			return
		}
		c.JSON(http.StatusOK, current)
	}
}

// handleActivity godoc
// @Summary Record activity
// @Description Records a commit, launch or user growth figure, advances the streak and recomputes the score.
// @Tags score
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} score.ShipScore
// @Failure 400 {object} errors.Body
// @Router /api/score/activity [post]
func (s *Server) handleActivity() gin.HandlerFunc {
	return func(c *gin.Context) {
		var activity database.Activity
		if err := c.ShouldBindJSON(&activity); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid activity", err.Error()))
			return
		}

		updated, err := s.Profiles.RecordActivity(c.Request.Context(), security.UserID(c), activity)
		if err != nil {
			respondProfileError(c, err)
			return
		}
		s.Leaderboard.Invalidate()
		c.JSON(http.StatusOK, updated)
	}
}

// handleBreakdown godoc
// @Summary Patch the score breakdown
// @Description Merges a partial breakdown. The total is always recomputed from the merged values.
// @Tags score
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} score.ShipScore
// @Failure 400 {object} errors.Body
// @Router /api/score/breakdown [patch]
func (s *Server) handleBreakdown() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch score.BreakdownPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid breakdown"))
			return
		}
		if patch.Empty() {
			errors.Respond(c, errors.NewValidationError("At least one breakdown field is required"))
			return
		}

		updated, err := s.Profiles.PatchBreakdown(c.Request.Context(), security.UserID(c), patch)
		if err != nil {
			respondProfileError(c, err)
			return
		}
		s.Leaderboard.Invalidate()
		c.JSON(http.StatusOK, updated)
	}
}

// handleLeaderboard godoc
// @Summary Leaderboard
// @Tags ranks
// @Produce json
// @Param limit query int false "Rows to return (max 100)"
// @Success 200 {object} leaderboard.Response
// @Router /api/leaderboard [get]
func (s *Server) handleLeaderboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errors.Respond(c, errors.NewValidationError("limit must be a number"))
				return
			}
			limit = n
		}

		resp, err := s.Leaderboard.GetLeaderboard(c.Request.Context(), limit)
		if err != nil {
			errors.Respond(c, errors.NewInternalError("failed to retrieve leaderboard", err))
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleRank godoc
// @Summary Current global rank
// @Tags ranks
// @Produce json
// @Security BearerAuth
// @Success 200 {object} score.GlobalRank
// @Router /api/rank [get]
func (s *Server) handleRank() gin.HandlerFunc {
	return func(c *gin.Context) {
		rank, err := s.Leaderboard.GetRank(c.Request.Context(), security.UserID(c))
		if err != nil {
			respondProfileError(c, err)
			return
		}
		c.JSON(http.StatusOK, rank)
	}
}

func (s *Server) handleLeaderboardCacheStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Leaderboard.GetCacheStats())
	}
}

// handleFinanceHealth godoc
// @Summary Runway and financial health
// @Tags finance
// @Accept json
// @Produce json
// @Success 200 {object} finance.Report
// @Failure 400 {object} errors.Body
// @Router /api/finance/health [post]
func (s *Server) handleFinanceHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		var snap finance.Snapshot
		if err := c.ShouldBindJSON(&snap); err != nil {
			errors.Respond(c, errors.NewValidationError("Amounts must be non-negative cents"))
			return
		}
		c.JSON(http.StatusOK, finance.Evaluate(snap))
	}
}
