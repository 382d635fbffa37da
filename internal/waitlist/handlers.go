package waitlist

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/errors"
)

type joinRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type inviteRequest struct {
	Emails []string `json:"emails" binding:"required"`
}

// HandleJoin godoc
// @Summary Join the waitlist
// @Tags waitlist
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.Body
// @Router /api/waitlist [post]
func (s *Service) HandleJoin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req joinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid request body"))
			return
		}

		res, err := s.Join(c.Request.Context(), req.Email, req.Source)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		if res.AlreadyExists {
			c.JSON(http.StatusOK, gin.H{
				"message":       "You're already on the waitlist!",
				"alreadyExists": true,
				"position":      res.Position,
			})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":  "Successfully joined the waitlist!",
			"position": res.Position,
		})
	}
}

// HandleCount godoc
// @Summary Waitlist size
// @Tags waitlist
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/waitlist [get]
func (s *Service) HandleCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.Count(c.Request.Context())
		if err != nil {
			errors.Respond(c, errors.NewInternalError("failed to count waitlist", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}

// HandleAdminList lists entries, optionally filtered with ?invited=true|false (admin only)
func (s *Service) HandleAdminList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var invited *bool
		if raw := c.Query("invited"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				errors.Respond(c, errors.NewValidationError("invited must be true or false"))
				return
			}
			invited = &v
		}

		entries, err := s.List(c.Request.Context(), invited)
		if err != nil {
			errors.Respond(c, errors.NewInternalError("failed to list waitlist", err))
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	}
}

// HandleAdminInvite marks emails invited (admin only)
func (s *Service) HandleAdminInvite() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inviteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("emails are required"))
			return
		}

		updated, err := s.Invite(c.Request.Context(), req.Emails)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}
