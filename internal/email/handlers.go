package email

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/waitlist"
)

type welcomeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type reminderRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Streak int    `json:"streak" binding:"min=0"`
}

func respond(c *gin.Context, res Result) {
	body := gin.H{"success": true}
	if res.Mock {
		body["mock"] = true
	} else {
		body["id"] = res.ID
	}
	c.JSON(http.StatusOK, body)
}

func bindAddress(c *gin.Context, raw string) (string, bool) {
	addr := waitlist.NormalizeEmail(raw)
	if !waitlist.ValidEmail(addr) {
		errors.Respond(c, errors.NewValidationError("Invalid email address"))
		return "", false
	}
	return addr, true
}

// HandleWelcome godoc
// @Summary Send the welcome email
// @Tags email
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.Body
// @Router /api/email/welcome [post]
func (s *Service) HandleWelcome() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req welcomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid request body"))
			return
		}
		to, ok := bindAddress(c, req.Email)
		if !ok {
			return
		}

		res, err := s.SendWelcome(c.Request.Context(), to, req.Name)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		respond(c, res)
	}
}

// HandleReminder godoc
// @Summary Send a streak reminder email
// @Tags email
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.Body
// @Router /api/email/reminder [post]
func (s *Service) HandleReminder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reminderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid request body"))
			return
		}
		to, ok := bindAddress(c, req.Email)
		if !ok {
			return
		}

		res, err := s.SendStreakReminder(c.Request.Context(), to, req.Name, req.Streak)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		respond(c, res)
	}
}
