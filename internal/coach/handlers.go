package coach

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/errors"
)

type askRequest struct {
	Question    string `json:"question"`
	Personality string `json:"personality"`
}

// HandleAsk godoc
// @Summary Ask the AI coach
// @Tags coach
// @Accept json
// @Produce json
// @Success 200 {object} Answer
// @Failure 400 {object} errors.Body
// @Router /api/coach/ask [post]
func (s *Service) HandleAsk() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req askRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid request body"))
			return
		}

		answer, err := s.Ask(c.Request.Context(), req.Question, req.Personality)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, answer)
	}
}
