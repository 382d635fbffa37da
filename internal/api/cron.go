package api

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/shiploop/shiploop-api/internal/errors"
)

const reminderConcurrency = 4

// handleStreakReminder godoc
// @Summary Daily streak sweep
// @Description Resets broken streaks, rescores aged-out activity and emails users whose streak ends today.
// @Tags cron
// @Produce json
// @Security CronSecret
// @Success 200 {object} map[string]int
// @Failure 401 {object} errors.Body
// @Router /api/cron/streak-reminder [get]
func (s *Server) handleStreakReminder() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		sweep, err := s.Profiles.SweepStreaks(ctx)
		if err != nil {
			errors.Respond(c, errors.NewInternalError("streak sweep failed", err))
			return
		}
		if len(sweep.Reset) > 0 || sweep.Rescored > 0 {
			s.Leaderboard.Invalidate()
		}

		// A failed reminder is logged and skipped; it never fails the sweep.
		var reminded atomic.Int64
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(reminderConcurrency)
		for _, ps := range sweep.AtRisk {
			group.Go(func() error {
				if _, err := s.Email.SendStreakReminder(gctx, ps.Email, ps.Name, ps.Streak.CurrentStreak); err != nil {
					s.Logger.Warn("Streak reminder failed", "profile_id", ps.ProfileID, "error", err)
					return nil
				}
				reminded.Add(1)
				return nil
			})
		}
		_ = group.Wait()

		s.Logger.Info("Streak sweep finished",
			"processed", sweep.Processed,
			"reset", len(sweep.Reset),
			"at_risk", len(sweep.AtRisk),
			"rescored", sweep.Rescored,
			"reminded", reminded.Load())

		c.JSON(http.StatusOK, gin.H{
			"processed": sweep.Processed,
			"reset":     len(sweep.Reset),
			"rescored":  sweep.Rescored,
			"reminded":  reminded.Load(),
		})
	}
}
