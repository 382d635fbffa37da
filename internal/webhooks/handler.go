// Package webhooks receives Stripe and GitHub deliveries, verifies them and
// turns them into revenue and activity records.
package webhooks

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/score"
)

const maxBodyBytes = int64(1 << 20)

// Outcomes reported in the webhook log and response.
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

// ActivitySink is the part of the profile service webhooks write through.
type ActivitySink interface {
	MarkDelivery(ctx context.Context, source, deliveryID, eventType string) (bool, error)
	ForgetDelivery(ctx context.Context, source, deliveryID string) error
	ProfileForGitHub(ctx context.Context, login string) (*database.Profile, error)
	ProfileForStripeAccount(ctx context.Context, accountID string) (*database.Profile, error)
	GetProfile(ctx context.Context, id string) (*database.Profile, error)
	RecordActivity(ctx context.Context, profileID string, a database.Activity) (score.ShipScore, error)
	RecordRevenue(ctx context.Context, ev database.RevenueEvent) (bool, error)
}

// Handler serves both webhook endpoints.
type Handler struct {
	sink          ActivitySink
	stripeSecret  string
	githubSecret  string
	logger        *monitoring.Logger
	metrics       *monitoring.Metrics
	onScoreChange func()
}

// Option customises a Handler.
type Option func(*Handler)

// WithScoreChangeHook registers a callback run after any score was recomputed,
// used to invalidate the leaderboard cache.
func WithScoreChangeHook(fn func()) Option {
	return func(h *Handler) { h.onScoreChange = fn }
}

// NewHandler creates a webhook handler. Empty secrets disable the matching endpoint.
func NewHandler(sink ActivitySink, stripeSecret, githubSecret string, logger *monitoring.Logger, metrics *monitoring.Metrics, opts ...Option) *Handler {
	h := &Handler{
		sink:         sink,
		stripeSecret: stripeSecret,
		githubSecret: githubSecret,
		logger:       logger,
		metrics:      metrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// readBody reads the raw body with a size cap; signatures are computed over these bytes.
func readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}
	return body, true
}

// begin records the delivery and reports whether it should be processed.
func (h *Handler) begin(c *gin.Context, source, deliveryID, eventType string) bool {
	if h.metrics != nil {
		h.metrics.RecordWebhook(source, eventType)
	}

	first, err := h.sink.MarkDelivery(c.Request.Context(), source, deliveryID, eventType)
	if err != nil {
		h.finish(c, source, eventType, deliveryID, outcomeFailed, http.StatusInternalServerError, gin.H{"error": "failed to record delivery"})
		return false
	}
	if !first {
		h.finish(c, source, eventType, deliveryID, outcomeDuplicate, http.StatusOK, gin.H{"received": true, "duplicate": true})
		return false
	}
	return true
}

// fail forgets the delivery so the sender's retry is processed, then responds 500.
func (h *Handler) fail(c *gin.Context, source, eventType, deliveryID string, err error) {
	if ferr := h.sink.ForgetDelivery(c.Request.Context(), source, deliveryID); ferr != nil {
		h.logger.Error("Failed to forget webhook delivery", "source", source, "delivery_id", deliveryID, "error", ferr)
	}
	h.logger.Error("Webhook processing failed", "source", source, "event_type", eventType, "error", err)
	h.finish(c, source, eventType, deliveryID, outcomeFailed, http.StatusInternalServerError, gin.H{"error": "failed to process event"})
}

func (h *Handler) finish(c *gin.Context, source, eventType, deliveryID, outcome string, status int, body gin.H) {
	h.logger.WebhookLogger(source, eventType, deliveryID, outcome)
	c.JSON(status, body)
}

func (h *Handler) scoresChanged() {
	if h.onScoreChange != nil {
		h.onScoreChange()
	}
}
