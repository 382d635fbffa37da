package webhooks

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const sourceStripe = "stripe"

// payment is the revenue-relevant part of a checkout session, invoice or charge.
type payment struct {
	externalID string
	amount     int64
	currency   string
	occurredAt time.Time
	profileRef string
}

// HandleStripe verifies the Stripe-Signature header and records revenue events.
func (h *Handler) HandleStripe() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.stripeSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stripe webhooks not configured"})
			return
		}

		body, ok := readBody(c)
		if !ok {
			return
		}

		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.stripeSecret)
		if err != nil {
			h.logger.SecurityLogger("stripe_signature_invalid", c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{"error": err.Error()})
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}

		eventType := string(event.Type)
		if !h.begin(c, sourceStripe, event.ID, eventType) {
			return
		}

		switch event.Type {
		case "checkout.session.completed", "invoice.paid", "charge.succeeded":
			pay, err := decodePayment(event)
			if err != nil {
				h.finish(c, sourceStripe, eventType, event.ID, outcomeIgnored, http.StatusBadRequest, gin.H{"error": "failed to parse event object"})
				return
			}
			h.recordPayment(c, event, pay)

		case "account.updated":
			h.logger.Info("Stripe account updated", "account", event.Account)
			h.finish(c, sourceStripe, eventType, event.ID, outcomeProcessed, http.StatusOK, gin.H{"received": true})

		default:
			outcome := outcomeIgnored
			if strings.HasPrefix(eventType, "customer.subscription.") {
				h.logger.Info("Stripe subscription event", "type", eventType, "account", event.Account)
				outcome = outcomeProcessed
			}
			h.finish(c, sourceStripe, eventType, event.ID, outcome, http.StatusOK, gin.H{"received": true})
		}
	}
}

func (h *Handler) recordPayment(c *gin.Context, event stripe.Event, pay payment) {
	ctx := c.Request.Context()
	eventType := string(event.Type)

	if pay.amount <= 0 {
		h.finish(c, sourceStripe, eventType, event.ID, outcomeIgnored, http.StatusOK, gin.H{"received": true})
		return
	}

	profile, err := h.resolveStripeProfile(c, event.Account, pay.profileRef)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			h.finish(c, sourceStripe, eventType, event.ID, outcomeIgnored, http.StatusOK, gin.H{"received": true, "ignored": "no linked profile"})
			return
		}
		h.fail(c, sourceStripe, eventType, event.ID, err)
		return
	}

	created, err := h.sink.RecordRevenue(ctx, database.RevenueEvent{
		ProfileID:  profile.ID,
		ExternalID: pay.externalID,
		Amount:     pay.amount,
		Currency:   pay.currency,
		OccurredAt: pay.occurredAt,
	})
	if err != nil {
		h.fail(c, sourceStripe, eventType, event.ID, err)
		return
	}
	if created {
		h.scoresChanged()
	}
	h.finish(c, sourceStripe, eventType, event.ID, outcomeProcessed, http.StatusOK, gin.H{"received": true, "recorded": created})
}

// resolveStripeProfile prefers the connected account, then the client reference
// set when the profile started checkout.
func (h *Handler) resolveStripeProfile(c *gin.Context, account, ref string) (*database.Profile, error) {
	ctx := c.Request.Context()
	if account != "" {
		p, err := h.sink.ProfileForStripeAccount(ctx, account)
		if err == nil || !stderrors.Is(err, database.ErrNotFound) || ref == "" {
			return p, err
		}
	}
	if ref == "" {
		return nil, database.ErrNotFound
	}
	return h.sink.GetProfile(ctx, ref)
}

// decodePayment extracts the amount of a paid object. The payment intent is
// used as external ID when present so that the session, invoice and charge
// of one payment are counted once.
func decodePayment(event stripe.Event) (payment, error) {
	occurred := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurred = time.Now().UTC()
	}

	switch event.Type {
	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return payment{}, err
		}
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return payment{externalID: s.ID}, nil
		}
		ref := s.ClientReferenceID
		if ref == "" {
			ref = s.Metadata["profile_id"]
		}
		return payment{
			externalID: externalID(s.ID, s.PaymentIntent),
			amount:     s.AmountTotal,
			currency:   string(s.Currency),
			occurredAt: occurred,
			profileRef: ref,
		}, nil

	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return payment{}, err
		}
		return payment{
			externalID: externalID(inv.ID, inv.PaymentIntent),
			amount:     inv.AmountPaid,
			currency:   string(inv.Currency),
			occurredAt: occurred,
			profileRef: inv.Metadata["profile_id"],
		}, nil

	default:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return payment{}, err
		}
		return payment{
			externalID: externalID(ch.ID, ch.PaymentIntent),
			amount:     ch.Amount - ch.AmountRefunded,
			currency:   string(ch.Currency),
			occurredAt: occurred,
			profileRef: ch.Metadata["profile_id"],
		}, nil
	}
}

func externalID(objectID string, pi *stripe.PaymentIntent) string {
	if pi != nil && pi.ID != "" {
		return "pi:" + pi.ID
	}
	return objectID
}
