package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/finance"
	"github.com/shiploop/shiploop-api/internal/resilience"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const revenueWindow = 30 * 24 * time.Hour

// RevenueSummary is the month-over-month view of a connected account
type RevenueSummary struct {
	MRR      int64   `json:"mrr"`
	Previous int64   `json:"previous"`
	Growth   float64 `json:"growth"`
	Currency string  `json:"currency"`
}

// StripeAdapter wraps the Stripe Connect OAuth flow and balance reporting
type StripeAdapter struct {
	api       *client.API
	clientID  string
	secretKey string
	pool      *resilience.ConnectionPool
	now       func() time.Time
}

// NewStripeAdapter creates a Stripe adapter. apiURL overrides both the API
// and Connect backends and is only set in tests.
func NewStripeAdapter(cfg config.StripeConfig, pool *resilience.ConnectionPool, apiURL string) *StripeAdapter {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        pool.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if apiURL != "" {
		backendCfg.URL = stripe.String(apiURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg))

	return &StripeAdapter{
		api:       api,
		clientID:  cfg.ClientID,
		secretKey: cfg.SecretKey,
		pool:      pool,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether Connect is configured
func (s *StripeAdapter) Enabled() bool {
	return s.clientID != "" && s.secretKey != ""
}

// AuthorizeURL builds the Connect OAuth URL carrying a signed state
func (s *StripeAdapter) AuthorizeURL(state, redirectURI string) (string, error) {
	if !s.Enabled() {
		return "", errors.NewConfigurationError("STRIPE_CLIENT_ID and STRIPE_SECRET_KEY are required", nil)
	}
	params := &stripe.AuthorizeURLParams{
		ClientID:     stripe.String(s.clientID),
		ResponseType: stripe.String("code"),
		Scope:        stripe.String(string(stripe.OAuthScopeTypeReadOnly)),
		State:        stripe.String(state),
	}
	if redirectURI != "" {
		params.RedirectURI = stripe.String(redirectURI)
	}
	return s.api.OAuth.AuthorizeURL(params), nil
}

// ExchangeCode trades an OAuth code for the connected account ID
func (s *StripeAdapter) ExchangeCode(ctx context.Context, code string) (string, error) {
	if !s.Enabled() {
		return "", errors.NewConfigurationError("STRIPE_CLIENT_ID and STRIPE_SECRET_KEY are required", nil)
	}

	var accountID string
	err := s.pool.Guard(ctx, func(ctx context.Context) error {
		params := &stripe.OAuthTokenParams{
			Code:         stripe.String(code),
			GrantType:    stripe.String("authorization_code"),
			ClientSecret: stripe.String(s.secretKey),
		}
		params.Context = ctx
		token, err := s.api.OAuth.New(params)
		if err != nil {
			return classifyStripeError(err)
		}
		accountID = token.StripeUserID
		return nil
	})
	if err != nil {
		return "", err
	}
	if accountID == "" {
		return "", errors.NewExternalAPIError("Stripe", fmt.Errorf("token response carried no account"))
	}
	return accountID, nil
}

// Revenue sums charges and refunds of the connected account over the last
// 30 days and the 30 days before that.
func (s *StripeAdapter) Revenue(ctx context.Context, accountID string) (RevenueSummary, error) {
	if s.secretKey == "" {
		return RevenueSummary{}, errors.NewConfigurationError("STRIPE_SECRET_KEY is required", nil)
	}

	now := s.now()
	current, currency, err := s.sumWindow(ctx, accountID, now.Add(-revenueWindow), now)
	if err != nil {
		return RevenueSummary{}, err
	}
	previous, prevCurrency, err := s.sumWindow(ctx, accountID, now.Add(-2*revenueWindow), now.Add(-revenueWindow))
	if err != nil {
		return RevenueSummary{}, err
	}
	if currency == "" {
		currency = prevCurrency
	}
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return RevenueSummary{
		MRR:      current,
		Previous: previous,
		Growth:   finance.GrowthPct(previous, current),
		Currency: currency,
	}, nil
}

func (s *StripeAdapter) sumWindow(ctx context.Context, accountID string, from, to time.Time) (int64, string, error) {
	var (
		total    int64
		currency string
	)
	err := s.pool.Guard(ctx, func(ctx context.Context) error {
		total, currency = 0, ""
		params := &stripe.BalanceTransactionListParams{
			CreatedRange: &stripe.RangeQueryParams{
				GreaterThanOrEqual: from.Unix(),
				LesserThan:         to.Unix(),
			},
		}
		params.Context = ctx
		params.Limit = stripe.Int64(100)
		if accountID != "" {
			params.SetStripeAccount(accountID)
		}

		iter := s.api.BalanceTransactions.List(params)
		for iter.Next() {
			tx := iter.BalanceTransaction()
			if !countsAsRevenue(tx.Type) {
				continue
			}
			total += tx.Amount
			if currency == "" {
				currency = string(tx.Currency)
			}
		}
		if err := iter.Err(); err != nil {
			return classifyStripeError(err)
		}
		return nil
	})
	return total, currency, err
}

func countsAsRevenue(t stripe.BalanceTransactionType) bool {
	switch t {
	case stripe.BalanceTransactionTypeCharge, stripe.BalanceTransactionTypePayment,
		stripe.BalanceTransactionTypeRefund, stripe.BalanceTransactionTypePaymentRefund:
		return true
	}
	return false
}

// classifyStripeError maps SDK errors onto AppErrors; 4xx are not retried.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if stderrors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == 401 || stripeErr.HTTPStatusCode == 403:
			return errors.NewUnauthorizedError("Stripe rejected the credentials")
		case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != 429:
			return errors.NewValidationError(strings.TrimSpace("Stripe: " + stripeErr.Msg))
		}
	}
	return errors.NewExternalAPIError("Stripe", err)
}
