package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeAdapter_AuthorizeURL(t *testing.T) {
	adapter := NewStripeAdapter(config.StripeConfig{SecretKey: "sk_test_1", ClientID: "ca_123"}, newTestPool("stripe"), "")

	raw, err := adapter.AuthorizeURL("signed-state", "https://app.shiploop.dev/api/stripe/connect")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", u.Path)
	assert.Equal(t, "ca_123", u.Query().Get("client_id"))
	assert.Equal(t, "signed-state", u.Query().Get("state"))
	assert.Equal(t, "read_only", u.Query().Get("scope"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
}

func TestStripeAdapter_NotConfigured(t *testing.T) {
	adapter := NewStripeAdapter(config.StripeConfig{}, newTestPool("stripe"), "")
	assert.False(t, adapter.Enabled())

	_, err := adapter.AuthorizeURL("s", "")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.ToAppError(err).Category)

	_, err = adapter.Revenue(context.Background(), "acct_1")
	require.Error(t, err)
}

func TestStripeAdapter_ExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ac_code", r.PostForm.Get("code"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"stripe_user_id":"acct_123","scope":"read_only","token_type":"bearer"}`)
	}))
	defer srv.Close()

	adapter := NewStripeAdapter(config.StripeConfig{SecretKey: "sk_test_1", ClientID: "ca_123"}, newTestPool("stripe"), srv.URL)
	account, err := adapter.ExchangeCode(context.Background(), "ac_code")
	require.NoError(t, err)
	assert.Equal(t, "acct_123", account)
}

func TestStripeAdapter_Revenue(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	currentStart := now.Add(-revenueWindow).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/balance_transactions", r.URL.Path)
		assert.Equal(t, "acct_123", r.Header.Get("Stripe-Account"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("created[gte]") == fmt.Sprint(currentStart) {
			fmt.Fprint(w, `{"object":"list","url":"/v1/balance_transactions","has_more":false,"data":[
				{"id":"txn_1","object":"balance_transaction","amount":15000,"currency":"eur","type":"charge"},
				{"id":"txn_2","object":"balance_transaction","amount":-3000,"currency":"eur","type":"refund"},
				{"id":"txn_3","object":"balance_transaction","amount":-500,"currency":"eur","type":"stripe_fee"}
			]}`)
			return
		}
		fmt.Fprint(w, `{"object":"list","url":"/v1/balance_transactions","has_more":false,"data":[
			{"id":"txn_0","object":"balance_transaction","amount":10000,"currency":"eur","type":"payment"}
		]}`)
	}))
	defer srv.Close()

	adapter := NewStripeAdapter(config.StripeConfig{SecretKey: "sk_test_1", ClientID: "ca_123"}, newTestPool("stripe"), srv.URL)
	adapter.now = func() time.Time { return now }

	summary, err := adapter.Revenue(context.Background(), "acct_123")
	require.NoError(t, err)
	assert.Equal(t, RevenueSummary{MRR: 12000, Previous: 10000, Growth: 20, Currency: "eur"}, summary)
}
