package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	testStripeSecret = "whsec_test"
	testGitHubSecret = "gh-secret"
)

type fixture struct {
	router      *gin.Engine
	svc         *database.ProfileService
	repo        *database.Repository
	metrics     *monitoring.Metrics
	invalidated int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	f := &fixture{
		svc:     database.NewProfileService(repo, score.NewTracker(time.UTC), "secret"),
		repo:    repo,
		metrics: monitoring.NewMetrics(),
	}

	h := NewHandler(f.svc, testStripeSecret, testGitHubSecret,
		monitoring.NewLoggerTo(io.Discard, slog.LevelError), f.metrics,
		WithScoreChangeHook(func() { f.invalidated++ }))

	f.router = gin.New()
	f.router.POST("/api/webhooks/stripe", h.HandleStripe())
	f.router.POST("/api/webhooks/github", h.HandleGitHub())
	return f
}

func (f *fixture) profile(t *testing.T, login string) *database.Profile {
	t.Helper()
	p, _, err := f.svc.Bootstrap(context.Background(), login+"@example.com", login, login)
	require.NoError(t, err)
	return p
}

func (f *fixture) postGitHub(event, delivery string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	req.Header.Set("X-Hub-Signature-256", signature)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postStripe(body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", header)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func stripeEvent(id, eventType, account, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":%q,"account":%q,"created":%d,"data":{"object":%s}}`,
		id, stripe.APIVersion, eventType, account, time.Now().Unix(), object))
}

func signStripe(body []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestVerifyGitHubSignature(t *testing.T) {
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	sig := SignGitHubPayload("s3cret", body)

	tests := []struct {
		name   string
		secret string
		header string
		want   bool
	}{
		{"valid", "s3cret", sig, true},
		{"wrong secret", "other", sig, false},
		{"missing prefix", "s3cret", sig[len(signaturePrefix):], false},
		{"not hex", "s3cret", "sha256=zz", false},
		{"empty secret", "", sig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyGitHubSignature(tt.secret, body, tt.header))
		})
	}
}

func TestGitHubRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	w := f.postGitHub("push", "d-1", []byte(`{}`), "sha256=00")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGitHubPing(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"zen":"hi"}`)
	w := f.postGitHub("ping", "d-ping", body, SignGitHubPayload(testGitHubSecret, body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestGitHubPushRecordsCommitsOnce(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "octocat")

	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"octocat/app"},"sender":{"login":"OctoCat"},
		"commits":[{"id":"a","distinct":true},{"id":"b","distinct":true},{"id":"c","distinct":false},{"id":"d"}]}`)
	sig := SignGitHubPayload(testGitHubSecret, body)

	w := f.postGitHub("push", "delivery-1", body, sig)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"commits":3`)

	n, err := f.repo.CountCommitsSince(context.Background(), p.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	s, err := f.svc.GetShipScore(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Streak.CurrentStreak)
	assert.Equal(t, 1, f.invalidated)

	// redelivery
	w = f.postGitHub("push", "delivery-1", body, sig)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")

	n, err = f.repo.CountCommitsSince(context.Background(), p.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	domain := f.metrics.GetDomainStats()["webhook_events"].(map[string]int64)
	assert.EqualValues(t, 2, domain["github:push"])
}

func TestGitHubPushUnknownSenderIsIgnored(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"repository":{"full_name":"x/y"},"sender":{"login":"stranger"},"commits":[{"id":"a"}]}`)
	w := f.postGitHub("push", "d-2", body, SignGitHubPayload(testGitHubSecret, body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no linked profile")
}

func TestGitHubReleaseRecordsLaunch(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "maker")

	published := []byte(`{"action":"published","release":{"name":"v1.0","tag_name":"v1.0.0"},"repository":{"full_name":"maker/app"},"sender":{"login":"maker"}}`)
	w := f.postGitHub("release", "r-1", published, SignGitHubPayload(testGitHubSecret, published))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	created := []byte(`{"action":"created","release":{"name":"v1.1"},"repository":{"full_name":"maker/app"},"sender":{"login":"maker"}}`)
	w = f.postGitHub("release", "r-2", created, SignGitHubPayload(testGitHubSecret, created))
	require.Equal(t, http.StatusOK, w.Code)

	n, err := f.repo.CountLaunchesSince(context.Background(), p.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, err := f.svc.GetShipScore(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Breakdown.Launches.Int())
}

func TestGitHubUnknownEventIgnored(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{}`)
	w := f.postGitHub("issues", "d-3", body, SignGitHubPayload(testGitHubSecret, body))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStripeRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := stripeEvent("evt_1", "charge.succeeded", "", `{"id":"ch_1","object":"charge"}`)
	w := f.postStripe(body, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeChargeRecordsRevenueForConnectedAccount(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "founder")
	require.NoError(t, f.svc.ConnectStripe(context.Background(), p.ID, "acct_42"))

	charge := stripeEvent("evt_charge", "charge.succeeded", "acct_42",
		`{"id":"ch_1","object":"charge","amount":5000,"amount_refunded":1000,"currency":"usd","payment_intent":"pi_1"}`)
	w := f.postStripe(charge, signStripe(charge))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"recorded":true`)

	// the invoice for the same payment intent is not counted twice
	invoice := stripeEvent("evt_invoice", "invoice.paid", "acct_42",
		`{"id":"in_1","object":"invoice","amount_paid":4000,"currency":"usd","payment_intent":"pi_1"}`)
	w = f.postStripe(invoice, signStripe(invoice))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"recorded":false`)

	total, err := f.repo.SumRevenue(context.Background(), p.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 4000, total)

	s, err := f.svc.GetShipScore(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, s.Breakdown.Revenue.Int(), "first revenue counts as full growth")
	assert.Equal(t, 1, f.invalidated)
}

func TestStripeCheckoutUsesClientReference(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "buyer")

	obj := fmt.Sprintf(`{"id":"cs_1","object":"checkout.session","amount_total":2500,"currency":"usd","payment_status":"paid","client_reference_id":%q}`, p.ID)
	body := stripeEvent("evt_cs", "checkout.session.completed", "", obj)
	w := f.postStripe(body, signStripe(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	total, err := f.repo.SumRevenue(context.Background(), p.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2500, total)
}

func TestStripeDuplicateAndUnknownEvents(t *testing.T) {
	f := newFixture(t)

	unknown := stripeEvent("evt_u", "payout.created", "", `{"id":"po_1","object":"payout"}`)
	w := f.postStripe(unknown, signStripe(unknown))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.postStripe(unknown, signStripe(unknown))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")

	sub := stripeEvent("evt_s", "customer.subscription.updated", "acct_9", `{"id":"sub_1","object":"subscription"}`)
	w = f.postStripe(sub, signStripe(sub))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStripeUnlinkedAccountIgnored(t *testing.T) {
	f := newFixture(t)
	body := stripeEvent("evt_x", "charge.succeeded", "acct_none", `{"id":"ch_x","object":"charge","amount":100,"currency":"usd"}`)
	w := f.postStripe(body, signStripe(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no linked profile")
}
