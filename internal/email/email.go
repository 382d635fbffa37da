// Package email sends transactional mail through Resend. Without an API key
// every send is reported as a mock success.
package email

import (
	"context"
	stderrors "errors"
	"net"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/resilience"
)

// Result describes one send.
type Result struct {
	ID   string `json:"id,omitempty"`
	Mock bool   `json:"mock,omitempty"`
}

type Service struct {
	client  *resend.Client
	from    string
	siteURL string
	pool    *resilience.ConnectionPool
	metrics *monitoring.Metrics
}

// NewService builds the sender. apiURL overrides the Resend endpoint and is
// only set in tests.
func NewService(cfg config.EmailConfig, siteURL string, pool *resilience.ConnectionPool, metrics *monitoring.Metrics, apiURL string) (*Service, error) {
	s := &Service{
		from:    cfg.From,
		siteURL: strings.TrimRight(siteURL, "/"),
		pool:    pool,
		metrics: metrics,
	}
	if cfg.ResendAPIKey == "" {
		return s, nil
	}

	s.client = resend.NewCustomClient(pool.Client(), cfg.ResendAPIKey)
	if apiURL != "" {
		u, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
		if err != nil {
			return nil, errors.NewConfigurationError("invalid resend url", err)
		}
		s.client.BaseURL = u
	}
	return s, nil
}

func (s *Service) Enabled() bool { return s.client != nil }

// SendWelcome sends the signup email.
func (s *Service) SendWelcome(ctx context.Context, to, name string) (Result, error) {
	html, err := render(welcomeTemplate, welcomeData{Name: displayName(name, to), SiteURL: s.siteURL})
	if err != nil {
		return Result{}, errors.NewInternalError("failed to render email", err)
	}
	return s.send(ctx, to, "Welcome to ShipLoop", html)
}

// SendStreakReminder nudges a user whose streak breaks if they skip today.
func (s *Service) SendStreakReminder(ctx context.Context, to, name string, streak int) (Result, error) {
	html, err := render(reminderTemplate, reminderData{
		Name:    displayName(name, to),
		Streak:  streak,
		Next:    streak + 1,
		SiteURL: s.siteURL,
	})
	if err != nil {
		return Result{}, errors.NewInternalError("failed to render email", err)
	}
	return s.send(ctx, to, reminderSubject(streak), html)
}

func (s *Service) send(ctx context.Context, to, subject, html string) (Result, error) {
	if s.client == nil {
		s.record(true)
		return Result{Mock: true}, nil
	}

	var res Result
	err := s.pool.Guard(ctx, func(ctx context.Context) error {
		resp, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
			From:    s.from,
			To:      []string{to},
			Subject: subject,
			Html:    html,
			Tags:    []resend.Tag{{Name: "category", Value: "transactional"}},
		})
		if err != nil {
			return classifyResendError(err)
		}
		res.ID = resp.Id
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.record(false)
	return res, nil
}

func (s *Service) record(mock bool) {
	if s.metrics != nil {
		s.metrics.RecordEmail(mock)
	}
}

// classifyResendError maps SDK errors onto retry categories.
func classifyResendError(err error) error {
	var rl *resend.RateLimitError
	if stderrors.As(err, &rl) {
		return errors.NewRateLimitError(rl.RetryAfter)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.NewNetworkError("resend request failed", err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// TODO: split out 4xx once resend-go returns a typed error for them; the SDK
	// currently flattens 400 and 422 into plain errors so they are retried too.
	return errors.NewExternalAPIError("resend", err)
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return "maker"
}
