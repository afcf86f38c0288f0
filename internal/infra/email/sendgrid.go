// Package email sends transactional email through SendGrid dynamic templates.
package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("email")

const defaultHost = "https://api.sendgrid.com"

type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	Sandbox   bool
	// Host overrides the API host (tests).
	Host string
	// Templates maps each email to its SendGrid template id.
	Templates map[domain.EmailTemplate]string
}

// TemplateID returns the provider template for t.
func (c Config) TemplateID(t domain.EmailTemplate) (string, error) {
	id, ok := c.Templates[t]
	if !ok || id == "" {
		return "", domain.NewValidationError("template", fmt.Sprintf("no sendgrid template configured for %q", t))
	}
	return id, nil
}

type Mailer struct {
	cfg    Config
	cb     *gobreaker.CircuitBreaker
	retry  resilience.Config
	logger *zap.Logger
}

func NewMailer(cfg Config, cb *gobreaker.CircuitBreaker, retry resilience.Config, logger *zap.Logger) *Mailer {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	return &Mailer{cfg: cfg, cb: cb, retry: retry, logger: logger}
}

// Build assembles the v3 message for one template send.
func (m *Mailer) Build(templateID string, to []domain.Recipient, data map[string]any) *mail.SGMailV3 {
	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail(m.cfg.FromName, m.cfg.FromEmail))
	msg.SetTemplateID(templateID)

	p := mail.NewPersonalization()
	for _, r := range to {
		p.AddTos(mail.NewEmail(r.Name, r.Email))
	}
	for k, v := range data {
		p.SetDynamicTemplateData(k, v)
	}
	msg.AddPersonalizations(p)

	if m.cfg.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}
	return msg
}

// Send delivers one templated email. 4xx answers are not retried.
func (m *Mailer) Send(ctx context.Context, templateID string, to []domain.Recipient, data map[string]any) error {
	ctx, span := tracer.Start(ctx, "Mailer.Send")
	defer span.End()
	span.SetAttributes(attribute.String("email.template_id", templateID), attribute.Int("email.recipients", len(to)))

	if len(to) == 0 {
		return domain.NewValidationError("to", "at least one recipient is required")
	}
	body := mail.GetRequestBody(m.Build(templateID, to, data))

	_, err := m.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, m.retry, func() error {
			req := sendgrid.GetRequest(m.cfg.APIKey, "/v3/mail/send", m.cfg.Host)
			req.Method = http.MethodPost
			req.Body = body
			resp, err := sendgrid.MakeRequestWithContext(ctx, req)
			if err != nil {
				return err
			}
			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return resilience.Permanent(&domain.ErrConfiguration{Service: "sendgrid", Status: resp.StatusCode})
			case resp.StatusCode >= 500:
				return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
			case resp.StatusCode >= 300:
				return resilience.Permanent(&domain.ErrValidation{
					Field:   "email",
					Message: fmt.Sprintf("sendgrid rejected message (%d): %s", resp.StatusCode, errorMessage(resp.Body)),
				})
			}
			return nil
		})
	})
	if err != nil {
		var cfgErr *domain.ErrConfiguration
		var ve *domain.ErrValidation
		switch {
		case errors.As(err, &cfgErr):
			m.logger.Error("sendgrid rejected api key: check credentials / account locked", zap.Int("status", cfgErr.Status))
			return cfgErr
		case errors.As(err, &ve):
			return ve
		case resilience.IsOpen(err):
			return &domain.ErrCircuitOpen{Service: "sendgrid"}
		}
		return &domain.ErrExternalService{Service: "sendgrid", Err: err}
	}
	m.logger.Info("email sent", zap.String("template_id", templateID), zap.Int("recipients", len(to)))
	return nil
}

func errorMessage(body string) string {
	var parsed struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal([]byte(body), &parsed) == nil && len(parsed.Errors) > 0 {
		return parsed.Errors[0].Message
	}
	return body
}

// BreakerFailure ignores rejected messages.
func BreakerFailure(err error) bool {
	var ve *domain.ErrValidation
	var cfgErr *domain.ErrConfiguration
	return !errors.As(err, &ve) && !errors.As(err, &cfgErr)
}
