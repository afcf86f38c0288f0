package email_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/email"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMailer(host string, sandbox bool) *email.Mailer {
	cb := resilience.NewCircuitBreaker("sendgrid-test", zap.NewNop(), email.BreakerFailure)
	return email.NewMailer(email.Config{
		APIKey:    "SG.key",
		FromEmail: "hello@homeward.test",
		FromName:  "Homeward",
		Sandbox:   sandbox,
		Host:      host,
	}, cb, resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}, zap.NewNop())
}

func TestSend_PostsDynamicTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.key", r.Header.Get("Authorization"))

		var body struct {
			TemplateID       string `json:"template_id"`
			Personalizations []struct {
				To []struct {
					Email string `json:"email"`
				} `json:"to"`
				Data map[string]any `json:"dynamic_template_data"`
			} `json:"personalizations"`
			MailSettings struct {
				Sandbox struct {
					Enable bool `json:"enable"`
				} `json:"sandbox_mode"`
			} `json:"mail_settings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "d-123", body.TemplateID)
		require.Len(t, body.Personalizations, 1)
		assert.Equal(t, "ada@example.com", body.Personalizations[0].To[0].Email)
		assert.Equal(t, "Ada", body.Personalizations[0].Data["first_name"])
		assert.True(t, body.MailSettings.Sandbox.Enable)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := newMailer(srv.URL, true).Send(context.Background(), "d-123",
		[]domain.Recipient{{Email: "ada@example.com", Name: "Ada"}}, map[string]any{"first_name": "Ada"})
	require.NoError(t, err)
}

func TestSend_RejectedMessageIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"The template_id must be a valid GUID"}]}`))
	}))
	defer srv.Close()

	err := newMailer(srv.URL, false).Send(context.Background(), "bad", []domain.Recipient{{Email: "a@b.test"}}, nil)
	var ve *domain.ErrValidation
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "valid GUID")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, newMailer(srv.URL, false).Send(context.Background(), "d-1", []domain.Recipient{{Email: "a@b.test"}}, nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_RequiresRecipient(t *testing.T) {
	err := newMailer("http://unused", false).Send(context.Background(), "d-1", nil, nil)
	var ve *domain.ErrValidation
	assert.True(t, errors.As(err, &ve))
}

func TestTemplateID(t *testing.T) {
	cfg := email.Config{Templates: map[domain.EmailTemplate]string{domain.EmailCMARequest: "d-cma"}}
	id, err := cfg.TemplateID(domain.EmailCMARequest)
	require.NoError(t, err)
	assert.Equal(t, "d-cma", id)

	_, err = cfg.TemplateID(domain.EmailCXMessage)
	var ve *domain.ErrValidation
	assert.True(t, errors.As(err, &ve))
}
