// Package blend reads loan follow-ups from the mortgage provider.
package blend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("blend")

// PublicHost is the provider's public API domain. Requests to it go through
// ProxyURL when one is configured.
const PublicHost = "api.blendlabs.com"

type Config struct {
	APIURL     string
	APIKey     string
	Instance   string
	APIVersion string
	ProxyURL   string
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
}

// UsesProxy reports whether requests to cfg.APIURL must use the proxy.
func UsesProxy(cfg Config) bool {
	if cfg.ProxyURL == "" {
		return false
	}
	u, err := url.Parse(cfg.APIURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), PublicHost)
}

// HTTPClient builds the transport for cfg, routing through the proxy when
// the API host is the public domain.
func HTTPClient(cfg Config, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if UsesProxy(cfg) {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse blend proxy url: %w", err)
		}
		tr.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(httpClient *http.Client, cfg Config, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "7.0.0"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{httpClient: httpClient, cfg: cfg, cb: cb, logger: logger}
}

type followupsResponse struct {
	FollowUps []domain.BlendFollowup `json:"followUps"`
}

// ListFollowups returns the follow-ups requested on one Blend application.
func (c *Client) ListFollowups(ctx context.Context, blendApplicationID string) ([]domain.BlendFollowup, error) {
	ctx, span := tracer.Start(ctx, "Blend.ListFollowups")
	defer span.End()
	span.SetAttributes(attribute.String("blend.application_id", blendApplicationID))

	endpoint := fmt.Sprintf("%s/follow-ups?applicationId=%s",
		strings.TrimRight(c.cfg.APIURL, "/"), url.QueryEscape(blendApplicationID))

	result, err := c.cb.Execute(func() (any, error) {
		var out followupsResponse
		err := c.retry(ctx, func() error {
			return c.get(ctx, endpoint, &out)
		})
		if err != nil {
			return nil, err
		}
		return out.FollowUps, nil
	})
	if err != nil {
		var cfgErr *domain.ErrConfiguration
		if errors.As(err, &cfgErr) {
			c.logger.Error("blend rejected credentials, check credentials / account locked",
				zap.Int("status", cfgErr.Status))
			return nil, cfgErr
		}
		if resilience.IsOpen(err) {
			return nil, &domain.ErrCircuitOpen{Service: "blend"}
		}
		return nil, &domain.ErrExternalService{Service: "blend", Err: err}
	}
	return result.([]domain.BlendFollowup), nil
}

// retry re-runs fn on transport errors, sleeping attempt*RetryDelay between
// tries. Errors built from an HTTP response are returned at once.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var httpErr *statusError
		var cfgErr *domain.ErrConfiguration
		if errors.As(err, &httpErr) || errors.As(err, &cfgErr) || ctx.Err() != nil {
			return err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		c.logger.Warn("blend transport error, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.cfg.RetryDelay):
		}
	}
	return err
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("blend API returned status %d: %s", e.Status, e.Body)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	req.Header.Set("blend-api-version", c.cfg.APIVersion)
	if c.cfg.Instance != "" {
		req.Header.Set("blend-target-instance", c.cfg.Instance)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.ErrConfiguration{Service: "blend", Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// BreakerFailure counts transport errors and 5xx responses.
func BreakerFailure(err error) bool {
	var cfgErr *domain.ErrConfiguration
	if errors.As(err, &cfgErr) {
		return false
	}
	var httpErr *statusError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}
	return true
}
