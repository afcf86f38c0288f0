// Package client holds the REST clients for internal microservices: the
// OAuth token endpoint, property data, partner branding, the agent
// directory and SSO.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("client")

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Service, e.Status, e.Body)
}

// BreakerFailure counts transport errors and 5xx responses against the
// breaker; 4xx answers mean the upstream is healthy.
func BreakerFailure(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	var nf *domain.ErrNotFound
	var cfg *domain.ErrConfiguration
	return !errors.As(err, &nf) && !errors.As(err, &cfg)
}

// rest is embedded by every client: one upstream, one breaker, one retry policy.
type rest struct {
	service    string
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

func newRest(service string, httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) rest {
	return rest{
		service:    service,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// call sends a JSON request through the breaker with retries and decodes
// the response into out when out is non-nil. 404 becomes ErrNotFound, 401
// and 403 become ErrConfiguration; other 4xx are not retried.
func (r *rest) call(ctx context.Context, method, path string, in, out any, header http.Header) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal %s request: %w", r.service, err)
		}
	}

	_, err := r.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, r.cfg, func() error {
			return r.do(ctx, method, path, body, out, header)
		})
	})
	return err
}

func (r *rest) do(ctx context.Context, method, path string, body []byte, out any, header http.Header) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: r.service, ID: path})
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resilience.Permanent(&domain.ErrConfiguration{Service: r.service, Status: resp.StatusCode})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		se := &StatusError{Service: r.service, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode >= 500 {
			return se
		}
		return resilience.Permanent(se)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("decode %s response: %w", r.service, err))
	}
	return nil
}

// wrap leaves not-found and configuration errors intact and wraps the rest
// as an external-service failure.
func (r *rest) wrap(err error) error {
	if err == nil {
		return nil
	}
	var nf *domain.ErrNotFound
	var cfg *domain.ErrConfiguration
	switch {
	case errors.As(err, &nf):
		return nf
	case errors.As(err, &cfg):
		return cfg
	case resilience.IsOpen(err):
		return &domain.ErrCircuitOpen{Service: r.service}
	}
	return &domain.ErrExternalService{Service: r.service, Err: err}
}
