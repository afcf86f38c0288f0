package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// SSOClient manages users in the SSO directory with a service token.
type SSOClient struct {
	rest
	token  string
	logger *zap.Logger
}

func NewSSOClient(httpClient *http.Client, baseURL, serviceToken string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *SSOClient {
	return &SSOClient{rest: newRest("sso", httpClient, baseURL, cb, cfg), token: serviceToken, logger: logger}
}

func (c *SSOClient) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "SSWS "+c.token)
	return h
}

func (c *SSOClient) CreateUser(ctx context.Context, u *domain.SSOUser) (*domain.SSOUser, error) {
	ctx, span := tracer.Start(ctx, "SSOClient.CreateUser")
	defer span.End()

	var out domain.SSOUser
	if err := c.call(ctx, http.MethodPost, "/users?activate=true", u, &out, c.header()); err != nil {
		return nil, c.classify(err)
	}
	return &out, nil
}

func (c *SSOClient) AddToGroups(ctx context.Context, userID string, groups []string) error {
	ctx, span := tracer.Start(ctx, "SSOClient.AddToGroups")
	defer span.End()

	for _, g := range groups {
		path := "/groups/" + url.PathEscape(g) + "/users/" + url.PathEscape(userID)
		if err := c.call(ctx, http.MethodPut, path, nil, nil, c.header()); err != nil {
			return c.classify(err)
		}
	}
	return nil
}

func (c *SSOClient) ResendVerifyEmail(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "SSOClient.ResendVerifyEmail")
	defer span.End()

	body := map[string]string{"email": email}
	if err := c.call(ctx, http.MethodPost, "/users/resend-verify-email", body, nil, c.header()); err != nil {
		return c.classify(err)
	}
	return nil
}

// classify turns transport failures into ErrUpstreamUnavailable (503) and
// logs rejected service tokens.
func (c *SSOClient) classify(err error) error {
	var cfg *domain.ErrConfiguration
	var se *StatusError
	var nf *domain.ErrNotFound
	switch {
	case errors.As(err, &cfg):
		c.logger.Error("sso rejected service token: check credentials / account locked", zap.Int("status", cfg.Status))
		return cfg
	case errors.As(err, &nf):
		return nf
	case errors.As(err, &se) && se.Status < 500:
		return &domain.ErrExternalService{Service: "sso", Err: err}
	}
	return &domain.ErrUpstreamUnavailable{Service: "sso", Err: err}
}
