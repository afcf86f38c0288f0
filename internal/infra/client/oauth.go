package client

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig is the internal OAuth service's client-credentials setup.
type OAuthConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewServiceHTTPClient returns a client that attaches a client-credentials
// bearer token to every request. Tokens are cached per process and
// refreshed on expiry. base supplies the underlying transport and timeout.
func NewServiceHTTPClient(ctx context.Context, cfg OAuthConfig, base *http.Client) *http.Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimRight(cfg.BaseURL, "/") + "/oauth/token",
		Scopes:       cfg.Scopes,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	c := cc.Client(ctx)
	c.Timeout = base.Timeout
	return c
}
