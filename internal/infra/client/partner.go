package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/cache"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// PartnerClient fetches partner branding. Configs change rarely and are
// cached per slug.
type PartnerClient struct {
	rest
	cache *cache.InMemory[*domain.PartnerConfig]
}

func NewPartnerClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, c *cache.InMemory[*domain.PartnerConfig]) *PartnerClient {
	return &PartnerClient{rest: newRest("partner", httpClient, baseURL, cb, cfg), cache: c}
}

func (c *PartnerClient) GetPartnerConfig(ctx context.Context, slug string) (*domain.PartnerConfig, error) {
	ctx, span := tracer.Start(ctx, "PartnerClient.GetPartnerConfig")
	defer span.End()
	span.SetAttributes(attribute.String("partner.slug", slug))

	return c.cache.GetOrLoad(ctx, slug, func(ctx context.Context) (*domain.PartnerConfig, error) {
		var pc domain.PartnerConfig
		if err := c.call(ctx, http.MethodGet, "/cms-config/"+url.PathEscape(slug), nil, &pc, nil); err != nil {
			return nil, c.wrap(err)
		}
		if pc.Slug == "" {
			pc.Slug = slug
		}
		return &pc, nil
	})
}
