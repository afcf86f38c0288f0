package client

import (
	"context"
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// PropertyDataClient reads listings from the property-data aggregator.
type PropertyDataClient struct {
	rest
}

func NewPropertyDataClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *PropertyDataClient {
	return &PropertyDataClient{rest: newRest("property-data", httpClient, baseURL, cb, cfg)}
}

// GetListing fetches one listing by uuid.
func (c *PropertyDataClient) GetListing(ctx context.Context, listingUUID uuid.UUID) (*domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "PropertyDataClient.GetListing")
	defer span.End()
	span.SetAttributes(attribute.String("listing.uuid", listingUUID.String()))

	var listing domain.Listing
	if err := c.call(ctx, http.MethodGet, "/listings/"+listingUUID.String(), nil, &listing, nil); err != nil {
		return nil, c.wrap(err)
	}
	listing.UUID = listingUUID
	return &listing, nil
}
