package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// AgentDirectoryClient calls the internal agent service.
type AgentDirectoryClient struct {
	rest
}

func NewAgentDirectoryClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AgentDirectoryClient {
	return &AgentDirectoryClient{rest: newRest("agent-service", httpClient, baseURL, cb, cfg)}
}

// SearchAgents matches agents by name, email or phone.
func (c *AgentDirectoryClient) SearchAgents(ctx context.Context, query string) ([]domain.DirectoryAgent, error) {
	ctx, span := tracer.Start(ctx, "AgentDirectoryClient.SearchAgents")
	defer span.End()

	var resp struct {
		Results []domain.DirectoryAgent `json:"results"`
	}
	if err := c.call(ctx, http.MethodGet, "/agents?search="+url.QueryEscape(query), nil, &resp, nil); err != nil {
		return nil, c.wrap(err)
	}
	return resp.Results, nil
}

func (c *AgentDirectoryClient) CreateAgent(ctx context.Context, a *domain.DirectoryAgent) (*domain.DirectoryAgent, error) {
	ctx, span := tracer.Start(ctx, "AgentDirectoryClient.CreateAgent")
	defer span.End()

	var out domain.DirectoryAgent
	if err := c.call(ctx, http.MethodPost, "/agents", a, &out, nil); err != nil {
		return nil, c.wrap(err)
	}
	return &out, nil
}

func (c *AgentDirectoryClient) UpdateAgent(ctx context.Context, id string, a *domain.DirectoryAgent) (*domain.DirectoryAgent, error) {
	ctx, span := tracer.Start(ctx, "AgentDirectoryClient.UpdateAgent")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", id))

	var out domain.DirectoryAgent
	if err := c.call(ctx, http.MethodPatch, "/agents/"+url.PathEscape(id), a, &out, nil); err != nil {
		return nil, c.wrap(err)
	}
	return &out, nil
}
