package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AgentService manages agents, brokerages and the agent-facing proxies to
// the agent directory and SSO.
type AgentService struct {
	store         port.Store
	outbox        *Outbox
	directory     port.AgentDirectory
	sso           port.SSO
	onboardingURL string
	logger        *zap.Logger
}

func NewAgentService(store port.Store, outbox *Outbox, directory port.AgentDirectory, sso port.SSO, onboardingURL string, logger *zap.Logger) *AgentService {
	return &AgentService{
		store:         store,
		outbox:        outbox,
		directory:     directory,
		sso:           sso,
		onboardingURL: onboardingURL,
		logger:        logger,
	}
}

// AgentInput is the body of agent create and patch.
type AgentInput struct {
	Name         *string    `json:"name"`
	Email        *string    `json:"email" validate:"omitempty,email"`
	Phone        *string    `json:"phone"`
	Company      *string    `json:"company"`
	IsCertified  *bool      `json:"is_certified"`
	SalesforceID *string    `json:"salesforce_id"`
	BrokerageID  *uuid.UUID `json:"brokerage_id"`
}

func (in *AgentInput) apply(a *domain.Agent) {
	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.Email != nil {
		a.Email = *in.Email
	}
	if in.Phone != nil {
		a.Phone = *in.Phone
	}
	if in.Company != nil {
		a.Company = *in.Company
	}
	if in.IsCertified != nil {
		a.IsCertified = *in.IsCertified
	}
	if in.SalesforceID != nil && a.SalesforceID == "" {
		a.SalesforceID = strings.TrimSpace(*in.SalesforceID)
	}
	if in.BrokerageID != nil {
		a.BrokerageID = in.BrokerageID
	}
}

func (s *AgentService) Create(ctx context.Context, in *AgentInput) (*domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "AgentService.Create")
	defer span.End()

	a := &domain.Agent{}
	in.apply(a)
	if a.Name == "" {
		return nil, domain.NewValidationError("name", "required")
	}
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AgentService) Patch(ctx context.Context, id uuid.UUID, in *AgentInput) (*domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "AgentService.Patch")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", id.String()))

	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(a)
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// save normalizes and validates a, then persists and queues it for the CRM
// in one transaction.
func (s *AgentService) save(ctx context.Context, a *domain.Agent) error {
	a.Normalize()
	if err := a.ValidateCertified(); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx port.Store) error {
		if a.IsCertified {
			conflicts, err := tx.FindCertifiedAgentConflicts(ctx, a)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return certifiedConflict(a, conflicts)
			}
		}
		if err := tx.SaveAgent(ctx, a); err != nil {
			return err
		}
		return s.outbox.Publish(ctx, tx, domain.KindAgent, a.ID)
	})
}

func certifiedConflict(a *domain.Agent, others []domain.Agent) error {
	fields := map[string]string{}
	for _, o := range others {
		if o.Email == a.Email {
			fields["email"] = "already used by another certified agent"
		}
		if o.Phone == a.Phone {
			fields["phone"] = "already used by another certified agent"
		}
		if o.SalesforceID == a.SalesforceID {
			fields["salesforce_id"] = "already used by another certified agent"
		}
	}
	return &domain.ErrValidation{Field: "agent", Message: "certified agent is not unique", Fields: fields}
}

// Lookup finds an agent by email or phone. It returns nil, nil on no match.
func (s *AgentService) Lookup(ctx context.Context, email, phone string) (*domain.Agent, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = domain.NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, domain.NewValidationError("email", "email or phone is required")
	}
	agents, err := s.store.FindAgents(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, nil
	}
	return &agents[0], nil
}

// OnboardingURL is where a certified agent is sent to finish onboarding.
func (s *AgentService) OnboardingURL(ctx context.Context, id uuid.UUID) (string, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return "", err
	}
	if !a.IsCertified {
		return "", &domain.ErrNotFound{Resource: "certified agent", ID: id.String()}
	}
	u, err := url.Parse(s.onboardingURL)
	if err != nil {
		return "", fmt.Errorf("invalid onboarding url: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", a.ID.String())
	q.Set("email", a.Email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ============================================================
// Proxies
// ============================================================

func (s *AgentService) SearchDirectory(ctx context.Context, query string) ([]domain.DirectoryAgent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError("search", "required")
	}
	return s.directory.SearchAgents(ctx, query)
}

func (s *AgentService) CreateInDirectory(ctx context.Context, a *domain.DirectoryAgent) (*domain.DirectoryAgent, error) {
	a.Phone = domain.NormalizePhone(a.Phone)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	created, err := s.directory.CreateAgent(ctx, a)
	if err != nil {
		return nil, err
	}
	s.logger.Info("agent created in directory", zap.String("directory_id", created.ID))
	return created, nil
}

// ResendVerifyEmail asks SSO to resend the verification email. SSO outages
// surface as ErrUpstreamUnavailable.
func (s *AgentService) ResendVerifyEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.NewValidationError("email", "required")
	}
	if err := s.sso.ResendVerifyEmail(ctx, email); err != nil {
		s.logger.Warn("resend verify email failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

// ============================================================
// Brokerages
// ============================================================

func (s *AgentService) ListBrokerages(ctx context.Context) ([]domain.Brokerage, error) {
	return s.store.ListBrokerages(ctx)
}

type BrokerageInput struct {
	Name              string `json:"name" validate:"required"`
	PartnershipStatus string `json:"partnership_status"`
	LogoURL           string `json:"logo_url" validate:"omitempty,url"`
}

func (s *AgentService) CreateBrokerage(ctx context.Context, in *BrokerageInput) (*domain.Brokerage, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "required")
	}
	b := &domain.Brokerage{Name: name, PartnershipStatus: in.PartnershipStatus, LogoURL: in.LogoURL}
	err := s.store.WithTx(ctx, func(tx port.Store) error {
		if err := tx.SaveBrokerage(ctx, b); err != nil {
			return err
		}
		return s.outbox.Publish(ctx, tx, domain.KindBrokerage, b.ID)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
