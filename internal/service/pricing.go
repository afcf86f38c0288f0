package service

import (
	"context"
	"errors"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PricingService computes and stores quotes.
type PricingService struct {
	store  port.Store
	rules  domain.PricingRules
	now    func() time.Time
	logger *zap.Logger
}

func NewPricingService(store port.Store, rules domain.PricingRules, logger *zap.Logger) *PricingService {
	return &PricingService{store: store, rules: rules, now: time.Now, logger: logger}
}

// PricingInput is the quote request.
type PricingInput struct {
	BuyingLocation  *domain.Address `json:"buying_location"`
	SellingLocation *domain.Address `json:"selling_location"`
	MinPrice        *float64        `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice        *float64        `json:"max_price" validate:"omitempty,gte=0"`
	ProductOffering string          `json:"product_offering" validate:"omitempty,oneof=buy-sell buy-only"`
	AgentsCompany   string          `json:"agents_company"`
}

// Create computes a quote. p may be nil for anonymous callers; an agent
// caller is recorded on the quote with their brokerage.
func (s *PricingService) Create(ctx context.Context, p *domain.Principal, in *PricingInput) (*domain.Pricing, error) {
	ctx, span := tracer.Start(ctx, "PricingService.Create")
	defer span.End()

	pr := &domain.Pricing{
		BuyingLocation:  in.BuyingLocation,
		SellingLocation: in.SellingLocation,
		MinPrice:        in.MinPrice,
		MaxPrice:        in.MaxPrice,
		ProductOffering: domain.ProductBuySell,
		AgentsCompany:   in.AgentsCompany,
	}
	if in.ProductOffering != "" {
		po, err := domain.ParseProductOffering(in.ProductOffering)
		if err != nil {
			return nil, err
		}
		pr.ProductOffering = po
	}
	if pr.MinPrice != nil && pr.MaxPrice != nil && *pr.MinPrice > *pr.MaxPrice {
		return nil, domain.NewValidationError("min_price", "must not exceed max_price")
	}
	if p != nil && p.Role == domain.UserAgent && p.AgentID != nil {
		if err := s.attachAgent(ctx, pr, *p.AgentID); err != nil {
			return nil, err
		}
	}

	pr.Calculate(s.rules)
	if err := s.store.SavePricing(ctx, pr); err != nil {
		return nil, err
	}
	s.logger.Info("pricing created",
		zap.String("pricing_id", pr.ID.String()),
		zap.Bool("calculated", pr.CanCalculate()),
	)
	return pr, nil
}

func (s *PricingService) attachAgent(ctx context.Context, pr *domain.Pricing, agentID uuid.UUID) error {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	pr.AgentID = &agent.ID
	if agent.BrokerageID == nil {
		return nil
	}
	b, err := s.store.GetBrokerage(ctx, *agent.BrokerageID)
	var nf *domain.ErrNotFound
	switch {
	case errors.As(err, &nf):
		return nil
	case err != nil:
		return err
	}
	pr.AgentBrokerageName = b.Name
	return nil
}

func (s *PricingService) Get(ctx context.Context, id uuid.UUID) (*domain.Pricing, error) {
	return s.store.GetPricing(ctx, id)
}

// AddAction records that a quote was saved or shared.
func (s *PricingService) AddAction(ctx context.Context, id uuid.UUID, action string) (*domain.Pricing, error) {
	ctx, span := tracer.Start(ctx, "PricingService.AddAction")
	defer span.End()

	var out *domain.Pricing
	err := s.store.WithTx(ctx, func(tx port.Store) error {
		pr, err := tx.GetPricing(ctx, id)
		if err != nil {
			return err
		}
		if err := pr.AddAction(domain.PricingAction(action), s.now()); err != nil {
			return err
		}
		out = pr
		return tx.SavePricing(ctx, pr)
	})
	return out, err
}

// ListByAgent returns the quotes an agent created.
func (s *PricingService) ListByAgent(ctx context.Context, p *domain.Principal) ([]domain.Pricing, error) {
	if p.Role != domain.UserAgent || p.AgentID == nil {
		return nil, &domain.ErrForbidden{Action: "list agent quotes"}
	}
	return s.store.ListPricingsByAgent(ctx, *p.AgentID)
}
