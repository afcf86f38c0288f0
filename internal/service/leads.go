package service

import (
	"context"
	"errors"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LeadService turns anonymous sign-ups into a customer with an Incomplete
// application.
type LeadService struct {
	store  port.Store
	writer *Writer
	engine *Engine
	logger *zap.Logger
}

func NewLeadService(store port.Store, writer *Writer, engine *Engine, logger *zap.Logger) *LeadService {
	return &LeadService{store: store, writer: writer, engine: engine, logger: logger}
}

type LeadInput struct {
	Email              string          `json:"email" validate:"required,email"`
	Name               string          `json:"name"`
	Phone              string          `json:"phone"`
	ProductOffering    string          `json:"product_offering" validate:"omitempty,oneof=buy-sell buy-only"`
	HomeBuyingLocation *domain.Address `json:"home_buying_location"`
	MinPrice           *float64        `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice           *float64        `json:"max_price" validate:"omitempty,gte=0"`
	PricingID          *uuid.UUID      `json:"pricing_id"`
	ApexPartnerSlug    string          `json:"apex_partner_slug"`
	Context            map[string]any  `json:"context"`
}

// Create finds or creates the customer by email and opens an application.
func (s *LeadService) Create(ctx context.Context, in *LeadInput) (*domain.Application, error) {
	ctx, span := tracer.Start(ctx, "LeadService.Create")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, domain.NewValidationError("email", "required")
	}
	app := &domain.Application{
		Stage:              domain.StageIncomplete,
		ProductOffering:    domain.ProductBuySell,
		LeadStatus:         domain.LeadNew,
		HomeBuyingLocation: in.HomeBuyingLocation,
		MinPrice:           in.MinPrice,
		MaxPrice:           in.MaxPrice,
		ApexPartnerSlug:    strings.TrimSpace(in.ApexPartnerSlug),
		Context:            in.Context,
	}
	if in.ProductOffering != "" {
		po, err := domain.ParseProductOffering(in.ProductOffering)
		if err != nil {
			return nil, err
		}
		app.ProductOffering = po
	}
	if app.MinPrice != nil && app.MaxPrice != nil && *app.MinPrice > *app.MaxPrice {
		return nil, domain.NewValidationError("min_price", "must not exceed max_price")
	}

	err := s.store.WithTx(ctx, func(tx port.Store) error {
		customer, err := s.customer(ctx, tx, email, in)
		if err != nil {
			return err
		}
		app.CustomerID = customer.ID
		if in.PricingID != nil {
			if _, err := tx.GetPricing(ctx, *in.PricingID); err != nil {
				return err
			}
			app.PricingID = in.PricingID
		}
		_, err = s.writer.With(tx).SaveApplication(ctx, app, domain.SourceExternal)
		return err
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, app.ID, domain.SourceExternal); err != nil {
		return nil, err
	}
	s.logger.Info("lead created",
		zap.String("application_id", app.ID.String()),
		zap.String("customer_id", app.CustomerID.String()),
	)
	return s.store.GetApplication(ctx, app.ID)
}

func (s *LeadService) customer(ctx context.Context, tx port.Store, email string, in *LeadInput) (*domain.Customer, error) {
	c, err := tx.GetCustomerByEmail(ctx, email)
	var nf *domain.ErrNotFound
	switch {
	case err == nil:
		return c, nil
	case !errors.As(err, &nf):
		return nil, err
	}
	c = &domain.Customer{
		Email: email,
		Name:  strings.TrimSpace(in.Name),
		Phone: domain.NormalizePhone(in.Phone),
	}
	if err := tx.SaveCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
