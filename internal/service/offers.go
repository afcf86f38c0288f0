package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OfferRules are the feature flags offer writes depend on.
type OfferRules struct {
	ValidatePreferredClosingDate bool
}

// OfferService handles offer writes: listing enrichment, closing-date
// validation and synchronous CRM publication.
type OfferService struct {
	store     port.Store
	writer    *Writer
	crm       CRMPublisher
	outbox    *Outbox
	listings  port.PropertyData
	capacity  *CapacityCalculator
	contracts *ContractService
	rules     OfferRules
	logger    *zap.Logger
}

func NewOfferService(
	store port.Store,
	writer *Writer,
	crm CRMPublisher,
	outbox *Outbox,
	listings port.PropertyData,
	capacity *CapacityCalculator,
	contracts *ContractService,
	rules OfferRules,
	logger *zap.Logger,
) *OfferService {
	return &OfferService{
		store:     store,
		writer:    writer,
		crm:       crm,
		outbox:    outbox,
		listings:  listings,
		capacity:  capacity,
		contracts: contracts,
		rules:     rules,
		logger:    logger,
	}
}

// OfferInput is the body of offer create and patch.
type OfferInput struct {
	ApplicationID        *uuid.UUID            `json:"application_id"`
	Address              *domain.Address       `json:"address"`
	Price                Optional[float64]     `json:"price"`
	ContractType         *string               `json:"contract_type"`
	PropertyType         *string               `json:"property_type"`
	FundingType          *string               `json:"funding_type"`
	ContractDate         Optional[domain.Date] `json:"contract_date"`
	OptionPeriodEndDate  Optional[domain.Date] `json:"option_period_end_date"`
	ClosingDate          Optional[domain.Date] `json:"closing_date"`
	PreferredClosingDate Optional[domain.Date] `json:"preferred_closing_date"`
	Status               *string               `json:"status"`
	PDAListingUUID       Optional[uuid.UUID]   `json:"pda_listing_uuid"`
}

func (in *OfferInput) apply(o *domain.Offer) error {
	if in.Status != nil {
		st, err := domain.ParseOfferStatus(*in.Status)
		if err != nil {
			return err
		}
		o.Status = st
	}
	if in.Address != nil {
		o.Address = *in.Address
	}
	if in.ContractType != nil {
		o.ContractType = *in.ContractType
	}
	if in.PropertyType != nil {
		o.PropertyType = *in.PropertyType
	}
	if in.FundingType != nil {
		o.FundingType = *in.FundingType
	}
	in.Price.Apply(&o.Price)
	in.ContractDate.Apply(&o.ContractDate)
	in.OptionPeriodEndDate.Apply(&o.OptionPeriodEndDate)
	in.ClosingDate.Apply(&o.ClosingDate)
	in.PreferredClosingDate.Apply(&o.PreferredClosingDate)
	in.PDAListingUUID.Apply(&o.PDAListingUUID)
	return nil
}

func (s *OfferService) Get(ctx context.Context, p *domain.Principal, id uuid.UUID) (*domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "OfferService.Get")
	defer span.End()

	offer, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeApplication(ctx, s.store, p, offer.ApplicationID); err != nil {
		return nil, &domain.ErrNotFound{Resource: "offer", ID: id.String()}
	}
	return offer, nil
}

func (s *OfferService) Create(ctx context.Context, p *domain.Principal, in *OfferInput) (*domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "OfferService.Create")
	defer span.End()

	if in.ApplicationID == nil {
		return nil, domain.NewValidationError("application_id", "required")
	}
	if _, err := authorizeApplication(ctx, s.store, p, *in.ApplicationID); err != nil {
		return nil, err
	}
	offer := &domain.Offer{ApplicationID: *in.ApplicationID, Status: domain.OfferIncomplete}
	if err := in.apply(offer); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, nil, offer, domain.SourceExternal); err != nil {
		return nil, err
	}
	return offer, nil
}

func (s *OfferService) Patch(ctx context.Context, p *domain.Principal, id uuid.UUID, in *OfferInput) (*domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "OfferService.Patch")
	defer span.End()
	span.SetAttributes(attribute.String("offer.id", id.String()))

	before, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	offer := *before
	if err := in.apply(&offer); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, before, &offer, domain.SourceExternal); err != nil {
		return nil, err
	}
	return &offer, nil
}

// Save validates, enriches and writes offer, then publishes it when its
// status just left Incomplete. before is nil on create.
func (s *OfferService) Save(ctx context.Context, before, offer *domain.Offer, src domain.WriteSource) error {
	if err := s.validateClosingDate(ctx, before, offer); err != nil {
		return err
	}
	s.enrich(ctx, before, offer)

	if _, err := s.writer.SaveOffer(ctx, offer, src); err != nil {
		return err
	}
	leftIncomplete := (before == nil || before.Status == domain.OfferIncomplete) && offer.Status != domain.OfferIncomplete
	if !leftIncomplete || src == domain.SourceCRMSync {
		return nil
	}
	s.publish(ctx, offer)
	return nil
}

// publish upserts synchronously; on failure the upsert is queued with
// retries instead.
func (s *OfferService) publish(ctx context.Context, offer *domain.Offer) {
	log := s.logger.With(zap.String("offer_id", offer.ID.String()))
	sfid, err := s.crm.Upsert(ctx, domain.KindOffer, offer.ID)
	if err == nil {
		offer.SalesforceID = sfid
		log.Info("offer published", zap.String("salesforce_id", sfid))
		return
	}
	log.Warn("offer publication failed, queued for retry", zap.Error(err))
	qerr := s.store.WithTx(ctx, func(tx port.Store) error {
		return s.outbox.Publish(ctx, tx, domain.KindOffer, offer.ID)
	})
	if qerr != nil {
		log.Error("queue offer publication failed", zap.Error(qerr))
	}
}

func (s *OfferService) validateClosingDate(ctx context.Context, before, offer *domain.Offer) error {
	if !s.rules.ValidatePreferredClosingDate || s.capacity == nil || offer.PreferredClosingDate == nil {
		return nil
	}
	if before != nil && before.PreferredClosingDate != nil && before.PreferredClosingDate.Equal(offer.PreferredClosingDate.Time) {
		return nil
	}
	restricted, reason, err := s.capacity.IsRestricted(ctx, *offer.PreferredClosingDate)
	if err != nil {
		return err
	}
	if restricted {
		return domain.NewValidationError("preferred_closing_date", fmt.Sprintf("%s is not available (%s)", offer.PreferredClosingDate, reason))
	}
	return nil
}

// enrich copies listing data for a new listing uuid and wipes it when the
// uuid is cleared. Lookup failures leave the offer untouched.
func (s *OfferService) enrich(ctx context.Context, before, offer *domain.Offer) {
	var prev *uuid.UUID
	if before != nil {
		prev = before.PDAListingUUID
	}
	cur := offer.PDAListingUUID
	switch {
	case cur == nil && prev != nil:
		offer.ClearListing()
	case cur != nil && (prev == nil || *prev != *cur):
		if s.listings == nil {
			return
		}
		listing, err := s.listings.GetListing(ctx, *cur)
		if err != nil {
			s.logger.Warn("listing enrichment failed",
				zap.String("offer_id", offer.ID.String()),
				zap.String("pda_listing_uuid", cur.String()),
				zap.Error(err),
			)
			return
		}
		offer.ApplyListing(listing)
	}
}

// Contract returns a link to a freshly generated contract PDF.
func (s *OfferService) Contract(ctx context.Context, p *domain.Principal, id uuid.UUID) (*domain.ContractResult, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	if s.contracts == nil {
		return nil, errors.New("contract generation is not configured")
	}
	return s.contracts.Request(ctx, id)
}

// RestrictedClosingDates lists the dates an offer cannot close on.
func (s *OfferService) RestrictedClosingDates(ctx context.Context, from, to domain.Date) ([]RestrictedDate, error) {
	return s.capacity.RestrictedClosingDates(ctx, from, to)
}
