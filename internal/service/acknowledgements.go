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

// AcknowledgementAssigner keeps the disclosures an application must
// acknowledge in line with its buying state, selling state, product and
// buying-agent brokerage.
type AcknowledgementAssigner struct {
	store  port.Store
	writer *Writer
	logger *zap.Logger
}

func NewAcknowledgementAssigner(store port.Store, writer *Writer, logger *zap.Logger) *AcknowledgementAssigner {
	return &AcknowledgementAssigner{store: store, writer: writer, logger: logger}
}

// With binds the assigner to tx.
func (a *AcknowledgementAssigner) With(tx port.Store) *AcknowledgementAssigner {
	return &AcknowledgementAssigner{store: tx, writer: a.writer.With(tx), logger: a.logger}
}

// Selection is the set of disclosures an application needs.
type Selection struct {
	ServiceAgreement *domain.Disclosure
	Titles           []domain.Disclosure
	Mortgage         *domain.Disclosure
	EConsent         *domain.Disclosure
}

// All flattens the selection.
func (s Selection) All() []domain.Disclosure {
	var out []domain.Disclosure
	if s.ServiceAgreement != nil {
		out = append(out, *s.ServiceAgreement)
	}
	out = append(out, s.Titles...)
	if s.Mortgage != nil {
		out = append(out, *s.Mortgage)
	}
	if s.EConsent != nil {
		out = append(out, *s.EConsent)
	}
	return out
}

// Select picks the disclosures for app among the active ones.
func (a *AcknowledgementAssigner) Select(ctx context.Context, app *domain.Application) (Selection, error) {
	active, err := a.store.ListActiveDisclosures(ctx)
	if err != nil {
		return Selection{}, err
	}
	buying := app.BuyingState()
	selling, err := a.sellingState(ctx, app)
	if err != nil {
		return Selection{}, err
	}
	brokerage, err := a.buyingAgentBrokerage(ctx, app)
	if err != nil {
		return Selection{}, err
	}

	log := a.logger.With(zap.String("application_id", app.ID.String()))
	if buying == "" {
		log.Warn("application has no buying state, state disclosures skipped")
	}

	var sel Selection
	for i := range active {
		d := active[i]
		if d.ProductOffering != "" && d.ProductOffering != app.ProductOffering {
			continue
		}
		switch d.Type {
		case domain.DisclosureServiceAgreement:
			if d.BuyingState != "" && d.BuyingState != buying {
				continue
			}
			if d.BuyingAgentBrokerageID != nil && (brokerage == nil || *d.BuyingAgentBrokerageID != *brokerage) {
				continue
			}
			// Brokerage-specific agreements win over generic ones.
			if sel.ServiceAgreement == nil || (sel.ServiceAgreement.BuyingAgentBrokerageID == nil && d.BuyingAgentBrokerageID != nil) {
				sel.ServiceAgreement = &d
			}
		case domain.DisclosureTitle:
			if (buying != "" && d.BuyingState == buying) || (selling != "" && d.SellingState == selling) {
				sel.Titles = append(sel.Titles, d)
			}
		case domain.DisclosureMortgage:
			if buying != "" && d.BuyingState == buying && sel.Mortgage == nil {
				sel.Mortgage = &d
			}
		case domain.DisclosureEConsent:
			if sel.EConsent == nil {
				sel.EConsent = &d
			}
		}
	}

	if sel.ServiceAgreement == nil {
		log.Warn("no service agreement disclosure matches", zap.String("buying_state", buying))
	}
	if buying != "" && sel.Mortgage == nil {
		log.Warn("no mortgage disclosure for state", zap.String("buying_state", buying))
	}
	if sel.EConsent == nil {
		log.Warn("no active e-consent disclosure")
	}
	return sel, nil
}

func (a *AcknowledgementAssigner) sellingState(ctx context.Context, app *domain.Application) (string, error) {
	if app.CurrentHomeID == nil {
		return "", nil
	}
	home, err := a.store.GetCurrentHome(ctx, *app.CurrentHomeID)
	var nf *domain.ErrNotFound
	switch {
	case errors.As(err, &nf):
		return "", nil
	case err != nil:
		return "", err
	}
	return domain.StateOf(&home.Address), nil
}

func (a *AcknowledgementAssigner) buyingAgentBrokerage(ctx context.Context, app *domain.Application) (*uuid.UUID, error) {
	if app.BuyingAgentID == nil {
		return nil, nil
	}
	agent, err := a.store.GetAgent(ctx, *app.BuyingAgentID)
	var nf *domain.ErrNotFound
	switch {
	case errors.As(err, &nf):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return agent.BrokerageID, nil
}

// Assign creates the missing acknowledgements and deletes unacknowledged
// ones that no longer apply. Acknowledged rows are kept.
func (a *AcknowledgementAssigner) Assign(ctx context.Context, app *domain.Application, src domain.WriteSource) error {
	ctx, span := tracer.Start(ctx, "AcknowledgementAssigner.Assign")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", app.ID.String()))

	sel, err := a.Select(ctx, app)
	if err != nil {
		return err
	}
	existing, err := a.store.ListAcknowledgements(ctx, app.ID)
	if err != nil {
		return err
	}

	wanted := map[uuid.UUID]bool{}
	for _, d := range sel.All() {
		wanted[d.ID] = true
	}
	have := map[uuid.UUID]bool{}
	for _, ack := range existing {
		have[ack.DisclosureID] = true
		if !wanted[ack.DisclosureID] && !ack.IsAcknowledged {
			if err := a.store.DeleteAcknowledgement(ctx, ack.ID); err != nil {
				return fmt.Errorf("delete acknowledgement %s: %w", ack.ID, err)
			}
		}
	}
	for _, d := range sel.All() {
		if have[d.ID] {
			continue
		}
		ack := &domain.Acknowledgement{ApplicationID: app.ID, DisclosureID: d.ID}
		if _, err := a.writer.SaveAcknowledgement(ctx, ack, src); err != nil {
			return fmt.Errorf("create acknowledgement for %s: %w", d.Name, err)
		}
	}
	return nil
}

// ReassignServiceAgreement replaces every service-agreement acknowledgement
// of app with a fresh, unacknowledged one.
func (a *AcknowledgementAssigner) ReassignServiceAgreement(ctx context.Context, app *domain.Application, src domain.WriteSource) error {
	ctx, span := tracer.Start(ctx, "AcknowledgementAssigner.ReassignServiceAgreement")
	defer span.End()

	existing, err := a.store.ListAcknowledgements(ctx, app.ID)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(existing))
	for _, ack := range existing {
		ids = append(ids, ack.DisclosureID)
	}
	disclosures, err := a.store.GetDisclosuresByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, ack := range existing {
		if disclosures[ack.DisclosureID].Type != domain.DisclosureServiceAgreement {
			continue
		}
		if err := a.store.DeleteAcknowledgement(ctx, ack.ID); err != nil {
			return fmt.Errorf("delete acknowledgement %s: %w", ack.ID, err)
		}
	}

	sel, err := a.Select(ctx, app)
	if err != nil {
		return err
	}
	if sel.ServiceAgreement == nil {
		return nil
	}
	ack := &domain.Acknowledgement{ApplicationID: app.ID, DisclosureID: sel.ServiceAgreement.ID}
	if _, err := a.writer.SaveAcknowledgement(ctx, ack, src); err != nil {
		return err
	}
	a.logger.Info("service agreement reassigned",
		zap.String("application_id", app.ID.String()),
		zap.String("disclosure_id", sel.ServiceAgreement.ID.String()),
	)
	return nil
}

// ActiveAcknowledgements returns the acknowledgements of app whose
// disclosure is still active, with the disclosures keyed by id.
func ActiveAcknowledgements(ctx context.Context, s port.Store, appID uuid.UUID) ([]domain.Acknowledgement, map[uuid.UUID]domain.Disclosure, error) {
	acks, err := s.ListAcknowledgements(ctx, appID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, 0, len(acks))
	for _, ack := range acks {
		ids = append(ids, ack.DisclosureID)
	}
	disclosures, err := s.GetDisclosuresByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	active := acks[:0]
	for _, ack := range acks {
		if d, ok := disclosures[ack.DisclosureID]; ok && d.Active {
			active = append(active, ack)
		}
	}
	return active, disclosures, nil
}
