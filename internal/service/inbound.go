package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/salesforce"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InboundSync applies CRM webhooks to the store. Every write it makes is
// tagged CRMSync so nothing is published back.
type InboundSync struct {
	store  port.Store
	writer *Writer
	engine *Engine
	outbox *Outbox
	logger *zap.Logger
}

func NewInboundSync(store port.Store, writer *Writer, engine *Engine, outbox *Outbox, logger *zap.Logger) *InboundSync {
	return &InboundSync{store: store, writer: writer, engine: engine, outbox: outbox, logger: logger}
}

// AcceptResult reports how a webhook body was queued.
type AcceptResult struct {
	Queued int      `json:"queued"`
	Jobs   []string `json:"jobs"`
}

// Accept splits a single object or list body and queues one crm_inbound job
// per element. Elements are queued independently.
func (s *InboundSync) Accept(ctx context.Context, kind domain.InboundKind, body []byte) (*AcceptResult, error) {
	ctx, span := tracer.Start(ctx, "InboundSync.Accept")
	defer span.End()
	span.SetAttributes(attribute.String("inbound.kind", string(kind)))

	elements, err := salesforce.SplitPayload(body)
	if err != nil {
		return nil, err
	}
	res := &AcceptResult{Jobs: make([]string, 0, len(elements))}
	for i, el := range elements {
		var job *domain.Job
		err := s.store.WithTx(ctx, func(tx port.Store) error {
			var err error
			job, err = s.outbox.Inbound(ctx, tx, domain.InboundPayload{Kind: kind, Body: el})
			return err
		})
		if err != nil {
			s.logger.Error("queue inbound element failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		res.Queued++
		res.Jobs = append(res.Jobs, job.ID.String())
	}
	if res.Queued == 0 && len(elements) > 0 {
		return nil, fmt.Errorf("no inbound element could be queued")
	}
	return res, nil
}

// Apply runs one queued webhook element.
func (s *InboundSync) Apply(ctx context.Context, p domain.InboundPayload) error {
	ctx, span := tracer.Start(ctx, "InboundSync.Apply")
	defer span.End()
	span.SetAttributes(attribute.String("inbound.kind", string(p.Kind)))

	switch p.Kind {
	case domain.InboundApplication:
		var body salesforce.ApplicationPayload
		if err := decodeInbound(p.Body, &body); err != nil {
			return err
		}
		return s.application(ctx, &body)
	case domain.InboundLoan:
		var body salesforce.LoanPayload
		if err := decodeInbound(p.Body, &body); err != nil {
			return err
		}
		return s.loan(ctx, &body)
	case domain.InboundOffer:
		var body salesforce.OfferPayload
		if err := decodeInbound(p.Body, &body); err != nil {
			return err
		}
		return s.offer(ctx, &body)
	case domain.InboundNewHomePurchase:
		var body salesforce.NewHomePurchasePayload
		if err := decodeInbound(p.Body, &body); err != nil {
			return err
		}
		return s.newHomePurchase(ctx, &body)
	}
	return domain.NewValidationError("kind", fmt.Sprintf("unknown inbound kind %q", p.Kind))
}

func decodeInbound(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		var verr *domain.ErrValidation
		if errors.As(err, &verr) {
			return verr
		}
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

func (s *InboundSync) application(ctx context.Context, p *salesforce.ApplicationPayload) error {
	var appID uuid.UUID
	err := s.store.WithTx(ctx, func(tx port.Store) error {
		app, err := findBy(ctx, p.LocalID, tx.GetApplication, p.ID, tx.GetApplicationBySalesforceID)
		if err != nil {
			return err
		}
		if err := salesforce.ApplyApplicationPayload(app, p); err != nil {
			return err
		}
		if err := s.applySupportUsers(ctx, tx, app, p); err != nil {
			return err
		}
		if err := s.applyCustomer(ctx, tx, app.CustomerID, p); err != nil {
			return err
		}
		if _, err := s.writer.With(tx).SaveApplication(ctx, app, domain.SourceCRMSync); err != nil {
			return err
		}
		appID = app.ID
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := s.engine.Run(ctx, appID, domain.SourceCRMSync); err != nil {
		return fmt.Errorf("run task engine: %w", err)
	}
	s.logger.Info("application synced from crm", zap.String("application_id", appID.String()), zap.String("salesforce_id", p.ID))
	return nil
}

func (s *InboundSync) applySupportUsers(ctx context.Context, tx port.Store, app *domain.Application, p *salesforce.ApplicationPayload) error {
	for _, ref := range []struct {
		email string
		dst   **uuid.UUID
	}{
		{p.CXManagerEmail, &app.CXManagerID},
		{p.LoanAdvisorEmail, &app.LoanAdvisorID},
		{p.ApprovalSpecialistEmail, &app.ApprovalSpecialistID},
	} {
		if ref.email == "" {
			continue
		}
		u, err := tx.GetSupportUserByEmail(ctx, strings.ToLower(ref.email))
		var nf *domain.ErrNotFound
		switch {
		case errors.As(err, &nf):
			s.logger.Warn("support user unknown", zap.String("email", ref.email))
			continue
		case err != nil:
			return err
		}
		id := u.ID
		*ref.dst = &id
	}
	return nil
}

func (s *InboundSync) applyCustomer(ctx context.Context, tx port.Store, customerID uuid.UUID, p *salesforce.ApplicationPayload) error {
	if p.FirstName == "" && p.LastName == "" && p.Phone == "" {
		return nil
	}
	c, err := tx.GetCustomer(ctx, customerID)
	if err := ignoreNotFound(err); err != nil || c == nil {
		return err
	}
	if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
		c.Name = name
	}
	if p.Phone != "" {
		c.Phone = p.Phone
	}
	return tx.SaveCustomer(ctx, c)
}

func (s *InboundSync) loan(ctx context.Context, p *salesforce.LoanPayload) error {
	var appID uuid.UUID
	err := s.store.WithTx(ctx, func(tx port.Store) error {
		app, err := findBy(ctx, p.LocalApplicationID, tx.GetApplication, p.ApplicationSFID, tx.GetApplicationBySalesforceID)
		if err != nil {
			return err
		}
		loan, err := tx.GetLoanByBlendID(ctx, p.BlendLoanID)
		var nf *domain.ErrNotFound
		switch {
		case p.BlendLoanID == "" || errors.As(err, &nf):
			loan = &domain.Loan{ApplicationID: app.ID}
		case err != nil:
			return err
		}
		if err := salesforce.ApplyLoanPayload(loan, p); err != nil {
			return err
		}
		loan.SyncState = domain.SyncPublished
		appID = app.ID
		return tx.SaveLoan(ctx, loan)
	})
	if err != nil {
		return err
	}
	_, err = s.engine.Run(ctx, appID, domain.SourceCRMSync)
	return err
}

func (s *InboundSync) offer(ctx context.Context, p *salesforce.OfferPayload) error {
	return s.store.WithTx(ctx, func(tx port.Store) error {
		offer, err := findBy(ctx, p.LocalID, tx.GetOffer, p.ID, tx.GetOfferBySalesforceID)
		if err != nil {
			return err
		}
		if err := salesforce.ApplyOfferPayload(offer, p); err != nil {
			return err
		}
		_, err = s.writer.With(tx).SaveOffer(ctx, offer, domain.SourceCRMSync)
		return err
	})
}

func (s *InboundSync) newHomePurchase(ctx context.Context, p *salesforce.NewHomePurchasePayload) error {
	return s.store.WithTx(ctx, func(tx port.Store) error {
		nhp, err := findBy(ctx, p.LocalID, tx.GetNewHomePurchase, p.ID, tx.GetNewHomePurchaseBySalesforceID)
		var nf *domain.ErrNotFound
		switch {
		case errors.As(err, &nf):
			if nhp, err = s.newPurchaseFor(ctx, tx, p); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		if err := salesforce.ApplyNewHomePurchasePayload(nhp, p); err != nil {
			return err
		}
		if err := tx.SaveNewHomePurchase(ctx, nhp); err != nil {
			return err
		}
		return s.linkPurchase(ctx, tx, nhp)
	})
}

// newPurchaseFor starts a purchase for the application (and offer) the CRM
// record points to.
func (s *InboundSync) newPurchaseFor(ctx context.Context, tx port.Store, p *salesforce.NewHomePurchasePayload) (*domain.NewHomePurchase, error) {
	if p.ApplicationSFID == "" {
		return nil, domain.NewValidationError("Application__c", "required for a new purchase")
	}
	app, err := tx.GetApplicationBySalesforceID(ctx, p.ApplicationSFID)
	if err != nil {
		return nil, err
	}
	nhp := &domain.NewHomePurchase{ApplicationID: app.ID}
	nhp.SalesforceID = p.ID
	nhp.SyncState = domain.SyncPublished
	if p.OfferSFID != "" {
		offer, err := tx.GetOfferBySalesforceID(ctx, p.OfferSFID)
		if err := ignoreNotFound(err); err != nil {
			return nil, err
		}
		if offer != nil {
			nhp.OfferID = &offer.ID
		}
	}
	return nhp, nil
}

func (s *InboundSync) linkPurchase(ctx context.Context, tx port.Store, nhp *domain.NewHomePurchase) error {
	w := s.writer.With(tx)
	app, err := tx.GetApplication(ctx, nhp.ApplicationID)
	if err != nil {
		return err
	}
	if app.NewHomePurchaseID == nil {
		app.NewHomePurchaseID = &nhp.ID
		if _, err := w.SaveApplication(ctx, app, domain.SourceCRMSync); err != nil {
			return err
		}
	}
	if nhp.OfferID == nil {
		return nil
	}
	offer, err := tx.GetOffer(ctx, *nhp.OfferID)
	if err := ignoreNotFound(err); err != nil || offer == nil {
		return err
	}
	if offer.NewHomePurchaseID == nil {
		offer.NewHomePurchaseID = &nhp.ID
		_, err = w.SaveOffer(ctx, offer, domain.SourceCRMSync)
	}
	return err
}

// findBy loads a record by the local id the CRM echoes back, falling back
// to its CRM id.
func findBy[T any](
	ctx context.Context,
	localID func() (uuid.UUID, bool),
	byID func(context.Context, uuid.UUID) (*T, error),
	sfid string,
	bySFID func(context.Context, string) (*T, error),
) (*T, error) {
	if id, ok := localID(); ok {
		v, err := byID(ctx, id)
		if ignoreNotFound(err) != nil || v != nil {
			return v, err
		}
	}
	if sfid == "" {
		return nil, &domain.ErrNotFound{Resource: "crm record", ID: "(no id)"}
	}
	return bySFID(ctx, sfid)
}
