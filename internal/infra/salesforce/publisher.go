package salesforce

import (
	"context"
	"errors"
	"fmt"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher pushes one stored entity to the CRM and records the CRM id on
// the first success.
type Publisher struct {
	store  port.Store
	crm    port.CRM
	logger *zap.Logger
}

func NewPublisher(store port.Store, crm port.CRM, logger *zap.Logger) *Publisher {
	return &Publisher{store: store, crm: crm, logger: logger}
}

// Upsert loads, projects and upserts the entity. Parents the CRM record
// links to (application, offer, loan, brokerage) are published first when
// they have no CRM id yet. Returns the CRM id.
func (p *Publisher) Upsert(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (string, error) {
	ctx, span := tracer.Start(ctx, "Publisher.Upsert")
	defer span.End()

	object, err := ObjectFor(kind)
	if err != nil {
		return "", err
	}
	sfid, fields, err := p.project(ctx, kind, id)
	if err != nil {
		return "", err
	}

	log := p.logger.With(
		zap.String("entity_kind", string(kind)),
		zap.String("entity_id", id.String()),
		zap.String("salesforce_id", sfid),
	)
	if err := p.store.SetSyncState(ctx, kind, id, domain.SyncInFlight, ""); err != nil {
		return "", err
	}

	newID, err := p.crm.Upsert(ctx, object, sfid, fields)
	if err != nil {
		if serr := p.store.SetSyncState(ctx, kind, id, domain.SyncDirty, err.Error()); serr != nil {
			log.Error("record sync error failed", zap.Error(serr))
		}
		return "", err
	}

	if sfid == "" {
		set, err := p.store.SetSalesforceIDIfEmpty(ctx, kind, id, newID)
		if err != nil {
			return "", err
		}
		if !set {
			// A concurrent inbound sync linked the record first; keep its id.
			log.Warn("salesforce id already recorded, keeping existing", zap.String("returned_id", newID))
		}
		sfid = newID
	}
	if err := p.store.SetSyncState(ctx, kind, id, domain.SyncPublished, ""); err != nil {
		return "", err
	}
	log.Info("published to salesforce", zap.String("object", object), zap.String("salesforce_id", sfid))
	return sfid, nil
}

// parentID returns the CRM id of a parent, publishing it when missing.
func (p *Publisher) parentID(ctx context.Context, kind domain.EntityKind, id uuid.UUID, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	sfid, err := p.Upsert(ctx, kind, id)
	if err != nil {
		return "", fmt.Errorf("publish parent %s %s: %w", kind, id, err)
	}
	return sfid, nil
}

func (p *Publisher) project(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (string, map[string]any, error) {
	switch kind {
	case domain.KindApplication:
		app, err := p.store.GetApplication(ctx, id)
		if err != nil {
			return "", nil, err
		}
		bundle, err := p.applicationBundle(ctx, app)
		if err != nil {
			return "", nil, err
		}
		return app.SalesforceID, ProjectApplication(bundle), nil

	case domain.KindAgent:
		a, err := p.store.GetAgent(ctx, id)
		if err != nil {
			return "", nil, err
		}
		var brokerageSFID string
		if a.BrokerageID != nil {
			b, err := p.store.GetBrokerage(ctx, *a.BrokerageID)
			if err != nil {
				return "", nil, err
			}
			if brokerageSFID, err = p.parentID(ctx, domain.KindBrokerage, b.ID, b.SalesforceID); err != nil {
				return "", nil, err
			}
		}
		return a.SalesforceID, ProjectAgent(a, brokerageSFID), nil

	case domain.KindBrokerage:
		b, err := p.store.GetBrokerage(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return b.SalesforceID, ProjectBrokerage(b), nil

	case domain.KindCurrentHome:
		h, err := p.store.GetCurrentHome(ctx, id)
		if err != nil {
			return "", nil, err
		}
		appSFID, err := p.applicationID(ctx, h.ApplicationID)
		if err != nil {
			return "", nil, err
		}
		return h.SalesforceID, ProjectCurrentHome(h, appSFID), nil

	case domain.KindOffer:
		o, err := p.store.GetOffer(ctx, id)
		if err != nil {
			return "", nil, err
		}
		appSFID, err := p.applicationID(ctx, o.ApplicationID)
		if err != nil {
			return "", nil, err
		}
		return o.SalesforceID, ProjectOffer(o, appSFID), nil

	case domain.KindNewHomePurchase:
		n, err := p.store.GetNewHomePurchase(ctx, id)
		if err != nil {
			return "", nil, err
		}
		appSFID, err := p.applicationID(ctx, n.ApplicationID)
		if err != nil {
			return "", nil, err
		}
		var offerSFID string
		if n.OfferID != nil {
			o, err := p.store.GetOffer(ctx, *n.OfferID)
			if err != nil {
				return "", nil, err
			}
			if offerSFID, err = p.parentID(ctx, domain.KindOffer, o.ID, o.SalesforceID); err != nil {
				return "", nil, err
			}
		}
		return n.SalesforceID, ProjectNewHomePurchase(n, appSFID, offerSFID), nil

	case domain.KindLoan:
		l, err := p.store.GetLoan(ctx, id)
		if err != nil {
			return "", nil, err
		}
		appSFID, err := p.applicationID(ctx, l.ApplicationID)
		if err != nil {
			return "", nil, err
		}
		return l.SalesforceID, ProjectLoan(l, appSFID), nil

	case domain.KindFollowup:
		f, err := p.store.GetFollowup(ctx, id)
		if err != nil {
			return "", nil, err
		}
		l, err := p.store.GetLoan(ctx, f.LoanID)
		if err != nil {
			return "", nil, err
		}
		loanSFID, err := p.parentID(ctx, domain.KindLoan, l.ID, l.SalesforceID)
		if err != nil {
			return "", nil, err
		}
		appSFID, err := p.applicationID(ctx, f.ApplicationID)
		if err != nil {
			return "", nil, err
		}
		return f.SalesforceID, ProjectFollowup(f, loanSFID, appSFID), nil
	}
	return "", nil, fmt.Errorf("entity kind %q is not mirrored in salesforce", kind)
}

func (p *Publisher) applicationID(ctx context.Context, appID uuid.UUID) (string, error) {
	app, err := p.store.GetApplication(ctx, appID)
	if err != nil {
		return "", err
	}
	return p.parentID(ctx, domain.KindApplication, app.ID, app.SalesforceID)
}

// applicationBundle loads the records the Account projection composes.
// Missing optional records are skipped.
func (p *Publisher) applicationBundle(ctx context.Context, app *domain.Application) (ApplicationBundle, error) {
	b := ApplicationBundle{Application: app}
	var err error

	if b.Customer, err = p.store.GetCustomer(ctx, app.CustomerID); err != nil {
		return b, err
	}
	if b.Customer.UserID != nil {
		if b.User, err = optional(p.store.GetUser(ctx, *b.Customer.UserID)); err != nil {
			return b, err
		}
	}
	if app.ListingAgentID != nil {
		if b.ListingAgent, err = optional(p.store.GetAgent(ctx, *app.ListingAgentID)); err != nil {
			return b, err
		}
	}
	if app.BuyingAgentID != nil {
		if b.BuyingAgent, err = optional(p.store.GetAgent(ctx, *app.BuyingAgentID)); err != nil {
			return b, err
		}
	}
	if app.MortgageLenderID != nil {
		if b.Lender, err = optional(p.store.GetMortgageLender(ctx, *app.MortgageLenderID)); err != nil {
			return b, err
		}
	}
	if app.CurrentHomeID != nil {
		if b.CurrentHome, err = optional(p.store.GetCurrentHome(ctx, *app.CurrentHomeID)); err != nil {
			return b, err
		}
	}
	return b, nil
}

func optional[T any](v *T, err error) (*T, error) {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nil, nil
	}
	return v, err
}
