package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ApplicationService is the application use cases behind the REST API.
type ApplicationService struct {
	store  port.Store
	writer *Writer
	engine *Engine
	outbox *Outbox
	logger *zap.Logger
}

func NewApplicationService(store port.Store, writer *Writer, engine *Engine, outbox *Outbox, logger *zap.Logger) *ApplicationService {
	return &ApplicationService{store: store, writer: writer, engine: engine, outbox: outbox, logger: logger}
}

// authorizeApplication loads an application the principal may see. Hidden
// applications are reported as not found.
func authorizeApplication(ctx context.Context, s port.Store, p *domain.Principal, id uuid.UUID) (*domain.Application, error) {
	app, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanSee(app) {
		return nil, &domain.ErrNotFound{Resource: "application", ID: id.String()}
	}
	return app, nil
}

// ApplicationQuery is the list filter as received from the API.
type ApplicationQuery struct {
	Stages          []string
	ProductOffering string
	Address         string
	FromDate        string
	ToDate          string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// Filter validates q and scopes it to what p may see.
func (q ApplicationQuery) Filter(p *domain.Principal) (port.ApplicationFilter, error) {
	f := port.ApplicationFilter{
		Address:         strings.TrimSpace(q.Address),
		IncludeArchived: q.IncludeArchived,
		Page:            q.Page,
		PageSize:        q.PageSize,
	}
	errs := map[string]string{}
	for _, s := range q.Stages {
		st, err := domain.ParseApplicationStage(s)
		if err != nil {
			errs["stage"] = err.Error()
			continue
		}
		f.Stages = append(f.Stages, st)
	}
	if q.ProductOffering != "" {
		po, err := domain.ParseProductOffering(q.ProductOffering)
		if err != nil {
			errs["product_offering"] = err.Error()
		}
		f.ProductOffering = po
	}
	if q.FromDate != "" {
		d, err := domain.ParseDate(q.FromDate)
		if err != nil {
			errs["from_date"] = "must be YYYY-MM-DD"
		}
		f.CreatedFrom = &d
	}
	if q.ToDate != "" {
		d, err := domain.ParseDate(q.ToDate)
		if err != nil {
			errs["to_date"] = "must be YYYY-MM-DD"
		}
		f.CreatedTo = &d
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(f.CreatedFrom.Time) {
		errs["to_date"] = "must not be before from_date"
	}
	if len(errs) > 0 {
		return f, domain.NewFieldErrors(errs)
	}

	switch p.Role {
	case domain.UserStaff:
	case domain.UserCustomer:
		if p.CustomerID == nil {
			return f, &domain.ErrForbidden{Action: "list applications"}
		}
		f.CustomerID = p.CustomerID
	case domain.UserAgent:
		if p.AgentID == nil {
			return f, &domain.ErrForbidden{Action: "list applications"}
		}
		f.AgentID = p.AgentID
	default:
		return f, &domain.ErrForbidden{Action: "list applications"}
	}
	return f, nil
}

func (s *ApplicationService) List(ctx context.Context, p *domain.Principal, q ApplicationQuery) ([]domain.Application, int, error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.List")
	defer span.End()

	f, err := q.Filter(p)
	if err != nil {
		return nil, 0, err
	}
	return s.store.ListApplications(ctx, f)
}

// ApplicationDetail is an application with its checklist.
type ApplicationDetail struct {
	*domain.Application
	Tasks []TaskView `json:"tasks"`
}

// TaskView is a task status with whether the customer can act on it yet.
type TaskView struct {
	domain.TaskStatus
	Actionable bool `json:"actionable"`
}

func (s *ApplicationService) Get(ctx context.Context, p *domain.Principal, id uuid.UUID) (*ApplicationDetail, error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", id.String()))

	app, err := authorizeApplication(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	statuses, err := s.store.ListTaskStatuses(ctx, id)
	if err != nil {
		return nil, err
	}
	deps, err := s.store.ListTaskDependencies(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, TaskView{TaskStatus: st, Actionable: domain.IsActionable(st.TaskID, deps, statuses)})
	}
	return &ApplicationDetail{Application: app, Tasks: views}, nil
}

// ApplicationInput is the body of application create and patch.
type ApplicationInput struct {
	ProductOffering    *string                  `json:"product_offering" validate:"omitempty,oneof=buy-sell buy-only"`
	BuyingAgentID      Optional[uuid.UUID]      `json:"buying_agent_id"`
	ListingAgentID     Optional[uuid.UUID]      `json:"listing_agent_id"`
	NeedsBuyingAgent   *bool                    `json:"needs_buying_agent"`
	NeedsListingAgent  *bool                    `json:"needs_listing_agent"`
	NeedsLender        *bool                    `json:"needs_lender"`
	HomeBuyingLocation Optional[domain.Address] `json:"home_buying_location"`
	OfferAddress       Optional[domain.Address] `json:"offer_address"`
	MinPrice           Optional[float64]        `json:"min_price"`
	MaxPrice           Optional[float64]        `json:"max_price"`
	ApexPartnerSlug    *string                  `json:"apex_partner_slug"`
	Stage              *string                  `json:"stage"`
	Context            map[string]any           `json:"context"`
}

func (in *ApplicationInput) apply(p *domain.Principal, app *domain.Application) error {
	if in.ProductOffering != nil {
		po, err := domain.ParseProductOffering(*in.ProductOffering)
		if err != nil {
			return err
		}
		app.ProductOffering = po
	}
	if in.Stage != nil {
		if !p.IsStaff() {
			return &domain.ErrForbidden{Action: "change application stage"}
		}
		st, err := domain.ParseApplicationStage(*in.Stage)
		if err != nil {
			return err
		}
		app.Stage = st
	}
	in.BuyingAgentID.Apply(&app.BuyingAgentID)
	in.ListingAgentID.Apply(&app.ListingAgentID)
	in.HomeBuyingLocation.Apply(&app.HomeBuyingLocation)
	in.OfferAddress.Apply(&app.OfferAddress)
	in.MinPrice.Apply(&app.MinPrice)
	in.MaxPrice.Apply(&app.MaxPrice)
	if in.NeedsBuyingAgent != nil {
		app.NeedsBuyingAgent = *in.NeedsBuyingAgent
	}
	if in.NeedsListingAgent != nil {
		app.NeedsListingAgent = *in.NeedsListingAgent
	}
	if in.NeedsLender != nil {
		app.NeedsLender = *in.NeedsLender
	}
	if in.ApexPartnerSlug != nil {
		app.ApexPartnerSlug = strings.TrimSpace(*in.ApexPartnerSlug)
	}
	if in.Context != nil {
		app.Context = in.Context
	}
	if app.MinPrice != nil && app.MaxPrice != nil && *app.MinPrice > *app.MaxPrice {
		return domain.NewValidationError("min_price", "must not exceed max_price")
	}
	return nil
}

// Create opens an application for the calling customer (or, for staff, the
// customer named in customerID).
func (s *ApplicationService) Create(ctx context.Context, p *domain.Principal, customerID *uuid.UUID, in *ApplicationInput) (*domain.Application, error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.Create")
	defer span.End()

	owner := p.CustomerID
	if p.IsStaff() {
		owner = customerID
	}
	if owner == nil {
		return nil, domain.NewValidationError("customer_id", "required")
	}
	if _, err := s.store.GetCustomer(ctx, *owner); err != nil {
		return nil, err
	}

	app := &domain.Application{
		CustomerID:      *owner,
		Stage:           domain.StageIncomplete,
		ProductOffering: domain.ProductBuySell,
		LeadStatus:      domain.LeadNew,
	}
	if err := in.apply(p, app); err != nil {
		return nil, err
	}
	if _, err := s.writer.SaveApplication(ctx, app, domain.SourceExternal); err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, app.ID, domain.SourceExternal); err != nil {
		return nil, err
	}
	s.logger.Info("application created",
		zap.String("application_id", app.ID.String()),
		zap.String("customer_id", owner.String()),
	)
	return s.store.GetApplication(ctx, app.ID)
}

func (s *ApplicationService) Patch(ctx context.Context, p *domain.Principal, id uuid.UUID, in *ApplicationInput) (*domain.Application, error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.Patch")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", id.String()))

	app, err := authorizeApplication(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(p, app); err != nil {
		return nil, err
	}
	if _, err := s.writer.SaveApplication(ctx, app, domain.SourceExternal); err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, id, domain.SourceExternal); err != nil {
		return nil, err
	}
	return s.store.GetApplication(ctx, id)
}

// SendMessage emails the application's CX manager on behalf of the caller.
func (s *ApplicationService) SendMessage(ctx context.Context, p *domain.Principal, id uuid.UUID, body string) error {
	ctx, span := tracer.Start(ctx, "ApplicationService.SendMessage")
	defer span.End()

	app, err := authorizeApplication(ctx, s.store, p, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) == "" {
		return domain.NewValidationError("message", "required")
	}
	if app.CXManagerID == nil {
		return &domain.ErrUnprocessable{Message: "application has no CX manager"}
	}
	cx, err := s.store.GetSupportUser(ctx, *app.CXManagerID)
	if err != nil {
		return fmt.Errorf("load cx manager: %w", err)
	}

	msg := domain.EmailMessage{
		Template: domain.EmailCXMessage,
		To:       []domain.Recipient{{Email: cx.Email, Name: cx.Name}},
		Data: map[string]any{
			"message":        body,
			"from_email":     p.Email,
			"application_id": app.ID.String(),
		},
		ApplicationID: &app.ID,
	}
	return s.store.WithTx(ctx, func(tx port.Store) error {
		if err := tx.SaveNote(ctx, &domain.Note{ApplicationID: app.ID, AuthorEmail: p.Email, Body: body}); err != nil {
			return err
		}
		return s.outbox.Email(ctx, tx, msg, 0, "")
	})
}

// StageHistory lists the stage transitions of an application.
func (s *ApplicationService) StageHistory(ctx context.Context, p *domain.Principal, id uuid.UUID) ([]domain.StageHistory, error) {
	if _, err := authorizeApplication(ctx, s.store, p, id); err != nil {
		return nil, err
	}
	return s.store.ListStageHistory(ctx, id)
}
