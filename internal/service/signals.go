package service

import (
	"context"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/events"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	incompleteReminderDelay = 45 * time.Minute
	photoUploadEmailDelay   = 5 * time.Minute
)

// Signals holds the collaborators of the signal handlers. Every handler
// works through the tx it is given.
type Signals struct {
	engine *Engine
	acks   *AcknowledgementAssigner
	outbox *Outbox
	logger *zap.Logger
}

func NewSignals(engine *Engine, acks *AcknowledgementAssigner, outbox *Outbox, logger *zap.Logger) *Signals {
	return &Signals{engine: engine, acks: acks, outbox: outbox, logger: logger}
}

// RegisterSignalHandlers subscribes every handler to bus in order. Handler
// failures are counted in metrics when m is not nil.
func RegisterSignalHandlers(bus *events.Bus, s *Signals, m *observability.Metrics) {
	if m != nil {
		bus.OnError = func(he events.HandlerError) { m.IncrSignalFailure(he.Handler) }
	}

	events.On(bus, events.PreSave, "application.stage_history", s.recordStageHistory)
	events.On(bus, events.PreSave, "application.reassign_service_agreement", s.reassignServiceAgreement)
	events.On(bus, events.PreSave, "application.stage_emails", s.stageEmails)

	events.On(bus, events.PostSave, "application.promote", s.promoteApplication)
	events.On(bus, events.PostSave, "application.partner_welcome", s.partnerWelcome)
	events.On(bus, events.PostSave, "application.cma_request", s.cmaRequest)
	events.On(bus, events.PostSave, "application.publish", s.publishApplication)

	events.On(bus, events.PostSave, "acknowledgement.publish_application", s.publishOnServiceAgreement)

	events.On(bus, events.PreSave, "offer.submitted_emails", s.offerSubmittedEmails)
	events.On(bus, events.PreSave, "offer.unacknowledged_agreement", s.unacknowledgedAgreement)

	events.On(bus, events.PreSave, "pre_approval.purchase_price_updated", s.purchasePriceUpdated)

	events.On(bus, events.PostSave, "user.login_sync", s.userLogin)

	events.On(bus, events.PreSave, "task_status.photo_upload_complete", s.photoUploadComplete)
	events.On(bus, events.PostSave, "task_status.promote", s.promoteFromTask)
}

func (s *Signals) recordStageHistory(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	if !ev.Changes.Has("stage") {
		return nil
	}
	h := &domain.StageHistory{
		ApplicationID: ev.After.ID,
		ToStage:       ev.After.Stage,
		Source:        ev.Source.String(),
	}
	if ev.Before != nil {
		h.FromStage = ev.Before.Stage
	}
	return tx.AddStageHistory(ctx, h)
}

func (s *Signals) reassignServiceAgreement(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	if ev.Before == nil || !ev.Changes.Has("stage") {
		return nil
	}
	if !ev.Before.Stage.IsPostOption() || !ev.After.Stage.IsPreOffer() {
		return nil
	}
	return s.acks.With(tx).ReassignServiceAgreement(ctx, ev.After, ev.Source)
}

func (s *Signals) stageEmails(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	if !ev.Changes.Has("stage") {
		return nil
	}
	template, ok := domain.StageEmails[ev.After.Stage]
	if !ok {
		return nil
	}
	to, data, err := customerRecipient(ctx, tx, ev.After)
	if err != nil {
		return err
	}
	data["stage"] = string(ev.After.Stage)
	msg := domain.EmailMessage{Template: template, To: to, Data: data, ApplicationID: &ev.After.ID}
	return s.outbox.Email(ctx, tx, msg, 0, fmt.Sprintf("email:%s:%s", template, ev.After.ID))
}

func (s *Signals) promoteApplication(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	_, err := s.engine.With(tx).PromoteIfComplete(ctx, ev.After.ID, ev.Source)
	return err
}

func (s *Signals) partnerWelcome(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	slug := ev.After.ApexPartnerSlug
	if slug == "" || !ev.Changes.Has("apex_partner_slug") {
		return nil
	}
	app := ev.After
	to, data, err := customerRecipient(ctx, tx, app)
	if err != nil {
		return err
	}
	data["partner_slug"] = slug
	msg := domain.EmailMessage{Template: domain.EmailPartnerWelcomeCustomer, To: to, Data: data, ApplicationID: &app.ID}
	if err := s.outbox.Email(ctx, tx, msg, 0, fmt.Sprintf("email:partner_welcome_customer:%s:%s", app.ID, slug)); err != nil {
		return err
	}

	agentTo, err := agentRecipient(ctx, tx, app.BuyingAgentID)
	if err != nil || len(agentTo) == 0 {
		return err
	}
	msg = domain.EmailMessage{Template: domain.EmailPartnerWelcomeAgent, To: agentTo, Data: data, ApplicationID: &app.ID}
	return s.outbox.Email(ctx, tx, msg, 0, fmt.Sprintf("email:partner_welcome_agent:%s:%s", app.ID, slug))
}

func (s *Signals) cmaRequest(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	app := ev.After
	if !ev.Changes.Has("buying_agent_id") || app.BuyingAgentID == nil {
		return nil
	}
	if app.LeadStatus != domain.LeadNurture && app.LeadStatus != domain.LeadQualified {
		return nil
	}
	if !app.Stage.IsPreApproval() {
		return nil
	}
	to, err := agentRecipient(ctx, tx, app.BuyingAgentID)
	if err != nil || len(to) == 0 {
		return err
	}
	_, data, err := customerRecipient(ctx, tx, app)
	if err != nil {
		return err
	}
	if app.HomeBuyingLocation != nil {
		data["buying_city"] = app.HomeBuyingLocation.City
		data["buying_state"] = app.BuyingState()
	}
	msg := domain.EmailMessage{Template: domain.EmailCMARequest, To: to, Data: data, ApplicationID: &app.ID}
	return s.outbox.Email(ctx, tx, msg, 0, fmt.Sprintf("email:cma_request:%s:%s", app.ID, *app.BuyingAgentID))
}

func (s *Signals) publishApplication(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
	if ev.Source == domain.SourceCRMSync || (!ev.Created && len(ev.Changes) == 0) {
		return nil
	}
	return s.outbox.Publish(ctx, tx, domain.KindApplication, ev.After.ID)
}

func (s *Signals) publishOnServiceAgreement(ctx context.Context, tx port.Store, ev events.AcknowledgementEvent) error {
	if ev.Source == domain.SourceCRMSync || !ev.Changes.Has("is_acknowledged") || !ev.After.IsAcknowledged {
		return nil
	}
	d, err := tx.GetDisclosure(ctx, ev.After.DisclosureID)
	if err != nil {
		return err
	}
	if d.Type != domain.DisclosureServiceAgreement {
		return nil
	}
	return s.outbox.Publish(ctx, tx, domain.KindApplication, ev.After.ApplicationID)
}

func (s *Signals) offerSubmittedEmails(ctx context.Context, tx port.Store, ev events.OfferEvent) error {
	if !ev.Changes.Has("status") {
		return nil
	}
	offer := ev.After
	var template domain.EmailTemplate
	switch offer.Status {
	case domain.OfferApproved:
		template = domain.EmailAgentOfferSubmitted
	case domain.OfferRequested:
		template = domain.EmailCustomerOfferSubmitted
	default:
		return nil
	}

	app, err := tx.GetApplication(ctx, offer.ApplicationID)
	if err != nil {
		return err
	}
	to, data, err := customerRecipient(ctx, tx, app)
	if err != nil {
		return err
	}
	if template == domain.EmailAgentOfferSubmitted {
		if to, err = agentRecipient(ctx, tx, app.BuyingAgentID); err != nil {
			return err
		}
	}
	data["offer_id"] = offer.ID.String()
	data["offer_address"] = offer.Address.Street
	msg := domain.EmailMessage{Template: template, To: to, Data: data, ApplicationID: &app.ID}
	return s.outbox.Email(ctx, tx, msg, 0, fmt.Sprintf("email:%s:%s", template, offer.ID))
}

func (s *Signals) unacknowledgedAgreement(ctx context.Context, tx port.Store, ev events.OfferEvent) error {
	offer := ev.After
	if !ev.Changes.Has("status") || offer.Status != domain.OfferRequested {
		return nil
	}
	acks, disclosures, err := ActiveAcknowledgements(ctx, tx, offer.ApplicationID)
	if err != nil {
		return err
	}
	if domain.NewServiceAgreementAcknowledgedDate(acks, disclosures) != nil {
		return nil
	}
	app, err := tx.GetApplication(ctx, offer.ApplicationID)
	if err != nil {
		return err
	}
	to, data, err := customerRecipient(ctx, tx, app)
	if err != nil {
		return err
	}
	data["offer_id"] = offer.ID.String()
	msg := domain.EmailMessage{Template: domain.EmailUnacknowledgedAgreement, To: to, Data: data, ApplicationID: &app.ID}
	return s.outbox.Email(ctx, tx, msg, 0, "email:unacknowledged_service_agreement:"+offer.ID.String())
}

func (s *Signals) purchasePriceUpdated(ctx context.Context, tx port.Store, ev events.PreApprovalEvent) error {
	if ev.Before == nil || ev.After.Amount <= ev.Before.Amount {
		return nil
	}
	app, err := tx.GetApplication(ctx, ev.After.ApplicationID)
	if err != nil {
		return err
	}
	if !app.Stage.IsPostApproval() {
		return nil
	}
	to, data, err := customerRecipient(ctx, tx, app)
	if err != nil {
		return err
	}
	agentTo, err := agentRecipient(ctx, tx, app.BuyingAgentID)
	if err != nil {
		return err
	}
	data["amount"] = ev.After.Amount
	data["previous_amount"] = ev.Before.Amount
	msg := domain.EmailMessage{
		Template:      domain.EmailPurchasePriceUpdated,
		To:            append(to, agentTo...),
		Data:          data,
		ApplicationID: &app.ID,
	}
	key := fmt.Sprintf("email:purchase_price_updated:%s:%.2f", ev.After.ID, ev.After.Amount)
	return s.outbox.Email(ctx, tx, msg, 0, key)
}

func (s *Signals) userLogin(ctx context.Context, tx port.Store, ev events.UserEvent) error {
	if ev.After.CustomerID == nil || len(ev.Changes) == 0 {
		return nil
	}
	apps, _, err := tx.ListApplications(ctx, port.ApplicationFilter{
		CustomerID:      ev.After.CustomerID,
		IncludeArchived: true,
		PageSize:        100,
	})
	if err != nil {
		return err
	}
	for i := range apps {
		app := &apps[i]
		if err := s.outbox.Publish(ctx, tx, domain.KindApplication, app.ID); err != nil {
			return err
		}
		if app.Stage != domain.StageIncomplete {
			continue
		}
		to, data, err := customerRecipient(ctx, tx, app)
		if err != nil {
			return err
		}
		msg := domain.EmailMessage{
			Template:      domain.EmailIncompleteReminder,
			To:            to,
			Data:          data,
			ApplicationID: &app.ID,
			Condition:     domain.ConditionApplicationIncomplete,
		}
		if err := s.outbox.Email(ctx, tx, msg, incompleteReminderDelay, "email:incomplete_reminder:"+app.ID.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Signals) photoUploadComplete(ctx context.Context, tx port.Store, ev events.TaskStatusEvent) error {
	st := ev.After
	if ev.Created || st.Category != domain.TaskPhotoUpload || !ev.Changes.Has("status") || st.Status != domain.ProgressCompleted {
		return nil
	}
	app, err := tx.GetApplication(ctx, st.ApplicationID)
	if err != nil {
		return err
	}
	to, data, err := customerRecipient(ctx, tx, app)
	if err != nil {
		return err
	}
	msg := domain.EmailMessage{Template: domain.EmailPhotoUploadComplete, To: to, Data: data, ApplicationID: &app.ID}
	return s.outbox.Email(ctx, tx, msg, photoUploadEmailDelay, "email:photo_upload_complete:"+app.ID.String())
}

func (s *Signals) promoteFromTask(ctx context.Context, tx port.Store, ev events.TaskStatusEvent) error {
	if !ev.Changes.Has("status") {
		return nil
	}
	_, err := s.engine.With(tx).PromoteIfComplete(ctx, ev.After.ApplicationID, ev.Source)
	return err
}

// customerRecipient returns the customer of app as a recipient together
// with the merge fields every customer email shares.
func customerRecipient(ctx context.Context, tx port.Store, app *domain.Application) ([]domain.Recipient, map[string]any, error) {
	c, err := tx.GetCustomer(ctx, app.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load customer: %w", err)
	}
	data := map[string]any{
		"first_name":     c.FirstName(),
		"application_id": app.ID.String(),
	}
	if c.Email == "" {
		return nil, data, nil
	}
	return []domain.Recipient{{Email: c.Email, Name: c.Name}}, data, nil
}

// agentRecipient returns no recipient when the agent is unset or unknown.
func agentRecipient(ctx context.Context, tx port.Store, agentID *uuid.UUID) ([]domain.Recipient, error) {
	if agentID == nil {
		return nil, nil
	}
	a, err := tx.GetAgent(ctx, *agentID)
	if err := ignoreNotFound(err); err != nil {
		return nil, err
	}
	if a == nil || a.Email == "" {
		return nil, nil
	}
	return []domain.Recipient{{Email: a.Email, Name: a.Name}}, nil
}
