package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/port"
	"github.com/homeward/backoffice-go/internal/queue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CRMPublisher upserts one entity into the CRM and returns its CRM id.
type CRMPublisher interface {
	Upsert(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (string, error)
}

// TemplateResolver maps an email template to the provider's template id.
type TemplateResolver func(t domain.EmailTemplate) (string, error)

// JobHandlers executes the background job kinds.
type JobHandlers struct {
	store     port.Store
	crm       CRMPublisher
	contracts *ContractService
	inbound   *InboundSync
	mailer    port.Mailer
	templates TemplateResolver
	partners  port.PartnerConfigs
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewJobHandlers(
	store port.Store,
	crm CRMPublisher,
	contracts *ContractService,
	inbound *InboundSync,
	mailer port.Mailer,
	templates TemplateResolver,
	partners port.PartnerConfigs,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *JobHandlers {
	return &JobHandlers{
		store:     store,
		crm:       crm,
		contracts: contracts,
		inbound:   inbound,
		mailer:    mailer,
		templates: templates,
		partners:  partners,
		metrics:   metrics,
		logger:    logger,
	}
}

// Register wires every job kind and the dead-letter hook into r.
func (h *JobHandlers) Register(r *queue.Runner) {
	r.Register(domain.JobCRMUpsert, h.crmUpsert)
	r.Register(domain.JobFollowupPublish, h.crmUpsert)
	r.Register(domain.JobContractPDF, h.contractPDF)
	r.Register(domain.JobEmail, h.email)
	r.Register(domain.JobCRMInbound, h.crmInbound)
	r.OnDead = h.deadLetter
}

func (h *JobHandlers) crmUpsert(ctx context.Context, job domain.Job) ([]byte, error) {
	var ref domain.EntityRef
	if err := decodePayload(job, &ref); err != nil {
		return nil, err
	}
	sfid, err := h.crm.Upsert(ctx, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"salesforce_id": sfid})
}

func (h *JobHandlers) contractPDF(ctx context.Context, job domain.Job) ([]byte, error) {
	var ref domain.EntityRef
	if err := decodePayload(job, &ref); err != nil {
		return nil, err
	}
	res, err := h.contracts.Generate(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (h *JobHandlers) crmInbound(ctx context.Context, job domain.Job) ([]byte, error) {
	var p domain.InboundPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	return nil, h.inbound.Apply(ctx, p)
}

func (h *JobHandlers) email(ctx context.Context, job domain.Job) ([]byte, error) {
	var msg domain.EmailMessage
	if err := decodePayload(job, &msg); err != nil {
		return nil, err
	}
	if ok, err := h.conditionHolds(ctx, msg); err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("%w: condition %s no longer holds", queue.ErrSkip, msg.Condition)
		}
		return nil, err
	}

	templateID, err := h.templates(msg.Template)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any, len(msg.Data)+4)
	for k, v := range msg.Data {
		data[k] = v
	}
	h.addPartner(ctx, data)

	if err := h.mailer.Send(ctx, templateID, msg.To, data); err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.IncrEmailSent(msg.Template)
	}
	return nil, nil
}

func (h *JobHandlers) conditionHolds(ctx context.Context, msg domain.EmailMessage) (bool, error) {
	switch msg.Condition {
	case domain.ConditionNone:
		return true, nil
	case domain.ConditionApplicationIncomplete:
		if msg.ApplicationID == nil {
			return false, nil
		}
		app, err := h.store.GetApplication(ctx, *msg.ApplicationID)
		if err := ignoreNotFound(err); err != nil {
			return false, err
		}
		return app != nil && app.Stage == domain.StageIncomplete, nil
	}
	return false, domain.NewValidationError("condition", fmt.Sprintf("unknown email condition %q", msg.Condition))
}

// addPartner merges partner branding into the merge fields. A missing or
// unreachable partner config never blocks the email.
func (h *JobHandlers) addPartner(ctx context.Context, data map[string]any) {
	slug, _ := data["partner_slug"].(string)
	if slug == "" || h.partners == nil {
		return
	}
	cfg, err := h.partners.GetPartnerConfig(ctx, slug)
	if err != nil {
		h.logger.Warn("partner config unavailable", zap.String("partner_slug", slug), zap.Error(err))
		return
	}
	data["partner_name"] = cfg.DisplayName
	data["partner_logo_url"] = cfg.LogoURL
	data["partner_color"] = cfg.PrimaryColor
	data["partner_contact_email"] = cfg.ContactEmail
}

func (h *JobHandlers) deadLetter(ctx context.Context, job domain.Job, cause error) {
	if job.Kind != domain.JobCRMUpsert && job.Kind != domain.JobFollowupPublish {
		return
	}
	var ref domain.EntityRef
	if err := json.Unmarshal(job.Payload, &ref); err != nil {
		return
	}
	if err := h.store.SetSyncState(ctx, ref.Kind, ref.ID, domain.SyncFailed, cause.Error()); err != nil {
		h.logger.Error("mark publication failed",
			zap.String("entity_kind", string(ref.Kind)),
			zap.String("entity_id", ref.ID.String()),
			zap.Error(err),
		)
	}
}

func decodePayload(job domain.Job, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return domain.NewValidationError("payload", fmt.Sprintf("%s job: %v", job.Kind, err))
	}
	return nil
}
