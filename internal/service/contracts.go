package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/pdf"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ContractConfig locates templates and generated contracts.
type ContractConfig struct {
	Env             string
	TemplatesBucket string
	ContractsBucket string
	URLTTL          time.Duration
	PollTimeout     time.Duration
	PollInterval    time.Duration
}

// ContractService generates offer contract PDFs in the background and
// hands out short-lived links to them.
type ContractService struct {
	store   port.Store
	objects port.ObjectStore
	filler  port.FormFiller
	fields  *pdf.FieldMaps
	outbox  *Outbox
	cfg     ContractConfig
	now     func() time.Time
	logger  *zap.Logger
}

func NewContractService(
	store port.Store,
	objects port.ObjectStore,
	filler port.FormFiller,
	fields *pdf.FieldMaps,
	outbox *Outbox,
	cfg ContractConfig,
	logger *zap.Logger,
) *ContractService {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 10 * time.Minute
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 25 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &ContractService{
		store:   store,
		objects: objects,
		filler:  filler,
		fields:  fields,
		outbox:  outbox,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// Generate fills the contract template of an offer, uploads the PDF and
// returns a presigned link to it. It runs as the contract_pdf job.
func (s *ContractService) Generate(ctx context.Context, offerID uuid.UUID) (*domain.ContractResult, error) {
	ctx, span := tracer.Start(ctx, "ContractService.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("offer.id", offerID.String()))

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	app, err := s.store.GetApplication(ctx, offer.ApplicationID)
	if err != nil {
		return nil, err
	}
	state := app.BuyingState()
	if state == "" {
		state = domain.StateOf(&offer.Address)
	}

	tmpl, err := s.store.FindContractTemplate(ctx, state, offer.PropertyType, offer.ContractType)
	if err != nil {
		return nil, err
	}
	blank, err := s.objects.Get(ctx, s.cfg.TemplatesBucket, tmpl.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("fetch contract template %s: %w", tmpl.ObjectKey, err)
	}

	in := pdf.ContractInput{Offer: offer, Application: app}
	if in.Customer, err = s.store.GetCustomer(ctx, app.CustomerID); ignoreNotFound(err) != nil {
		return nil, err
	}
	if app.BuyingAgentID != nil {
		if in.BuyingAgent, err = s.store.GetAgent(ctx, *app.BuyingAgentID); ignoreNotFound(err) != nil {
			return nil, err
		}
	}
	fields, err := s.fields.Fields(state, s.fields.ContractData(in))
	if err != nil {
		return nil, err
	}
	filled, err := s.filler.Fill(ctx, blank, fields)
	if err != nil {
		return nil, err
	}

	key := s.objectKey(offerID, tmpl.Filename)
	if err := s.objects.Put(ctx, s.cfg.ContractsBucket, key, filled, "application/pdf"); err != nil {
		return nil, fmt.Errorf("upload contract: %w", err)
	}
	url, err := s.objects.PresignGet(ctx, s.cfg.ContractsBucket, key, s.cfg.URLTTL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("contract generated",
		zap.String("offer_id", offerID.String()),
		zap.String("object_key", key),
		zap.String("state", state),
	)
	return &domain.ContractResult{ObjectKey: key, URL: url, ExpiresAt: s.now().Add(s.cfg.URLTTL)}, nil
}

// objectKey is env/offer_id/<template base>-<short id>.pdf.
func (s *ContractService) objectKey(offerID uuid.UUID, filename string) string {
	if filename == "" {
		filename = "contract.pdf"
	}
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%s/%s-%s.pdf", s.cfg.Env, offerID, base, short)
}

// Request queues contract generation and waits for the job up to the poll
// timeout. On timeout the job keeps running and ErrTimeout is returned.
func (s *ContractService) Request(ctx context.Context, offerID uuid.UUID) (*domain.ContractResult, error) {
	ctx, span := tracer.Start(ctx, "ContractService.Request")
	defer span.End()

	if _, err := s.store.GetOffer(ctx, offerID); err != nil {
		return nil, err
	}
	var job *domain.Job
	err := s.store.WithTx(ctx, func(tx port.Store) error {
		var err error
		job, err = s.outbox.ContractPDF(ctx, tx, offerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		current, err := s.store.GetJob(pollCtx, job.ID)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if current != nil {
			switch current.Status {
			case domain.JobDone:
				var res domain.ContractResult
				if err := json.Unmarshal(current.Result, &res); err != nil {
					return nil, fmt.Errorf("decode contract result: %w", err)
				}
				return &res, nil
			case domain.JobDead:
				return nil, fmt.Errorf("contract generation failed: %s", current.LastError)
			}
		}
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("contract not ready before timeout",
				zap.String("offer_id", offerID.String()),
				zap.String("job_id", job.ID.String()),
			)
			return nil, &domain.ErrTimeout{Operation: "contract generation"}
		case <-ticker.C:
		}
	}
}
