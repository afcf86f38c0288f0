package service

import (
	"context"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AcknowledgementService lets customers answer their disclosures.
type AcknowledgementService struct {
	store  port.Store
	writer *Writer
	engine *Engine
	now    func() time.Time
	logger *zap.Logger
}

func NewAcknowledgementService(store port.Store, writer *Writer, engine *Engine, logger *zap.Logger) *AcknowledgementService {
	return &AcknowledgementService{store: store, writer: writer, engine: engine, now: time.Now, logger: logger}
}

// AcknowledgementView is an acknowledgement with its disclosure.
type AcknowledgementView struct {
	domain.Acknowledgement
	Disclosure domain.Disclosure `json:"disclosure"`
}

// List returns the acknowledgements of an application whose disclosures
// are still active.
func (s *AcknowledgementService) List(ctx context.Context, p *domain.Principal, appID uuid.UUID) ([]AcknowledgementView, error) {
	if _, err := authorizeApplication(ctx, s.store, p, appID); err != nil {
		return nil, err
	}
	acks, disclosures, err := ActiveAcknowledgements(ctx, s.store, appID)
	if err != nil {
		return nil, err
	}
	out := make([]AcknowledgementView, 0, len(acks))
	for _, ack := range acks {
		out = append(out, AcknowledgementView{Acknowledgement: ack, Disclosure: disclosures[ack.DisclosureID]})
	}
	return out, nil
}

// Patch records an answer and re-runs the task engine for the application.
func (s *AcknowledgementService) Patch(ctx context.Context, p *domain.Principal, id uuid.UUID, acknowledged bool) (*domain.Acknowledgement, error) {
	ctx, span := tracer.Start(ctx, "AcknowledgementService.Patch")
	defer span.End()
	span.SetAttributes(attribute.String("acknowledgement.id", id.String()))

	ack, err := s.store.GetAcknowledgement(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeApplication(ctx, s.store, p, ack.ApplicationID); err != nil {
		return nil, &domain.ErrNotFound{Resource: "acknowledgement", ID: id.String()}
	}
	ack.SetAcknowledged(acknowledged, s.now())
	if _, err := s.writer.SaveAcknowledgement(ctx, ack, domain.SourceExternal); err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, ack.ApplicationID, domain.SourceExternal); err != nil {
		return nil, err
	}
	s.logger.Info("acknowledgement updated",
		zap.String("application_id", ack.ApplicationID.String()),
		zap.String("disclosure_id", ack.DisclosureID.String()),
		zap.Bool("acknowledged", acknowledged),
	)
	return ack, nil
}
