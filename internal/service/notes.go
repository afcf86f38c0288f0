package service

import (
	"context"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoteService stores free-text notes on applications and lets staff
// republish records to the CRM.
type NoteService struct {
	store  port.Store
	outbox *Outbox
	logger *zap.Logger
}

func NewNoteService(store port.Store, outbox *Outbox, logger *zap.Logger) *NoteService {
	return &NoteService{store: store, outbox: outbox, logger: logger}
}

type NoteInput struct {
	ApplicationID uuid.UUID `json:"application_id" validate:"required"`
	Body          string    `json:"body" validate:"required"`
}

func (s *NoteService) Create(ctx context.Context, p *domain.Principal, in *NoteInput) (*domain.Note, error) {
	if _, err := authorizeApplication(ctx, s.store, p, in.ApplicationID); err != nil {
		return nil, err
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, domain.NewValidationError("body", "required")
	}
	n := &domain.Note{ApplicationID: in.ApplicationID, AuthorEmail: p.Email, Body: body}
	if err := s.store.SaveNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NoteService) List(ctx context.Context, p *domain.Principal, appID uuid.UUID) ([]domain.Note, error) {
	if _, err := authorizeApplication(ctx, s.store, p, appID); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, appID)
}

// RepublishInput names the records to send to the CRM again.
type RepublishInput struct {
	Kind string      `json:"kind" validate:"required"`
	IDs  []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

var republishKinds = map[domain.EntityKind]bool{
	domain.KindApplication:     true,
	domain.KindAgent:           true,
	domain.KindCurrentHome:     true,
	domain.KindOffer:           true,
	domain.KindNewHomePurchase: true,
	domain.KindLoan:            true,
	domain.KindFollowup:        true,
	domain.KindBrokerage:       true,
}

// Republish queues a CRM upsert for every id. Staff only.
func (s *NoteService) Republish(ctx context.Context, p *domain.Principal, in *RepublishInput) (int, error) {
	if !p.IsStaff() {
		return 0, &domain.ErrForbidden{Action: "republish records"}
	}
	kind := domain.EntityKind(in.Kind)
	if !republishKinds[kind] {
		return 0, domain.NewValidationError("kind", "unknown entity kind")
	}
	err := s.store.WithTx(ctx, func(tx port.Store) error {
		for _, id := range in.IDs {
			if err := s.outbox.Publish(ctx, tx, kind, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("records queued for republication",
		zap.String("kind", in.Kind),
		zap.Int("count", len(in.IDs)),
		zap.String("requested_by", p.Email),
	)
	return len(in.IDs), nil
}
