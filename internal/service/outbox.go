package service

import (
	"context"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outbox enqueues background jobs through the store of the current write,
// so a job exists iff the write that produced it committed.
type Outbox struct {
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

func NewOutbox(maxAttempts int, logger *zap.Logger) *Outbox {
	return &Outbox{maxAttempts: maxAttempts, now: time.Now, logger: logger}
}

// WithClock overrides the time source (tests).
func (o *Outbox) WithClock(now func() time.Time) *Outbox {
	return &Outbox{maxAttempts: o.maxAttempts, now: now, logger: o.logger}
}

// Publish queues a CRM upsert of one entity. Pending duplicates collapse on
// the entity's dedupe key.
func (o *Outbox) Publish(ctx context.Context, tx port.Store, kind domain.EntityKind, id uuid.UUID) error {
	jobKind := domain.JobCRMUpsert
	if kind == domain.KindFollowup {
		jobKind = domain.JobFollowupPublish
	}
	ref := domain.EntityRef{Kind: kind, ID: id}
	if _, err := o.enqueue(ctx, tx, jobKind, ref.DedupeKey(), ref, 0); err != nil {
		return err
	}
	return tx.SetSyncState(ctx, kind, id, domain.SyncDirty, "")
}

// Email queues msg to be sent after delay. A non-empty dedupeKey folds the
// message into an equal pending one.
func (o *Outbox) Email(ctx context.Context, tx port.Store, msg domain.EmailMessage, delay time.Duration, dedupeKey string) error {
	if len(msg.To) == 0 {
		o.logger.Warn("email has no recipients, not queued", zap.String("template", string(msg.Template)))
		return nil
	}
	_, err := o.enqueue(ctx, tx, domain.JobEmail, dedupeKey, msg, delay)
	return err
}

// Inbound queues one CRM webhook element for inbound sync.
func (o *Outbox) Inbound(ctx context.Context, tx port.Store, p domain.InboundPayload) (*domain.Job, error) {
	return o.enqueue(ctx, tx, domain.JobCRMInbound, "", p, 0)
}

// ContractPDF queues contract generation for an offer. Concurrent requests
// for the same offer share the pending job.
func (o *Outbox) ContractPDF(ctx context.Context, tx port.Store, offerID uuid.UUID) (*domain.Job, error) {
	return o.enqueue(ctx, tx, domain.JobContractPDF, "contract:"+offerID.String(), domain.EntityRef{Kind: domain.KindOffer, ID: offerID}, 0)
}

func (o *Outbox) enqueue(ctx context.Context, tx port.Store, kind domain.JobKind, dedupeKey string, payload any, delay time.Duration) (*domain.Job, error) {
	job, err := domain.NewJob(kind, dedupeKey, payload, o.now().Add(delay), o.maxAttempts)
	if err != nil {
		return nil, err
	}
	stored, err := tx.EnqueueJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	o.logger.Debug("job enqueued",
		zap.String("job_kind", string(kind)),
		zap.String("job_id", stored.ID.String()),
		zap.String("dedupe_key", dedupeKey),
		zap.Time("run_at", stored.RunAt),
	)
	return stored, nil
}
