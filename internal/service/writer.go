package service

import (
	"context"
	"errors"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/events"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service")

// WriteResult describes a committed write. Handler failures never undo the
// write; they are reported here.
type WriteResult struct {
	Created       bool
	Changes       domain.Changes
	HandlerErrors []events.HandlerError
}

// Writer is the write path of every entity that has signal handlers:
// diff, pre-save handlers, persist, post-save handlers, in one transaction.
type Writer struct {
	store  port.Store
	bus    events.Publisher
	logger *zap.Logger
}

func NewWriter(store port.Store, bus events.Publisher, logger *zap.Logger) *Writer {
	return &Writer{store: store, bus: bus, logger: logger}
}

// With returns a writer bound to tx. Handlers use it to write through the
// transaction they run in.
func (w *Writer) With(tx port.Store) *Writer {
	return &Writer{store: tx, bus: w.bus, logger: w.logger}
}

type writeOp[T any] struct {
	name    string
	id      func(*T) uuid.UUID
	load    func(ctx context.Context, tx port.Store, id uuid.UUID) (*T, error)
	persist func(ctx context.Context, tx port.Store, v *T) error
	diff    func(before, after *T) domain.Changes
	event   func(meta events.Meta, before, after *T) events.Event
}

func write[T any](ctx context.Context, w *Writer, op writeOp[T], v *T, src domain.WriteSource) (*WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Writer.Save"+op.name)
	defer span.End()

	id := op.id(v)
	span.SetAttributes(attribute.String("entity.id", id.String()), attribute.String("write.source", src.String()))

	res := &WriteResult{}
	err := w.store.WithTx(ctx, func(tx port.Store) error {
		before, err := op.load(ctx, tx, id)
		var nf *domain.ErrNotFound
		switch {
		case errors.As(err, &nf):
			before = nil
		case err != nil:
			return err
		}
		if before != nil {
			keepSalesforceID(before, v)
		}

		meta := events.Meta{
			Phase:   events.PreSave,
			Source:  src,
			Created: before == nil,
			Changes: op.diff(before, v),
		}
		res.Created = meta.Created
		res.Changes = meta.Changes
		res.HandlerErrors = append(res.HandlerErrors, w.bus.Publish(ctx, tx, op.event(meta, before, v))...)

		if err := op.persist(ctx, tx, v); err != nil {
			return err
		}

		meta.Phase = events.PostSave
		res.HandlerErrors = append(res.HandlerErrors, w.bus.Publish(ctx, tx, op.event(meta, before, v))...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.HandlerErrors) > 0 {
		w.logger.Warn("write committed with handler failures",
			zap.String("entity", op.name),
			zap.String("entity_id", id.String()),
			zap.Int("failures", len(res.HandlerErrors)),
		)
	}
	return res, nil
}

type crmMirrored interface {
	CRM() *domain.CRMRecord
}

// keepSalesforceID carries over a CRM id stored by a publication that ran
// while v was being edited.
func keepSalesforceID(before, after any) {
	b, ok := before.(crmMirrored)
	if !ok {
		return
	}
	a := after.(crmMirrored)
	if a.CRM().SalesforceID == "" {
		a.CRM().SalesforceID = b.CRM().SalesforceID
	}
}

var applicationWrite = writeOp[domain.Application]{
	name: "Application",
	id:   func(a *domain.Application) uuid.UUID { return a.EnsureID() },
	load: func(ctx context.Context, tx port.Store, id uuid.UUID) (*domain.Application, error) {
		return tx.GetApplication(ctx, id)
	},
	persist: func(ctx context.Context, tx port.Store, a *domain.Application) error { return tx.SaveApplication(ctx, a) },
	diff:    domain.DiffApplication,
	event: func(m events.Meta, before, after *domain.Application) events.Event {
		return events.ApplicationEvent{Meta: m, Before: before, After: after}
	},
}

func (w *Writer) SaveApplication(ctx context.Context, app *domain.Application, src domain.WriteSource) (*WriteResult, error) {
	return write(ctx, w, applicationWrite, app, src)
}

var offerWrite = writeOp[domain.Offer]{
	name: "Offer",
	id:   func(o *domain.Offer) uuid.UUID { return o.EnsureID() },
	load: func(ctx context.Context, tx port.Store, id uuid.UUID) (*domain.Offer, error) {
		return tx.GetOffer(ctx, id)
	},
	persist: func(ctx context.Context, tx port.Store, o *domain.Offer) error { return tx.SaveOffer(ctx, o) },
	diff:    domain.DiffOffer,
	event: func(m events.Meta, before, after *domain.Offer) events.Event {
		return events.OfferEvent{Meta: m, Before: before, After: after}
	},
}

func (w *Writer) SaveOffer(ctx context.Context, o *domain.Offer, src domain.WriteSource) (*WriteResult, error) {
	return write(ctx, w, offerWrite, o, src)
}

var acknowledgementWrite = writeOp[domain.Acknowledgement]{
	name: "Acknowledgement",
	id:   func(a *domain.Acknowledgement) uuid.UUID { return a.EnsureID() },
	load: func(ctx context.Context, tx port.Store, id uuid.UUID) (*domain.Acknowledgement, error) {
		return tx.GetAcknowledgement(ctx, id)
	},
	persist: func(ctx context.Context, tx port.Store, a *domain.Acknowledgement) error {
		return tx.SaveAcknowledgement(ctx, a)
	},
	diff: domain.DiffAcknowledgement,
	event: func(m events.Meta, before, after *domain.Acknowledgement) events.Event {
		return events.AcknowledgementEvent{Meta: m, Before: before, After: after}
	},
}

func (w *Writer) SaveAcknowledgement(ctx context.Context, a *domain.Acknowledgement, src domain.WriteSource) (*WriteResult, error) {
	return write(ctx, w, acknowledgementWrite, a, src)
}

var taskStatusWrite = writeOp[domain.TaskStatus]{
	name: "TaskStatus",
	id:   func(s *domain.TaskStatus) uuid.UUID { return s.EnsureID() },
	load: func(ctx context.Context, tx port.Store, id uuid.UUID) (*domain.TaskStatus, error) {
		return tx.GetTaskStatus(ctx, id)
	},
	persist: func(ctx context.Context, tx port.Store, s *domain.TaskStatus) error { return tx.SaveTaskStatus(ctx, s) },
	diff:    domain.DiffTaskStatus,
	event: func(m events.Meta, before, after *domain.TaskStatus) events.Event {
		return events.TaskStatusEvent{Meta: m, Before: before, After: after}
	},
}

func (w *Writer) SaveTaskStatus(ctx context.Context, s *domain.TaskStatus, src domain.WriteSource) (*WriteResult, error) {
	return write(ctx, w, taskStatusWrite, s, src)
}

var preApprovalWrite = writeOp[domain.PreApproval]{
	name: "PreApproval",
	id:   func(p *domain.PreApproval) uuid.UUID { return p.EnsureID() },
	load: func(ctx context.Context, tx port.Store, id uuid.UUID) (*domain.PreApproval, error) {
		return tx.GetPreApproval(ctx, id)
	},
	persist: func(ctx context.Context, tx port.Store, p *domain.PreApproval) error { return tx.SavePreApproval(ctx, p) },
	diff:    domain.DiffPreApproval,
	event: func(m events.Meta, before, after *domain.PreApproval) events.Event {
		return events.PreApprovalEvent{Meta: m, Before: before, After: after}
	},
}

func (w *Writer) SavePreApproval(ctx context.Context, p *domain.PreApproval, src domain.WriteSource) (*WriteResult, error) {
	return write(ctx, w, preApprovalWrite, p, src)
}

var userWrite = writeOp[domain.User]{
	name: "User",
	id:   func(u *domain.User) uuid.UUID { return u.EnsureID() },
	load: func(ctx context.Context, tx port.Store, id uuid.UUID) (*domain.User, error) {
		return tx.GetUser(ctx, id)
	},
	persist: func(ctx context.Context, tx port.Store, u *domain.User) error { return tx.SaveUser(ctx, u) },
	diff:    domain.DiffUser,
	event: func(m events.Meta, before, after *domain.User) events.Event {
		return events.UserEvent{Meta: m, Before: before, After: after}
	},
}

func (w *Writer) SaveUser(ctx context.Context, u *domain.User, src domain.WriteSource) (*WriteResult, error) {
	return write(ctx, w, userWrite, u, src)
}
