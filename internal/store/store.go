package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("store")

// Store implements port.Store over a DocDB.
type Store struct {
	db  DocDB
	now func() time.Time
}

// New creates a Store. Timestamps are written in UTC so text comparisons
// over them stay ordered.
func New(db DocDB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{db: s.db, now: now}
}

// DB exposes the primitive, e.g. for the queue runner.
func (s *Store) DB() DocDB { return s.db }

func (s *Store) WithTx(ctx context.Context, fn func(tx port.Store) error) error {
	return s.db.InTx(ctx, func(tx DocDB) error {
		return fn(&Store{db: tx, now: s.now})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type record interface {
	GetID() uuid.UUID
	Touch(now time.Time)
}

func (s *Store) put(ctx context.Context, table string, rec record) error {
	rec.Touch(s.now())
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}
	if err := s.db.Put(ctx, table, rec.GetID(), raw); err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return &domain.ErrConflict{Message: fmt.Sprintf("%s already exists (%s)", table, dup.Key)}
		}
		return fmt.Errorf("save %s: %w", table, err)
	}
	return nil
}

func get[T any](ctx context.Context, db DocDB, table, resource string, id uuid.UUID) (*T, error) {
	raw, err := db.Get(ctx, table, id)
	if errors.Is(err, ErrNoDocument) {
		return nil, &domain.ErrNotFound{Resource: resource, ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return &v, nil
}

func find[T any](ctx context.Context, db DocDB, table string, q Query) ([]T, error) {
	rows, err := db.Find(ctx, table, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// findOne returns the first match or ErrNotFound keyed by key.
func findOne[T any](ctx context.Context, db DocDB, table, resource, key string, where ...Cond) (*T, error) {
	rows, err := find[T](ctx, db, table, Query{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: resource, ID: key}
	}
	return &rows[0], nil
}

var kindTables = map[domain.EntityKind]string{
	domain.KindApplication:     TableApplications,
	domain.KindAgent:           TableAgents,
	domain.KindCurrentHome:     TableCurrentHomes,
	domain.KindOffer:           TableOffers,
	domain.KindNewHomePurchase: TableNewHomePurchases,
	domain.KindLoan:            TableLoans,
	domain.KindFollowup:        TableFollowups,
	domain.KindBrokerage:       TableBrokerages,
}

func tableFor(kind domain.EntityKind) (string, error) {
	t, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("no table for entity kind %q", kind)
	}
	return t, nil
}

func (s *Store) SetSalesforceIDIfEmpty(ctx context.Context, kind domain.EntityKind, id uuid.UUID, sfid string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Store.SetSalesforceIDIfEmpty")
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	ok, err := s.db.SetFieldIfEmpty(ctx, table, id, "salesforce_id", sfid)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return false, &domain.ErrConflict{Message: fmt.Sprintf("salesforce id %s already linked on %s", sfid, table)}
		}
		return false, err
	}
	return ok, nil
}

func (s *Store) SetSyncState(ctx context.Context, kind domain.EntityKind, id uuid.UUID, state domain.SyncState, syncErr string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	return s.db.SetFields(ctx, table, id, map[string]any{
		"sync_state": string(state),
		"sync_error": syncErr,
	})
}

func (s *Store) EnqueueJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	return s.db.EnqueueJob(ctx, job)
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.db.GetJob(ctx, id)
}
