// Package store implements the repositories of the back-office on top of a
// small document-table primitive. Each table keeps one JSON document per
// record; key fields are indexed by the backend (generated columns in
// PostgreSQL, unique maps in memory).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/google/uuid"
)

// ErrNoDocument is returned by DocDB.Get when the id does not exist.
var ErrNoDocument = errors.New("document not found")

// DuplicateError is returned when a write violates a unique key.
type DuplicateError struct {
	Table string
	Key   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s on %s", e.Key, e.Table)
}

// DocDB is the storage primitive both backends implement.
type DocDB interface {
	Get(ctx context.Context, table string, id uuid.UUID) ([]byte, error)
	Put(ctx context.Context, table string, id uuid.UUID, doc []byte) error
	Find(ctx context.Context, table string, q Query) ([][]byte, error)
	Count(ctx context.Context, table string, where ...Cond) (int, error)
	Delete(ctx context.Context, table string, where ...Cond) (int, error)

	// SetFields overwrites top-level document fields in place.
	SetFields(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error
	// SetFieldIfEmpty writes value only when field is absent or empty and
	// reports whether it did.
	SetFieldIfEmpty(ctx context.Context, table string, id uuid.UUID, field, value string) (bool, error)

	// InTx runs fn inside a transaction; an error rolls everything back,
	// including jobs enqueued through the transactional DocDB.
	InTx(ctx context.Context, fn func(DocDB) error) error
	Ping(ctx context.Context) error

	JobStore
}

// JobStore is the durable queue behind the publication workers.
type JobStore interface {
	// EnqueueJob inserts job, or folds it into the pending job with the
	// same dedupe key. The stored job is returned.
	EnqueueJob(ctx context.Context, job *domain.Job) (*domain.Job, error)
	// ClaimJobs moves up to limit due jobs to in_flight. Jobs whose dedupe
	// key already has an in-flight job are skipped.
	ClaimJobs(ctx context.Context, limit int, now time.Time) ([]domain.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID, result []byte) error
	RetryJob(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error
	KillJob(ctx context.Context, id uuid.UUID, lastErr string) error
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	// RequeueStaleJobs returns in-flight jobs locked before cutoff to pending.
	RequeueStaleJobs(ctx context.Context, cutoff time.Time) (int, error)
}
