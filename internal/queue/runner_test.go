package queue_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/queue"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newRunner(t *testing.T, maxAttempts int) (*queue.Runner, *memstore.DB, *clock) {
	t.Helper()
	db := memstore.New()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := queue.NewRunner(db, queue.Config{
		Workers:     2,
		MaxAttempts: maxAttempts,
		BaseBackoff: time.Minute,
		MaxBackoff:  10 * time.Minute,
	}, observability.NewMetrics(), zap.NewNop()).WithClock(clk.now)
	return r, db, clk
}

func enqueue(t *testing.T, db *memstore.DB, kind domain.JobKind, key string, runAt time.Time) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(kind, key, map[string]string{"k": key}, runAt, 0)
	require.NoError(t, err)
	stored, err := db.EnqueueJob(context.Background(), job)
	require.NoError(t, err)
	return stored
}

func TestRunner_CompletesSuccessfulJobs(t *testing.T) {
	r, db, clk := newRunner(t, 3)
	r.Register(domain.JobEmail, func(ctx context.Context, job domain.Job) ([]byte, error) {
		return []byte(`{"sent":true}`), nil
	})
	job := enqueue(t, db, domain.JobEmail, "", clk.now())

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, got.Status)
	assert.JSONEq(t, `{"sent":true}`, string(got.Result))
}

func TestRunner_RetriesWithBackoffThenSucceeds(t *testing.T) {
	r, db, clk := newRunner(t, 5)
	calls := 0
	r.Register(domain.JobCRMUpsert, func(ctx context.Context, job domain.Job) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, &domain.ErrCRM{Status: 500, Code: "UNKNOWN_EXCEPTION"}
		}
		return nil, nil
	})
	job := enqueue(t, db, domain.JobCRMUpsert, "crm:offer:1", clk.now())

	_, err := r.Drain(context.Background())
	require.NoError(t, err)
	got, _ := db.GetJob(context.Background(), job.ID)
	assert.Equal(t, domain.JobPending, got.Status)
	assert.True(t, got.RunAt.After(clk.now()), "retry must be scheduled in the future")
	assert.Contains(t, got.LastError, "UNKNOWN_EXCEPTION")

	clk.advance(time.Hour)
	_, err = r.Drain(context.Background())
	require.NoError(t, err)
	got, _ = db.GetJob(context.Background(), job.ID)
	assert.Equal(t, domain.JobDone, got.Status)
	assert.Equal(t, 2, got.Attempts)
}

func TestRunner_TerminalErrorsAreDeadLettered(t *testing.T) {
	r, db, clk := newRunner(t, 5)
	var dead []domain.Job
	r.OnDead = func(ctx context.Context, job domain.Job, err error) { dead = append(dead, job) }
	r.Register(domain.JobFollowupPublish, func(ctx context.Context, job domain.Job) ([]byte, error) {
		return nil, &domain.ErrCRM{Status: 400, Code: "ENTITY_IS_DELETED", Message: "entity is deleted"}
	})
	job := enqueue(t, db, domain.JobFollowupPublish, "crm:followup:1", clk.now())

	_, err := r.Drain(context.Background())
	require.NoError(t, err)

	got, _ := db.GetJob(context.Background(), job.ID)
	assert.Equal(t, domain.JobDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
}

func TestRunner_ExhaustedRetriesAreDeadLettered(t *testing.T) {
	r, db, clk := newRunner(t, 2)
	deadCount := 0
	r.OnDead = func(context.Context, domain.Job, error) { deadCount++ }
	r.Register(domain.JobCRMUpsert, func(ctx context.Context, job domain.Job) ([]byte, error) {
		return nil, errors.New("connection reset")
	})
	job := enqueue(t, db, domain.JobCRMUpsert, "crm:loan:1", clk.now())

	for i := 0; i < 3; i++ {
		_, err := r.Drain(context.Background())
		require.NoError(t, err)
		clk.advance(time.Hour)
	}

	got, _ := db.GetJob(context.Background(), job.ID)
	assert.Equal(t, domain.JobDead, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 1, deadCount)
}

func TestRunner_SkippedJobsComplete(t *testing.T) {
	r, db, clk := newRunner(t, 3)
	r.Register(domain.JobEmail, func(ctx context.Context, job domain.Job) ([]byte, error) {
		return nil, fmt.Errorf("application moved on: %w", queue.ErrSkip)
	})
	job := enqueue(t, db, domain.JobEmail, "", clk.now())

	_, err := r.Drain(context.Background())
	require.NoError(t, err)
	got, _ := db.GetJob(context.Background(), job.ID)
	assert.Equal(t, domain.JobDone, got.Status)
}

func TestRunner_UnknownKindIsDead(t *testing.T) {
	r, db, clk := newRunner(t, 3)
	job := enqueue(t, db, domain.JobContractPDF, "", clk.now())

	_, err := r.Drain(context.Background())
	require.NoError(t, err)
	got, _ := db.GetJob(context.Background(), job.ID)
	assert.Equal(t, domain.JobDead, got.Status)
	assert.Contains(t, got.LastError, "no handler")
}

func TestRunner_FutureJobsWait(t *testing.T) {
	r, db, clk := newRunner(t, 3)
	ran := false
	r.Register(domain.JobEmail, func(context.Context, domain.Job) ([]byte, error) {
		ran = true
		return nil, nil
	})
	enqueue(t, db, domain.JobEmail, "", clk.now().Add(45*time.Minute))

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, ran)

	clk.advance(45 * time.Minute)
	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, ran)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	db := memstore.New()
	r := queue.NewRunner(db, queue.Config{Workers: 1, PollInterval: 5 * time.Millisecond}, observability.NewMetrics(), zap.NewNop())
	done := make(chan struct{})
	r.Register(domain.JobEmail, func(context.Context, domain.Job) ([]byte, error) {
		close(done)
		return nil, nil
	})
	job, err := domain.NewJob(domain.JobEmail, "", map[string]string{}, time.Now().Add(-time.Second), 0)
	require.NoError(t, err)
	_, err = db.EnqueueJob(context.Background(), job)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed")
	}
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want queue.Decision
	}{
		{"entity deleted", &domain.ErrCRM{Status: 400, Code: "ENTITY_IS_DELETED"}, queue.Terminal},
		{"invalid field", &domain.ErrCRM{Status: 400, Code: "INVALID_FIELD"}, queue.Terminal},
		{"code in message", errors.New("upsert failed: INVALID_FIELD: No such column"), queue.Terminal},
		{"wrapped crm error", fmt.Errorf("publish: %w", &domain.ErrExternalService{Service: "salesforce", Err: &domain.ErrCRM{Code: "ENTITY_IS_DELETED"}}), queue.Terminal},
		{"unknown exception", &domain.ErrCRM{Status: 500, Code: "UNKNOWN_EXCEPTION"}, queue.Retry},
		{"other crm code", &domain.ErrCRM{Status: 400, Code: "UNABLE_TO_LOCK_ROW"}, queue.Retry},
		{"configuration", &domain.ErrConfiguration{Service: "salesforce", Status: 401}, queue.Terminal},
		{"validation", domain.NewValidationError("offer", "missing"), queue.Terminal},
		{"not found", &domain.ErrNotFound{Resource: "offer", ID: uuid.NewString()}, queue.Terminal},
		{"transport", fmt.Errorf("dial: %w", timeoutErr{}), queue.Retry},
		{"deadline", context.DeadlineExceeded, queue.Retry},
		{"circuit open", gobreaker.ErrOpenState, queue.Retry},
		{"external 5xx", &domain.ErrExternalService{Service: "blend", Err: errors.New("status 502")}, queue.Retry},
		{"plain", errors.New("boom"), queue.Retry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queue.Classify(tt.err))
		})
	}
}
