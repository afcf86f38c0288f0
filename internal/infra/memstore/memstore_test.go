package memstore_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, db *memstore.DB, key string, runAt time.Time) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(domain.JobCRMUpsert, key, map[string]string{"k": key}, runAt, 5)
	require.NoError(t, err)
	out, err := db.EnqueueJob(context.Background(), job)
	require.NoError(t, err)
	return out
}

func TestEnqueue_FoldsPendingDuplicates(t *testing.T) {
	db := memstore.New()
	now := time.Now()

	first := enqueue(t, db, "crm:application:1", now.Add(time.Minute))
	second := enqueue(t, db, "crm:application:1", now)

	assert.Equal(t, first.ID, second.ID)
	assert.WithinDuration(t, now, second.RunAt, time.Millisecond)
	assert.Len(t, db.Jobs(), 1)
}

func TestClaim_SkipsKeysAlreadyInFlight(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	now := time.Now()

	enqueue(t, db, "crm:offer:1", now)
	claimed, err := db.ClaimJobs(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)

	// A new pending job for the same entity waits for the in-flight one.
	enqueue(t, db, "crm:offer:1", now)
	enqueue(t, db, "crm:offer:2", now)
	claimed, err = db.ClaimJobs(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "crm:offer:2", claimed[0].DedupeKey)
}

func TestClaim_RespectsRunAt(t *testing.T) {
	db := memstore.New()
	now := time.Now()
	enqueue(t, db, "later", now.Add(time.Hour))

	claimed, err := db.ClaimJobs(context.Background(), 10, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestRetry_SupersededByNewerPendingJob(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	now := time.Now()

	enqueue(t, db, "k", now)
	claimed, err := db.ClaimJobs(ctx, 1, now)
	require.NoError(t, err)
	newer := enqueue(t, db, "k", now)

	require.NoError(t, db.RetryJob(ctx, claimed[0].ID, now.Add(time.Second), "503"))

	old, err := db.GetJob(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, old.Status)
	pending, err := db.GetJob(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, pending.Status)
}

func TestRequeueStaleJobs(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	now := time.Now()

	enqueue(t, db, "k", now)
	_, err := db.ClaimJobs(ctx, 1, now.Add(-time.Hour))
	require.NoError(t, err)

	n, err := db.RequeueStaleJobs(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFind_OrdersNumbersNumerically(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	for _, order := range []int{10, 2, 1} {
		raw := []byte(`{"name":"t` + uuid.NewString() + `","order":` + strconv.Itoa(order) + `}`)
		require.NoError(t, db.Put(ctx, store.TableTasks, uuid.New(), raw))
	}

	rows, err := db.Find(ctx, store.TableTasks, store.Query{OrderBy: "order"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Contains(t, string(rows[0]), `"order":1`)
	assert.Contains(t, string(rows[2]), `"order":10`)
}

func TestPut_CompositeUniqueKey(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	app, disclosure := uuid.New(), uuid.New()
	doc := []byte(`{"application_id":"` + app.String() + `","disclosure_id":"` + disclosure.String() + `"}`)

	require.NoError(t, db.Put(ctx, store.TableAcknowledgements, uuid.New(), doc))
	err := db.Put(ctx, store.TableAcknowledgements, uuid.New(), doc)

	var dup *store.DuplicateError
	assert.ErrorAs(t, err, &dup)
}

func TestFind_NotMatchesMissingFields(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	require.NoError(t, db.Put(ctx, store.TableApplications, uuid.New(), []byte(`{"stage":"Approved"}`)))
	require.NoError(t, db.Put(ctx, store.TableApplications, uuid.New(), []byte(`{"stage":"Approved","filter_status":["Archived"]}`)))

	n, err := db.Count(ctx, store.TableApplications, store.Not(store.HasElement("filter_status", "Archived")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
