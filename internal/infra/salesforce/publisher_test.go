package salesforce_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/infra/salesforce"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type upsertCall struct {
	Object string
	SFID   string
	Fields map[string]any
}

type fakeCRM struct {
	mu    sync.Mutex
	calls []upsertCall
	next  int
	err   error
}

func (f *fakeCRM) Upsert(ctx context.Context, object, sfid string, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upsertCall{object, sfid, fields})
	if f.err != nil {
		return "", f.err
	}
	if sfid != "" {
		return sfid, nil
	}
	f.next++
	return fmt.Sprintf("%s-%d", object, f.next), nil
}

func seedApplication(t *testing.T, s *store.Store) *domain.Application {
	t.Helper()
	ctx := context.Background()
	c := &domain.Customer{Email: "ada@example.com", Name: "Ada Lovelace"}
	require.NoError(t, s.SaveCustomer(ctx, c))
	app := &domain.Application{CustomerID: c.ID, Stage: domain.StageIncomplete, ProductOffering: domain.ProductBuySell}
	require.NoError(t, s.SaveApplication(ctx, app))
	return app
}

func TestPublisher_RecordsIDOnFirstSuccess(t *testing.T) {
	ctx := context.Background()
	s := store.New(memstore.New())
	app := seedApplication(t, s)
	crm := &fakeCRM{}
	p := salesforce.NewPublisher(s, crm, zap.NewNop())

	sfid, err := p.Upsert(ctx, domain.KindApplication, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Account-1", sfid)

	got, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Account-1", got.SalesforceID)
	assert.Equal(t, domain.SyncPublished, got.SyncState)

	_, err = p.Upsert(ctx, domain.KindApplication, app.ID)
	require.NoError(t, err)
	require.Len(t, crm.calls, 2)
	assert.Equal(t, "Account-1", crm.calls[1].SFID, "second publication patches")
	assert.Equal(t, "ada@example.com", crm.calls[0].Fields["PersonEmail"])
}

func TestPublisher_PublishesParentsFirst(t *testing.T) {
	ctx := context.Background()
	s := store.New(memstore.New())
	app := seedApplication(t, s)
	loan := &domain.Loan{ApplicationID: app.ID, BlendLoanID: "blend-1", BlendStatus: "Application completed"}
	require.NoError(t, s.SaveLoan(ctx, loan))
	f := &domain.Followup{ApplicationID: app.ID, LoanID: loan.ID, BlendFollowupID: "7254aeb7", Type: "DOCUMENT_REQUEST", Description: "Credit Report"}
	require.NoError(t, s.SaveFollowup(ctx, f))
	crm := &fakeCRM{}

	_, err := salesforce.NewPublisher(s, crm, zap.NewNop()).Upsert(ctx, domain.KindFollowup, f.ID)
	require.NoError(t, err)

	require.Len(t, crm.calls, 3)
	assert.Equal(t, "Account", crm.calls[0].Object, "the loan's parent is published while projecting the loan")
	assert.Equal(t, "Loan__c", crm.calls[1].Object)
	assert.Equal(t, "Account-1", crm.calls[1].Fields["Application__c"])
	assert.Equal(t, "Followup__c", crm.calls[2].Object)
	assert.Equal(t, "Credit Report", crm.calls[2].Fields["Description__c"])
	assert.Equal(t, "Loan__c-2", crm.calls[2].Fields["Loan__c"])
}

func TestPublisher_FailureKeepsEntityDirty(t *testing.T) {
	ctx := context.Background()
	s := store.New(memstore.New())
	app := seedApplication(t, s)
	crm := &fakeCRM{err: &domain.ErrCRM{Status: 500, Code: "UNKNOWN_EXCEPTION", Message: "boom"}}

	_, err := salesforce.NewPublisher(s, crm, zap.NewNop()).Upsert(ctx, domain.KindApplication, app.ID)
	var crmErr *domain.ErrCRM
	require.True(t, errors.As(err, &crmErr))

	got, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SalesforceID)
	assert.Equal(t, domain.SyncDirty, got.SyncState)
	assert.Contains(t, got.SyncError, "UNKNOWN_EXCEPTION")
}

func TestPublisher_KeepsExistingIDFromConcurrentSync(t *testing.T) {
	ctx := context.Background()
	s := store.New(memstore.New())
	app := seedApplication(t, s)
	crm := &blockingCRM{fakeCRM: &fakeCRM{}, before: func() {
		// inbound sync links the record while the create is in flight
		_, err := s.SetSalesforceIDIfEmpty(ctx, domain.KindApplication, app.ID, "001FROMCRM")
		require.NoError(t, err)
	}}

	_, err := salesforce.NewPublisher(s, crm, zap.NewNop()).Upsert(ctx, domain.KindApplication, app.ID)
	require.NoError(t, err)
	got, _ := s.GetApplication(ctx, app.ID)
	assert.Equal(t, "001FROMCRM", got.SalesforceID)
}

type blockingCRM struct {
	*fakeCRM
	before func()
}

func (b *blockingCRM) Upsert(ctx context.Context, object, sfid string, fields map[string]any) (string, error) {
	b.before()
	return b.fakeCRM.Upsert(ctx, object, sfid, fields)
}
