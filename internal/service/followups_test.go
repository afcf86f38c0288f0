package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlend struct {
	mu        sync.Mutex
	followups map[string][]domain.BlendFollowup
	errs      map[string]error
	calls     []string
}

func (f *fakeBlend) ListFollowups(ctx context.Context, loanID string) ([]domain.BlendFollowup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, loanID)
	if err := f.errs[loanID]; err != nil {
		return nil, err
	}
	return f.followups[loanID], nil
}

func creditReport() domain.BlendFollowup {
	return domain.BlendFollowup{
		ID:            "7254aeb7-5dd8-4d2b-9a61-6e1a0d6b3f10",
		ApplicationID: "69af5d15-1b7e-4f1d-8cf0-3c4c4f0e2a77",
		Type:          domain.FollowupDocumentRequest,
		Status:        "REQUESTED",
		Context:       map[string]any{"document": map[string]any{"title": "Credit Report"}},
	}
}

func (e *env) newLoan(t *testing.T, app *domain.Application, blendID, status string) *domain.Loan {
	t.Helper()
	loan := &domain.Loan{ApplicationID: app.ID, BlendLoanID: blendID, BlendStatus: status}
	require.NoError(t, e.store.SaveLoan(context.Background(), loan))
	return loan
}

func TestFollowupPoller_MirrorsDocumentRequest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	app := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageApproved })
	loan := e.newLoan(t, app, "blend-1", "Application completed - 100%")
	blend := &fakeBlend{followups: map[string][]domain.BlendFollowup{"blend-1": {creditReport()}}}
	poller := service.NewFollowupPoller(e.store, blend, e.outbox, e.metrics, 2, e.logger)

	res, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loans)
	assert.Equal(t, 1, res.Synced)

	got, err := e.store.GetFollowupByBlendID(ctx, "7254aeb7-5dd8-4d2b-9a61-6e1a0d6b3f10")
	require.NoError(t, err)
	assert.Equal(t, domain.FollowupDocumentRequest, got.Type)
	assert.Equal(t, "Credit Report", got.Description)
	assert.Equal(t, loan.ID, got.LoanID)
	assert.Equal(t, app.ID, got.ApplicationID)

	require.Len(t, e.jobs(domain.JobFollowupPublish, "crm:followup:"+got.ID.String()), 1)
	e.drain(t)
	assert.Equal(t, 1, e.crm.count(domain.KindFollowup))
}

func TestFollowupPoller_UnchangedFollowupIsNotRepublished(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	app := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageApproved })
	e.newLoan(t, app, "blend-1", "Application completed")
	blend := &fakeBlend{followups: map[string][]domain.BlendFollowup{"blend-1": {creditReport()}}}
	poller := service.NewFollowupPoller(e.store, blend, e.outbox, e.metrics, 1, e.logger)

	_, err := poller.Poll(ctx)
	require.NoError(t, err)
	e.drain(t)

	res, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Synced)
	assert.Empty(t, pending(e.jobs(domain.JobFollowupPublish, "")))
}

func TestFollowupPoller_SkipsIneligibleLoans(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	withdrawn := e.newApplication(t, f, func(a *domain.Application) {
		a.Stage = domain.StageApproved
		a.MortgageStatus = "Withdrawn"
	})
	closed := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageCustomerClosed })
	e.newLoan(t, withdrawn, "blend-w", "Application completed")
	e.newLoan(t, closed, "blend-c", "Application completed")
	blend := &fakeBlend{}
	poller := service.NewFollowupPoller(e.store, blend, e.outbox, e.metrics, 2, e.logger)

	res, err := poller.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, blend.calls)
}

func TestFollowupPoller_FailingLoanDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	a1 := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageApproved })
	a2 := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageApproved })
	e.newLoan(t, a1, "blend-bad", "Application completed")
	e.newLoan(t, a2, "blend-good", "Application completed")
	blend := &fakeBlend{
		followups: map[string][]domain.BlendFollowup{"blend-good": {creditReport()}},
		errs:      map[string]error{"blend-bad": errors.New("502 from provider")},
	}
	poller := service.NewFollowupPoller(e.store, blend, e.outbox, e.metrics, 1, e.logger)

	res, err := poller.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Synced)
}

func TestFollowupPoller_RejectedCredentialsAbort(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	app := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageApproved })
	e.newLoan(t, app, "blend-1", "Application completed")
	blend := &fakeBlend{errs: map[string]error{"blend-1": &domain.ErrConfiguration{Service: "blend", Status: 401}}}
	poller := service.NewFollowupPoller(e.store, blend, e.outbox, e.metrics, 1, e.logger)

	_, err := poller.Poll(ctx)

	var cfgErr *domain.ErrConfiguration
	assert.True(t, errors.As(err, &cfgErr))
}
