package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) customerUser(t *testing.T, f *fixtures) (*domain.User, *domain.Principal) {
	t.Helper()
	u := &domain.User{Email: f.customer.Email, Role: domain.UserCustomer, CustomerID: &f.customer.ID}
	require.NoError(t, e.store.SaveUser(context.Background(), u))
	p := customerOf(f)
	p.UserID = u.ID
	return u, p
}

func TestUsers_MeIncludesCustomer(t *testing.T) {
	e := newEnv(t)
	f := e.seed(t)
	_, p := e.customerUser(t, f)
	svc := service.NewUserService(e.store, e.writer, e.logger)

	me, err := svc.Me(context.Background(), p)
	require.NoError(t, err)

	require.NotNil(t, me.Customer)
	assert.Equal(t, "Ada Lovelace", me.Customer.Name)
	assert.Nil(t, me.Agent)
}

func TestUsers_PatchMeUpdatesContact(t *testing.T) {
	e := newEnv(t)
	f := e.seed(t)
	_, p := e.customerUser(t, f)
	svc := service.NewUserService(e.store, e.writer, e.logger)

	me, err := svc.PatchMe(context.Background(), p, &service.ProfileInput{Name: ptr(" Ada King "), Phone: ptr("+1 512 555 0199")})
	require.NoError(t, err)

	assert.Equal(t, "Ada King", me.Customer.Name)
	assert.Equal(t, "5125550199", me.Customer.Phone)
}

func TestUsers_RecordLoginRepublishesAndQueuesReminder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	incomplete := e.newApplication(t, f, nil)
	qualified := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageQualified })
	e.drain(t)
	_, p := e.customerUser(t, f)
	svc := service.NewUserService(e.store, e.writer, e.logger)

	me, err := svc.PatchMe(ctx, p, &service.ProfileInput{RecordLogin: true})
	require.NoError(t, err)

	assert.Equal(t, 1, me.LoginCount)
	require.NotNil(t, me.FirstLogin)
	assert.Equal(t, me.FirstLogin, me.LastLogin)
	assert.Len(t, pending(e.jobs(domain.JobCRMUpsert, "crm:application:"+incomplete.ID.String())), 1)
	assert.Len(t, pending(e.jobs(domain.JobCRMUpsert, "crm:application:"+qualified.ID.String())), 1)
	assert.Len(t, e.jobs(domain.JobEmail, "email:incomplete_reminder:"+incomplete.ID.String()), 1)
	assert.Empty(t, e.jobs(domain.JobEmail, "email:incomplete_reminder:"+qualified.ID.String()))
}

func TestUsers_ApplicationsAreScoped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	mine := e.newApplication(t, f, nil)
	other := &domain.Customer{Email: "eve@example.com"}
	require.NoError(t, e.store.SaveCustomer(ctx, other))
	_, err := e.writer.SaveApplication(ctx, &domain.Application{
		CustomerID: other.ID, Stage: domain.StageIncomplete, ProductOffering: domain.ProductBuyOnly,
	}, domain.SourceExternal)
	require.NoError(t, err)
	_, p := e.customerUser(t, f)
	svc := service.NewUserService(e.store, e.writer, e.logger)

	apps, total, err := svc.Applications(ctx, p, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, apps, 1)
	assert.Equal(t, mine.ID, apps[0].ID)

	_, _, err = svc.Applications(ctx, staff(), 1, 20)
	var forbidden *domain.ErrForbidden
	assert.True(t, errors.As(err, &forbidden))
	_, _, err = svc.AgentApplications(ctx, p, 1, 20)
	assert.True(t, errors.As(err, &forbidden))
}
