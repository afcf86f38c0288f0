package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/port"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(memstore.New())
}

func TestStore_SaveAndGetApplication(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	app := &domain.Application{Stage: domain.StageApproved, ProductOffering: domain.ProductBuySell}
	require.NoError(t, s.SaveApplication(ctx, app))
	require.NotEqual(t, uuid.Nil, app.ID)

	got, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageApproved, got.Stage)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetOffer(context.Background(), uuid.New())

	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "offer", nf.Resource)
}

func TestStore_UniqueEmailIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveCustomer(ctx, &domain.Customer{Email: "Jane@Example.com", Name: "Jane Doe"}))
	err := s.SaveCustomer(ctx, &domain.Customer{Email: "jane@example.com", Name: "Other"})

	var conflict *domain.ErrConflict
	assert.True(t, errors.As(err, &conflict))
}

func TestStore_EmptySalesforceIDsMayRepeat(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveApplication(ctx, &domain.Application{}))
	require.NoError(t, s.SaveApplication(ctx, &domain.Application{}))
}

func TestStore_SetSalesforceIDIfEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	app := &domain.Application{}
	require.NoError(t, s.SaveApplication(ctx, app))

	ok, err := s.SetSalesforceIDIfEmpty(ctx, domain.KindApplication, app.ID, "a0X1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetSalesforceIDIfEmpty(ctx, domain.KindApplication, app.ID, "a0X2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetApplicationBySalesforceID(ctx, "a0X1")
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	var id uuid.UUID
	err := s.WithTx(ctx, func(tx port.Store) error {
		app := &domain.Application{}
		if err := tx.SaveApplication(ctx, app); err != nil {
			return err
		}
		id = app.ID
		job, _ := domain.NewJob(domain.JobCRMUpsert, "k", domain.EntityRef{Kind: domain.KindApplication, ID: app.ID}, time.Now(), 3)
		if _, err := tx.EnqueueJob(ctx, job); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetApplication(ctx, id)
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
	assert.Empty(t, s.DB().(*memstore.DB).Jobs())
}

func TestStore_ListApplicationsFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	agent := uuid.New()

	austin := &domain.Application{
		Stage:              domain.StageApproved,
		ProductOffering:    domain.ProductBuySell,
		HomeBuyingLocation: &domain.Address{City: "Austin", State: "TX"},
		BuyingAgentID:      &agent,
	}
	atlanta := &domain.Application{
		Stage:           domain.StageOptionPeriod,
		ProductOffering: domain.ProductBuyOnly,
		OfferAddress:    &domain.Address{Street: "12 Peachtree St", City: "Atlanta", State: "GA"},
	}
	archived := &domain.Application{
		Stage:        domain.StageApproved,
		FilterStatus: []domain.FilterStatus{domain.FilterArchived},
	}
	for _, a := range []*domain.Application{austin, atlanta, archived} {
		require.NoError(t, s.SaveApplication(ctx, a))
	}

	tests := []struct {
		name   string
		filter port.ApplicationFilter
		want   []uuid.UUID
	}{
		{"default hides archived", port.ApplicationFilter{}, []uuid.UUID{atlanta.ID, austin.ID}},
		{"include archived", port.ApplicationFilter{IncludeArchived: true}, []uuid.UUID{archived.ID, atlanta.ID, austin.ID}},
		{"stage", port.ApplicationFilter{Stages: []domain.ApplicationStage{domain.StageOptionPeriod}}, []uuid.UUID{atlanta.ID}},
		{"product", port.ApplicationFilter{ProductOffering: domain.ProductBuySell}, []uuid.UUID{austin.ID}},
		{"address matches either location", port.ApplicationFilter{Address: "peachtree"}, []uuid.UUID{atlanta.ID}},
		{"address matches city", port.ApplicationFilter{Address: "aust"}, []uuid.UUID{austin.ID}},
		{"agent", port.ApplicationFilter{AgentID: &agent}, []uuid.UUID{austin.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps, total, err := s.ListApplications(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), total)
			got := make([]uuid.UUID, 0, len(apps))
			for _, a := range apps {
				got = append(got, a.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestStore_ListApplicationsDateRangeIsInclusive(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	clock := day.Add(23 * time.Hour)
	s := newStore(t).WithClock(func() time.Time { return clock })

	app := &domain.Application{}
	require.NoError(t, s.SaveApplication(ctx, app))

	to := domain.NewDate(day)
	_, total, err := s.ListApplications(ctx, port.ApplicationFilter{CreatedFrom: &to, CreatedTo: &to})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	before := domain.NewDate(day.AddDate(0, 0, -1))
	_, total, err = s.ListApplications(ctx, port.ApplicationFilter{CreatedTo: &before})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestStore_ListApplicationsPaging(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveApplication(ctx, &domain.Application{}))
	}

	apps, total, err := s.ListApplications(ctx, port.ApplicationFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, apps, 2)
}

func TestStore_FindAgentsByEmailOrPhone(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := &domain.Agent{Email: "agent@realty.com", Phone: "5125550100"}
	b := &domain.Agent{Email: "other@realty.com", Phone: "5125550199"}
	require.NoError(t, s.SaveAgent(ctx, a))
	require.NoError(t, s.SaveAgent(ctx, b))

	found, err := s.FindAgents(ctx, "AGENT@realty.com", "5125550199")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
