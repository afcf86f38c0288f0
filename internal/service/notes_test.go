package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotes_CreateAndList(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	app := e.newApplication(t, f, nil)
	svc := service.NewNoteService(e.store, e.outbox, e.logger)

	n, err := svc.Create(ctx, staff(), &service.NoteInput{ApplicationID: app.ID, Body: "  called the customer  "})
	require.NoError(t, err)
	assert.Equal(t, "called the customer", n.Body)
	assert.Equal(t, "ops@homeward.test", n.AuthorEmail)

	notes, err := svc.List(ctx, customerOf(f), app.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	_, err = svc.Create(ctx, staff(), &service.NoteInput{ApplicationID: app.ID, Body: " "})
	var verr *domain.ErrValidation
	assert.True(t, errors.As(err, &verr))

	stranger := uuid.New()
	_, err = svc.List(ctx, &domain.Principal{Role: domain.UserCustomer, CustomerID: &stranger}, app.ID)
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestNotes_Republish(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	app := e.newApplication(t, f, nil)
	e.drain(t)
	svc := service.NewNoteService(e.store, e.outbox, e.logger)

	_, err := svc.Republish(ctx, customerOf(f), &service.RepublishInput{Kind: "application", IDs: []uuid.UUID{app.ID}})
	var forbidden *domain.ErrForbidden
	require.True(t, errors.As(err, &forbidden))

	_, err = svc.Republish(ctx, staff(), &service.RepublishInput{Kind: "invoice", IDs: []uuid.UUID{app.ID}})
	var verr *domain.ErrValidation
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "kind", verr.Field)

	n, err := svc.Republish(ctx, staff(), &service.RepublishInput{Kind: "application", IDs: []uuid.UUID{app.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pending(e.jobs(domain.JobCRMUpsert, "crm:application:"+app.ID.String())), 1)

	got, err := e.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncDirty, got.SyncState)
}
