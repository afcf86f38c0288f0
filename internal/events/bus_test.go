package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/events"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/port"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func appEvent(phase events.Phase) events.ApplicationEvent {
	return events.ApplicationEvent{
		Meta:  events.Meta{Phase: phase},
		After: &domain.Application{Stage: domain.StageApproved},
	}
}

func TestBus_RunsHandlersInRegistrationOrder(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		events.On(bus, events.PostSave, name, func(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
			order = append(order, name)
			return nil
		})
	}

	errs := bus.Publish(context.Background(), store.New(memstore.New()), appEvent(events.PostSave))

	assert.Empty(t, errs)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_PhasesAndKindsAreSeparate(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	calls := 0
	events.On(bus, events.PreSave, "pre", func(context.Context, port.Store, events.ApplicationEvent) error {
		calls++
		return nil
	})
	events.On(bus, events.PostSave, "offer", func(context.Context, port.Store, events.OfferEvent) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), store.New(memstore.New()), appEvent(events.PostSave))

	assert.Zero(t, calls)
}

func TestBus_FailuresAreCollectedAndDoNotStopOthers(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	var observed []string
	bus.OnError = func(he events.HandlerError) { observed = append(observed, he.Handler) }
	ran := false

	events.On(bus, events.PostSave, "fails", func(context.Context, port.Store, events.ApplicationEvent) error {
		return errors.New("smtp down")
	})
	events.On(bus, events.PostSave, "panics", func(context.Context, port.Store, events.ApplicationEvent) error {
		panic("nil map")
	})
	events.On(bus, events.PostSave, "runs", func(context.Context, port.Store, events.ApplicationEvent) error {
		ran = true
		return nil
	})

	errs := bus.Publish(context.Background(), store.New(memstore.New()), appEvent(events.PostSave))

	require.Len(t, errs, 2)
	assert.Equal(t, "fails", errs[0].Handler)
	assert.Equal(t, events.KindApplication, errs[0].Kind)
	assert.Equal(t, []string{"fails", "panics"}, observed)
	assert.True(t, ran)
}

func TestBus_HandlerWritesUseTheGivenStore(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	s := store.New(memstore.New())
	app := &domain.Application{}
	require.NoError(t, s.SaveApplication(context.Background(), app))

	events.On(bus, events.PreSave, "history", func(ctx context.Context, tx port.Store, ev events.ApplicationEvent) error {
		return tx.AddStageHistory(ctx, &domain.StageHistory{ApplicationID: app.ID, ToStage: ev.After.Stage})
	})
	bus.Publish(context.Background(), s, appEvent(events.PreSave))

	history, err := s.ListStageHistory(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StageApproved, history[0].ToStage)
}

func TestRecorder_FiltersByTypeAndPhase(t *testing.T) {
	rec := &events.Recorder{}
	ctx := context.Background()

	rec.Publish(ctx, nil, appEvent(events.PreSave))
	rec.Publish(ctx, nil, appEvent(events.PostSave))
	rec.Publish(ctx, nil, events.OfferEvent{Meta: events.Meta{Phase: events.PostSave}})

	assert.Len(t, events.Of[events.ApplicationEvent](rec, events.PostSave), 1)
	assert.Len(t, events.Of[events.OfferEvent](rec, events.PostSave), 1)
	assert.Len(t, rec.Events(), 3)

	rec.Reset()
	assert.Empty(t, rec.Events())
}
