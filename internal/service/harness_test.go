package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/events"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/queue"
	"github.com/homeward/backoffice-go/internal/service"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================================
// Fakes
// ============================================================

type fakePublisher struct {
	mu    sync.Mutex
	store *store.Store
	calls []domain.EntityRef
	err   error
}

func (f *fakePublisher) Upsert(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.EntityRef{Kind: kind, ID: id})
	if f.err != nil {
		return "", f.err
	}
	sfid := fmt.Sprintf("SF-%s-%d", kind, len(f.calls))
	if f.store != nil {
		if _, err := f.store.SetSalesforceIDIfEmpty(ctx, kind, id, sfid); err != nil {
			return "", err
		}
		if err := f.store.SetSyncState(ctx, kind, id, domain.SyncPublished, ""); err != nil {
			return "", err
		}
	}
	return sfid, nil
}

func (f *fakePublisher) count(kind domain.EntityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

type sentEmail struct {
	TemplateID string
	To         []domain.Recipient
	Data       map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, templateID string, to []domain.Recipient, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{TemplateID: templateID, To: to, Data: data})
	return nil
}

func (f *fakeMailer) templates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.TemplateID)
	}
	return out
}

// ============================================================
// Harness
// ============================================================

// env is a fully wired write path over the in-memory store.
type env struct {
	db      *memstore.DB
	store   *store.Store
	bus     *events.Bus
	writer  *service.Writer
	acks    *service.AcknowledgementAssigner
	engine  *service.Engine
	outbox  *service.Outbox
	metrics *observability.Metrics
	crm     *fakePublisher
	mailer  *fakeMailer
	runner  *queue.Runner
	logger  *zap.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop()
	db := memstore.New()
	s := store.New(db)
	bus := events.NewBus(logger)
	writer := service.NewWriter(s, bus, logger)
	acks := service.NewAcknowledgementAssigner(s, writer, logger)
	engine := service.NewEngine(s, writer, acks, logger)
	outbox := service.NewOutbox(5, logger)
	metrics := observability.NewMetrics()
	service.RegisterSignalHandlers(bus, service.NewSignals(engine, acks, outbox, logger), metrics)

	e := &env{
		db:      db,
		store:   s,
		bus:     bus,
		writer:  writer,
		acks:    acks,
		engine:  engine,
		outbox:  outbox,
		metrics: metrics,
		crm:     &fakePublisher{store: s},
		mailer:  &fakeMailer{},
		logger:  logger,
	}
	e.runner = queue.NewRunner(db, queue.Config{
		Workers:     1,
		MaxAttempts: 3,
		BaseBackoff: time.Minute,
		MaxBackoff:  time.Hour,
	}, metrics, logger)
	inbound := service.NewInboundSync(s, writer, engine, outbox, logger)
	templates := func(t domain.EmailTemplate) (string, error) { return "tpl-" + string(t), nil }
	service.NewJobHandlers(s, e.crm, nil, inbound, e.mailer, templates, nil, metrics, logger).Register(e.runner)
	return e
}

func (e *env) drain(t *testing.T) int {
	t.Helper()
	n, err := e.runner.Drain(context.Background())
	require.NoError(t, err)
	return n
}

// jobs returns the jobs of one kind, optionally only those with a dedupe
// key prefix.
func (e *env) jobs(kind domain.JobKind, prefix string) []domain.Job {
	var out []domain.Job
	for _, j := range e.db.Jobs() {
		if j.Kind != kind {
			continue
		}
		if prefix != "" && (len(j.DedupeKey) < len(prefix) || j.DedupeKey[:len(prefix)] != prefix) {
			continue
		}
		out = append(out, j)
	}
	return out
}

// ============================================================
// Fixtures
// ============================================================

type fixtures struct {
	customer         *domain.Customer
	serviceAgreement *domain.Disclosure
	eConsent         *domain.Disclosure
	tasks            map[domain.TaskCategory]*domain.Task
}

// seed installs the reference data every engine run needs: a generic
// checklist, a Texas mortgage task and two generic disclosures.
func (e *env) seed(t *testing.T) *fixtures {
	t.Helper()
	ctx := context.Background()
	f := &fixtures{tasks: map[domain.TaskCategory]*domain.Task{}}

	f.customer = &domain.Customer{Email: "ada@example.com", Name: "Ada Lovelace"}
	require.NoError(t, e.store.SaveCustomer(ctx, f.customer))

	order := 0
	for _, cat := range []domain.TaskCategory{
		domain.TaskRealEstateAgent, domain.TaskBuyingSituation, domain.TaskDisclosures,
		domain.TaskPhotoUpload, domain.TaskExistingProperty,
	} {
		order++
		task := &domain.Task{Name: string(cat), Category: cat, Order: order}
		require.NoError(t, e.store.SaveTask(ctx, task))
		f.tasks[cat] = task
	}
	mortgage := &domain.Task{Name: "Homeward mortgage", Category: domain.TaskHomewardMortgage, State: "TX", Order: 10}
	require.NoError(t, e.store.SaveTask(ctx, mortgage))
	f.tasks[domain.TaskHomewardMortgage] = mortgage

	f.serviceAgreement = &domain.Disclosure{Name: "Service agreement", Type: domain.DisclosureServiceAgreement, Active: true}
	require.NoError(t, e.store.SaveDisclosure(ctx, f.serviceAgreement))
	f.eConsent = &domain.Disclosure{Name: "E-consent", Type: domain.DisclosureEConsent, Active: true}
	require.NoError(t, e.store.SaveDisclosure(ctx, f.eConsent))
	return f
}

func (e *env) newApplication(t *testing.T, f *fixtures, mutate func(*domain.Application)) *domain.Application {
	t.Helper()
	app := &domain.Application{
		CustomerID:         f.customer.ID,
		Stage:              domain.StageIncomplete,
		ProductOffering:    domain.ProductBuyOnly,
		LeadStatus:         domain.LeadNew,
		HomeBuyingLocation: &domain.Address{City: "Austin", State: "TX"},
	}
	if mutate != nil {
		mutate(app)
	}
	_, err := e.writer.SaveApplication(context.Background(), app, domain.SourceExternal)
	require.NoError(t, err)
	return app
}

func (e *env) statusOf(t *testing.T, appID uuid.UUID, cat domain.TaskCategory) (domain.TaskProgress, bool) {
	t.Helper()
	statuses, err := e.store.ListTaskStatuses(context.Background(), appID)
	require.NoError(t, err)
	for _, st := range statuses {
		if st.Category == cat {
			return st.Status, true
		}
	}
	return "", false
}

func staff() *domain.Principal {
	return &domain.Principal{UserID: uuid.New(), Email: "ops@homeward.test", Role: domain.UserStaff}
}

func customerOf(f *fixtures) *domain.Principal {
	id := f.customer.ID
	return &domain.Principal{UserID: uuid.New(), Email: f.customer.Email, Role: domain.UserCustomer, CustomerID: &id}
}
