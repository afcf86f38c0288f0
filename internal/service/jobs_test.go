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

type fakePartners struct {
	configs map[string]*domain.PartnerConfig
}

func (f *fakePartners) GetPartnerConfig(ctx context.Context, slug string) (*domain.PartnerConfig, error) {
	cfg, ok := f.configs[slug]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "partner", ID: slug}
	}
	return cfg, nil
}

func TestJobs_TerminalCRMErrorMarksEntityFailed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	e.crm.err = &domain.ErrCRM{Status: 400, Code: "INVALID_FIELD", Message: "No such column 'Foo__c'"}
	app := e.newApplication(t, f, nil)

	e.drain(t)

	jobs := e.jobs(domain.JobCRMUpsert, "crm:application:"+app.ID.String())
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobDead, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)

	got, err := e.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncFailed, got.SyncState)
	assert.Contains(t, got.SyncError, "INVALID_FIELD")
}

func TestJobs_TransientCRMErrorIsRetried(t *testing.T) {
	e := newEnv(t)
	f := e.seed(t)
	e.crm.err = &domain.ErrCRM{Status: 500, Code: "UNKNOWN_EXCEPTION", Message: "try again"}
	app := e.newApplication(t, f, nil)

	e.drain(t)

	jobs := e.jobs(domain.JobCRMUpsert, "crm:application:"+app.ID.String())
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobPending, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Contains(t, jobs[0].LastError, "UNKNOWN_EXCEPTION")
}

func TestJobs_EmailCarriesPartnerBranding(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	partners := &fakePartners{configs: map[string]*domain.PartnerConfig{
		"acme-realty": {Slug: "acme-realty", DisplayName: "Acme Realty", LogoURL: "https://cdn.test/acme.png"},
	}}
	templates := func(t domain.EmailTemplate) (string, error) { return "tpl-" + string(t), nil }
	service.NewJobHandlers(e.store, e.crm, nil, e.inbound(), e.mailer, templates, partners, e.metrics, e.logger).Register(e.runner)

	app := e.newApplication(t, f, nil)
	app.ApexPartnerSlug = "acme-realty"
	_, err := e.writer.SaveApplication(ctx, app, domain.SourceExternal)
	require.NoError(t, err)
	e.drain(t)

	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, "tpl-partner_welcome_customer", e.mailer.sent[0].TemplateID)
	assert.Equal(t, "Acme Realty", e.mailer.sent[0].Data["partner_name"])
	assert.Equal(t, "https://cdn.test/acme.png", e.mailer.sent[0].Data["partner_logo_url"])
}

func TestJobs_UnknownPartnerDoesNotBlockEmail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	templates := func(t domain.EmailTemplate) (string, error) { return "tpl-" + string(t), nil }
	service.NewJobHandlers(e.store, e.crm, nil, e.inbound(), e.mailer, templates, &fakePartners{}, e.metrics, e.logger).Register(e.runner)

	app := e.newApplication(t, f, nil)
	app.ApexPartnerSlug = "ghost"
	_, err := e.writer.SaveApplication(ctx, app, domain.SourceExternal)
	require.NoError(t, err)
	e.drain(t)

	require.Len(t, e.mailer.sent, 1)
	assert.NotContains(t, e.mailer.sent[0].Data, "partner_name")
}

func TestJobs_MailerFailureRetries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.seed(t)
	e.mailer.err = errors.New("sendgrid: 503")
	app := e.newApplication(t, f, func(a *domain.Application) { a.Stage = domain.StageQualified })
	app.Stage = domain.StageApproved
	_, err := e.writer.SaveApplication(ctx, app, domain.SourceCRMSync)
	require.NoError(t, err)

	e.drain(t)

	jobs := e.jobs(domain.JobEmail, "email:stage_approved:")
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobPending, jobs[0].Status)
	assert.Empty(t, e.mailer.templates())
}
