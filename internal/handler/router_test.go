package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/events"
	"github.com/homeward/backoffice-go/internal/handler"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/service"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const webhookKey = "sf-webhook-key"

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type testAPI struct {
	store  *store.Store
	tokens *service.TokenService
	router http.Handler
}

func newTestAPI(t *testing.T, pinger handler.Pinger) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	s := store.New(memstore.New())
	writer := service.NewWriter(s, events.NewBus(logger), logger)
	acks := service.NewAcknowledgementAssigner(s, writer, logger)
	engine := service.NewEngine(s, writer, acks, logger)
	outbox := service.NewOutbox(5, logger)
	tokens := service.NewTokenService(s, "test-secret", time.Hour, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(webhookKey), bcrypt.MinCost)
	require.NoError(t, err)

	if pinger == nil {
		pinger = s
	}
	svc := handler.Services{
		Applications: service.NewApplicationService(s, writer, engine, outbox, logger),
		Agents:       service.NewAgentService(s, outbox, nil, nil, "https://agents.homeward.test/onboard", logger),
		Pricing:      service.NewPricingService(s, domain.PricingRules{}, logger),
		Notes:        service.NewNoteService(s, outbox, logger),
		Leads:        service.NewLeadService(s, writer, engine, logger),
		Users:        service.NewUserService(s, writer, logger),
		Inbound:      service.NewInboundSync(s, writer, engine, outbox, logger),
		Auth:         tokens,
		Store:        pinger,
	}
	cfg := handler.Config{WebhookKeyHash: string(hash)}
	return &testAPI{
		store:  s,
		tokens: tokens,
		router: handler.NewRouter(svc, cfg, observability.NewMetrics(), logger),
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) bearer(t *testing.T, u *domain.User) map[string]string {
	t.Helper()
	require.NoError(t, a.store.SaveUser(context.Background(), u))
	token, err := a.tokens.Issue(u)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func validationErrors(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Errors
}

// ============================================================
// Operational endpoints
// ============================================================

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	require.Len(t, health.Services, 2)
	assert.Equal(t, "database", health.Services[1].Name)
}

func TestHealthz_DatabaseDown(t *testing.T) {
	api := newTestAPI(t, fakePinger{err: errors.New("connection refused")})

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "connection refused", health.Services[1].Error)
}

func TestReadyzAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

// ============================================================
// Authentication
// ============================================================

func TestAuthenticatedRoutes_RequireToken(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/1.0.0/user/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/1.0.0/user/me", "", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/1.0.0/queue/stats", "", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserMe(t *testing.T) {
	api := newTestAPI(t, nil)
	headers := api.bearer(t, &domain.User{Email: "ada@example.com", Role: domain.UserCustomer})

	rec := api.do(t, http.MethodGet, "/api/1.0.0/user/me", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "ada@example.com", profile["email"])
	assert.Equal(t, "customer", profile["role"])
}

func TestQueueStats(t *testing.T) {
	api := newTestAPI(t, nil)
	headers := api.bearer(t, &domain.User{Email: "ops@homeward.test", Role: domain.UserStaff})

	rec := api.do(t, http.MethodGet, "/api/1.0.0/queue/stats", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "succeeded")
}

func TestRepublish_StaffOnly(t *testing.T) {
	api := newTestAPI(t, nil)
	headers := api.bearer(t, &domain.User{Email: "ada@example.com", Role: domain.UserCustomer})

	rec := api.do(t, http.MethodPost, "/api/1.0.0/transaction/salesforce/bulk",
		`{"kind":"application","ids":["7254aeb7-5dd8-4d2b-9a61-6e1a0d6b3f10"]}`, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/1.0.0/transaction/salesforce/bulk", `{"kind":"application","ids":[]}`, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, validationErrors(t, rec), "ids")
}

// ============================================================
// Webhooks
// ============================================================

func TestWebhook_RejectsBadKey(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/1.0.0/application/salesforce", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/1.0.0/application/salesforce", `{}`, map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_QueuesEachElement(t *testing.T) {
	api := newTestAPI(t, nil)
	headers := map[string]string{"X-Api-Key": webhookKey}

	rec := api.do(t, http.MethodPost, "/api/1.0.0/offer/salesforce/bulk", `[{"Id":"a1"},{"Id":"a2"}]`, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var res service.AcceptResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Queued)
	assert.Len(t, res.Jobs, 2)

	rec = api.do(t, http.MethodPost, "/api/1.0.0/application/salesforce/loan", `"nope"`, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, validationErrors(t, rec), "body")
}

// ============================================================
// Anonymous routes
// ============================================================

func TestAgentLookup(t *testing.T) {
	api := newTestAPI(t, nil)
	agent := &domain.Agent{Name: "Bea Broker", Email: "bea@realty.test", Phone: "5125550100"}
	require.NoError(t, api.store.SaveAgent(context.Background(), agent))

	rec := api.do(t, http.MethodGet, "/api/1.0.0/agent/lookup?email=nobody@realty.test", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/1.0.0/agent/lookup?email=BEA@realty.test", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), agent.ID.String())

	rec = api.do(t, http.MethodGet, "/api/1.0.0/agent/lookup", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, validationErrors(t, rec), "email")
}

func TestCertifiedAgentRedirect(t *testing.T) {
	api := newTestAPI(t, nil)
	certified := &domain.Agent{Name: "Cy", Email: "cy@realty.test", Phone: "5125550101", IsCertified: true}
	plain := &domain.Agent{Name: "Di", Email: "di@realty.test"}
	require.NoError(t, api.store.SaveAgent(context.Background(), certified))
	require.NoError(t, api.store.SaveAgent(context.Background(), plain))

	rec := api.do(t, http.MethodGet, "/api/1.0.0/certified-agent/"+certified.ID.String(), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://agents.homeward.test/onboard?"))
	assert.Contains(t, location, "agent_id="+certified.ID.String())

	rec = api.do(t, http.MethodGet, "/api/1.0.0/certified-agent/"+plain.ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/1.0.0/certified-agent/not-a-uuid", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, validationErrors(t, rec), "id")
}

func TestCreateLead_Validation(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/1.0.0/lead/", `{"product_offering":"rent-only"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := validationErrors(t, rec)
	assert.Equal(t, "required", errs["email"])
	assert.Equal(t, "must be one of [buy-sell buy-only]", errs["product_offering"])

	rec = api.do(t, http.MethodPost, "/api/1.0.0/lead/", `{"email":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", validationErrors(t, rec)["body"])

	rec = api.do(t, http.MethodPost, "/api/1.0.0/lead/", `{"email":"ada@example.com","min_price":"cheap"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, validationErrors(t, rec), "min_price")
}

func TestCreatePricing_Anonymous(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/1.0.0/pricing/", `{"min_price":-1}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "must be at least 0", validationErrors(t, rec)["min_price"])

	rec = api.do(t, http.MethodPost, "/api/1.0.0/pricing/",
		`{"min_price":300000,"max_price":400000,"product_offering":"buy-only"}`,
		map[string]string{"Authorization": "Bearer expired"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var quote domain.Pricing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.NotEqual(t, "", quote.ID.String())

	headers := api.bearer(t, &domain.User{Email: "ada@example.com", Role: domain.UserCustomer})
	rec = api.do(t, http.MethodGet, "/api/1.0.0/pricing/"+quote.ID.String(), "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
}
