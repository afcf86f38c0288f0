package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the use cases the API exposes.
type Services struct {
	Applications     *service.ApplicationService
	Homes            *service.HomeService
	Acknowledgements *service.AcknowledgementService
	Agents           *service.AgentService
	Pricing          *service.PricingService
	Offers           *service.OfferService
	Notes            *service.NoteService
	Leads            *service.LeadService
	Users            *service.UserService
	Inbound          *service.InboundSync
	Auth             Authenticator
	Store            Pinger
}

// Config carries the HTTP-only settings.
type Config struct {
	AllowedOrigins []string
	WebhookKeyHash string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, cfg Config, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	requireAuth := JWTAuthMiddleware(svc.Auth, logger)
	optionalAuth := OptionalAuthMiddleware(svc.Auth, logger)
	webhookKey := WebhookKeyMiddleware(cfg.WebhookKeyHash, logger)

	r.Route("/api/1.0.0", func(r chi.Router) {

		// =============================================
		// Anonymous
		// =============================================
		r.Post("/lead/", createLeadHandler(svc.Leads, logger))
		r.With(optionalAuth).Post("/pricing/", createPricingHandler(svc.Pricing, logger))
		r.Get("/agent/lookup", agentLookupHandler(svc.Agents, logger))
		r.Get("/certified-agent/{id}", certifiedAgentHandler(svc.Agents, logger))

		// =============================================
		// CRM webhooks (X-Api-Key)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(webhookKey)
			r.Post("/application/salesforce", inboundHandler(svc.Inbound, domain.InboundApplication, logger))
			r.Post("/application/salesforce/loan", inboundHandler(svc.Inbound, domain.InboundLoan, logger))
			r.Post("/application/salesforce/bulk", inboundHandler(svc.Inbound, domain.InboundApplication, logger))
			r.Post("/offer/salesforce/bulk", inboundHandler(svc.Inbound, domain.InboundOffer, logger))
			r.Post("/new-home-purchase/salesforce", inboundHandler(svc.Inbound, domain.InboundNewHomePurchase, logger))
		})

		// =============================================
		// Authenticated
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/application/", listApplicationsHandler(svc.Applications, logger))
			r.Post("/application/", createApplicationHandler(svc.Applications, logger))
			r.Get("/application/{id}", getApplicationHandler(svc.Applications, logger))
			r.Patch("/application/{id}", patchApplicationHandler(svc.Applications, logger))
			r.Post("/application/{id}/message", applicationMessageHandler(svc.Applications, logger))
			r.Get("/application/{id}/stage-history", stageHistoryHandler(svc.Applications, logger))

			r.Post("/current-home/", createCurrentHomeHandler(svc.Homes, logger))
			r.Patch("/current-home/{id}", patchCurrentHomeHandler(svc.Homes, logger))
			r.Post("/current-home/{id}/images", currentHomeImageHandler(svc.Homes, logger))

			r.Post("/mortgage-lender/", createLenderHandler(svc.Homes, logger))
			r.Patch("/mortgage-lender/{id}", patchLenderHandler(svc.Homes, logger))

			r.Get("/acknowledgement/", listAcknowledgementsHandler(svc.Acknowledgements, logger))
			r.Patch("/acknowledgement/{id}", patchAcknowledgementHandler(svc.Acknowledgements, logger))

			r.Post("/agent/", createAgentHandler(svc.Agents, logger))
			r.Patch("/agent/{id}", patchAgentHandler(svc.Agents, logger))
			r.Get("/brokerage/", listBrokeragesHandler(svc.Agents, logger))
			r.Post("/brokerage/", createBrokerageHandler(svc.Agents, logger))

			r.Get("/pricing/{id}", getPricingHandler(svc.Pricing, logger))
			r.Post("/pricing/{id}/actions", pricingActionHandler(svc.Pricing, logger))

			r.Post("/offer/", createOfferHandler(svc.Offers, logger))
			r.Get("/offer/restricted-closing-dates", restrictedClosingDatesHandler(svc.Offers, logger))
			r.Get("/offer/{id}", getOfferHandler(svc.Offers, logger))
			r.Patch("/offer/{id}", patchOfferHandler(svc.Offers, logger))
			r.Get("/offer/{id}/contract", offerContractHandler(svc.Offers, logger))

			r.Post("/note/", createNoteHandler(svc.Notes, logger))
			r.Get("/note/", listNotesHandler(svc.Notes, logger))

			r.Get("/user/me", getMeHandler(svc.Users, logger))
			r.Patch("/user/me", patchMeHandler(svc.Users, logger))
			r.Get("/user/application", userApplicationsHandler(svc.Users, logger))
			r.Get("/agent-user/applications", agentApplicationsHandler(svc.Users, logger))
			r.Get("/agent-user/quotes", agentQuotesHandler(svc.Pricing, logger))

			r.Get("/proxy/agents", searchDirectoryHandler(svc.Agents, logger))
			r.Post("/proxy/agents", createDirectoryAgentHandler(svc.Agents, logger))
			r.Post("/proxy/resend-verify-email", resendVerifyEmailHandler(svc.Agents, logger))

			r.Post("/transaction/salesforce/bulk", republishHandler(svc.Notes, logger))
			r.Get("/queue/stats", queueStatsHandler(metrics))
		})
	})

	if len(cfg.AllowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Api-Key"},
		AllowCredentials: true,
	}).Handler(r)
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "backoffice-api", Status: "healthy", LastChecked: now},
		}
		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			sh := domain.ServiceHealth{
				Name:        "database",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("health check: database unreachable", zap.Error(err))
				sh.Status = "unhealthy"
				sh.Error = err.Error()
			}
			services = append(services, sh)
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		status := http.StatusOK
		if overallStatus == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func queueStatsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.QueueSnapshot())
	}
}
