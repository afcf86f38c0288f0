package handler

import (
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Agents, brokerages & the SSO proxy
// ============================================================

type resendVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type directoryAgentRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone"`
	Company      string `json:"company"`
	SalesforceID string `json:"salesforce_id"`
}

func createAgentHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CreateAgent")
		defer span.End()

		var in service.AgentInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		agent, err := svc.Create(ctx, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, agent)
	}
}

func patchAgentHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.PatchAgent")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var in service.AgentInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		agent, err := svc.Patch(ctx, id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

// agentLookupHandler answers 204 when nobody matches.
func agentLookupHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.AgentLookup")
		defer span.End()

		email := r.URL.Query().Get("email")
		phone := r.URL.Query().Get("phone")
		if email == "" && phone == "" {
			handleServiceError(w, domain.NewValidationError("email", "email or phone is required"), logger)
			return
		}
		agent, err := svc.Lookup(ctx, email, phone)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if agent == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

func certifiedAgentHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CertifiedAgent")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("agent.id", id.String()))

		target, err := svc.OnboardingURL(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func listBrokeragesHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brokerages, err := svc.ListBrokerages(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if brokerages == nil {
			brokerages = []domain.Brokerage{}
		}
		writeJSON(w, http.StatusOK, brokerages)
	}
}

func createBrokerageHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.BrokerageInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		b, err := svc.CreateBrokerage(r.Context(), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

func searchDirectoryHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.SearchDirectory")
		defer span.End()

		agents, err := svc.SearchDirectory(ctx, r.URL.Query().Get("q"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if agents == nil {
			agents = []domain.DirectoryAgent{}
		}
		writeJSON(w, http.StatusOK, agents)
	}
}

func createDirectoryAgentHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CreateDirectoryAgent")
		defer span.End()

		var req directoryAgentRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		created, err := svc.CreateInDirectory(ctx, &domain.DirectoryAgent{
			Name:         req.Name,
			Email:        req.Email,
			Phone:        req.Phone,
			Company:      req.Company,
			SalesforceID: req.SalesforceID,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func resendVerifyEmailHandler(svc *service.AgentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.ResendVerifyEmail")
		defer span.End()

		var req resendVerifyRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.ResendVerifyEmail(ctx, req.Email); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "verification email sent"})
	}
}
