package handler

import (
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"go.uber.org/zap"
)

type pricingActionRequest struct {
	Action string `json:"action" validate:"required"`
}

// createPricingHandler quotes for anonymous and signed-in callers alike.
func createPricingHandler(svc *service.PricingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CreatePricing")
		defer span.End()

		var in service.PricingInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		pricing, err := svc.Create(ctx, PrincipalFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, pricing)
	}
}

func getPricingHandler(svc *service.PricingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		pricing, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pricing)
	}
}

func pricingActionHandler(svc *service.PricingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req pricingActionRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		pricing, err := svc.AddAction(r.Context(), id, req.Action)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pricing)
	}
}

func agentQuotesHandler(svc *service.PricingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quotes, err := svc.ListByAgent(r.Context(), PrincipalFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if quotes == nil {
			quotes = []domain.Pricing{}
		}
		writeJSON(w, http.StatusOK, quotes)
	}
}
