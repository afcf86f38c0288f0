package handler

import (
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type acknowledgementRequest struct {
	IsAcknowledged *bool `json:"is_acknowledged" validate:"required"`
}

func listAcknowledgementsHandler(svc *service.AcknowledgementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, err := uuid.Parse(r.URL.Query().Get("application_id"))
		if err != nil {
			handleServiceError(w, domain.NewValidationError("application_id", "must be a UUID"), logger)
			return
		}
		views, err := svc.List(r.Context(), PrincipalFromContext(r.Context()), appID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func patchAcknowledgementHandler(svc *service.AcknowledgementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.PatchAcknowledgement")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req acknowledgementRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ack, err := svc.Patch(ctx, PrincipalFromContext(ctx), id, *req.IsAcknowledged)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}
