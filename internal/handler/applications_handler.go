package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Applications
// ============================================================

type createApplicationRequest struct {
	service.ApplicationInput
	CustomerID *uuid.UUID `json:"customer_id"`
}

type messageRequest struct {
	Body string `json:"body" validate:"required"`
}

// parseApplicationQuery reads list filters. stage may repeat or be
// comma-separated.
func parseApplicationQuery(r *http.Request) service.ApplicationQuery {
	q := r.URL.Query()
	page, pageSize := parsePagination(r)
	var stages []string
	for _, v := range q["stage"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				stages = append(stages, s)
			}
		}
	}
	archived, _ := strconv.ParseBool(q.Get("include_archived"))
	return service.ApplicationQuery{
		Stages:          stages,
		ProductOffering: q.Get("product_offering"),
		Address:         q.Get("address"),
		FromDate:        q.Get("from_date"),
		ToDate:          q.Get("to_date"),
		IncludeArchived: archived,
		Page:            page,
		PageSize:        pageSize,
	}
}

func listApplicationsHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.ListApplications")
		defer span.End()

		q := parseApplicationQuery(r)
		apps, total, err := svc.List(ctx, PrincipalFromContext(ctx), q)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.NewListResponse(apps, total, q.Page, q.PageSize))
	}
}

func getApplicationHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.GetApplication")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("application.id", id.String()))

		detail, err := svc.Get(ctx, PrincipalFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func createApplicationHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CreateApplication")
		defer span.End()

		var req createApplicationRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		app, err := svc.Create(ctx, PrincipalFromContext(ctx), req.CustomerID, &req.ApplicationInput)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("application created", zap.String("application_id", app.ID.String()))
		writeJSON(w, http.StatusCreated, app)
	}
}

func patchApplicationHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.PatchApplication")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var in service.ApplicationInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		app, err := svc.Patch(ctx, PrincipalFromContext(ctx), id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, app)
	}
}

func applicationMessageHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.ApplicationMessage")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req messageRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.SendMessage(ctx, PrincipalFromContext(ctx), id, req.Body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, domain.SuccessResponse{Message: "message queued", ID: id.String()})
	}
}

func stageHistoryHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		history, err := svc.StageHistory(r.Context(), PrincipalFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if history == nil {
			history = []domain.StageHistory{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}
