package handler

import (
	"net/http"

	"github.com/homeward/backoffice-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Current home & mortgage lender
// ============================================================

type imageUploadRequest struct {
	ContentType string `json:"content_type" validate:"required"`
}

func createCurrentHomeHandler(svc *service.HomeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CreateCurrentHome")
		defer span.End()

		var in service.CurrentHomeInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		home, err := svc.CreateCurrentHome(ctx, PrincipalFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, home)
	}
}

func patchCurrentHomeHandler(svc *service.HomeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.PatchCurrentHome")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var in service.CurrentHomeInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		home, err := svc.PatchCurrentHome(ctx, PrincipalFromContext(ctx), id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, home)
	}
}

func currentHomeImageHandler(svc *service.HomeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CurrentHomeImage")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req imageUploadRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		upload, err := svc.ImageUploadURL(ctx, PrincipalFromContext(ctx), id, req.ContentType)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, upload)
	}
}

func createLenderHandler(svc *service.HomeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.LenderInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		lender, err := svc.CreateLender(r.Context(), PrincipalFromContext(r.Context()), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, lender)
	}
}

func patchLenderHandler(svc *service.HomeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var in service.LenderInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		lender, err := svc.PatchLender(r.Context(), PrincipalFromContext(r.Context()), id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lender)
	}
}
