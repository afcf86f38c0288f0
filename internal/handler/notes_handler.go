package handler

import (
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func createNoteHandler(svc *service.NoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.NoteInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		note, err := svc.Create(r.Context(), PrincipalFromContext(r.Context()), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, note)
	}
}

func listNotesHandler(svc *service.NoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, err := uuid.Parse(r.URL.Query().Get("application_id"))
		if err != nil {
			handleServiceError(w, domain.NewValidationError("application_id", "must be a UUID"), logger)
			return
		}
		notes, err := svc.List(r.Context(), PrincipalFromContext(r.Context()), appID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if notes == nil {
			notes = []domain.Note{}
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

// republishHandler backs transaction/salesforce/bulk.
func republishHandler(svc *service.NoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Republish")
		defer span.End()

		var in service.RepublishInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		n, err := svc.Republish(ctx, PrincipalFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("records queued for republish", zap.String("kind", in.Kind), zap.Int("count", n))
		writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
	}
}
