package handler

import (
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Offers
// ============================================================

func createOfferHandler(svc *service.OfferService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.CreateOffer")
		defer span.End()

		var in service.OfferInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		offer, err := svc.Create(ctx, PrincipalFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("offer created", zap.String("offer_id", offer.ID.String()))
		writeJSON(w, http.StatusCreated, offer)
	}
}

func getOfferHandler(svc *service.OfferService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		offer, err := svc.Get(r.Context(), PrincipalFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, offer)
	}
}

func patchOfferHandler(svc *service.OfferService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.PatchOffer")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("offer.id", id.String()))

		var in service.OfferInput
		if err := decodeJSON(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		offer, err := svc.Patch(ctx, PrincipalFromContext(ctx), id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, offer)
	}
}

// offerContractHandler waits for the contract PDF and answers 408 when it
// is not ready in time.
func offerContractHandler(svc *service.OfferService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.OfferContract")
		defer span.End()

		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		res, err := svc.Contract(ctx, PrincipalFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func restrictedClosingDatesHandler(svc *service.OfferService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		errs := map[string]string{}
		from, err := domain.ParseDate(q.Get("from"))
		if err != nil {
			errs["from"] = "must be YYYY-MM-DD"
		}
		to, err := domain.ParseDate(q.Get("to"))
		if err != nil {
			errs["to"] = "must be YYYY-MM-DD"
		}
		if len(errs) > 0 {
			handleServiceError(w, domain.NewFieldErrors(errs), logger)
			return
		}
		dates, err := svc.RestrictedClosingDates(r.Context(), from, to)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if dates == nil {
			dates = []service.RestrictedDate{}
		}
		writeJSON(w, http.StatusOK, dates)
	}
}
