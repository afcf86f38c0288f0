package handler

import (
	"io"
	"net/http"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// inboundHandler accepts a CRM webhook body, either one record or a list,
// and queues it for the worker.
func inboundHandler(svc *service.InboundSync, kind domain.InboundKind, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Inbound")
		defer span.End()
		span.SetAttributes(attribute.String("inbound.kind", string(kind)))

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			handleServiceError(w, domain.NewValidationError("body", "unreadable body"), logger)
			return
		}
		res, err := svc.Accept(ctx, kind, body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("inbound webhook accepted",
			zap.String("kind", string(kind)),
			zap.Int("queued", res.Queued),
		)
		writeJSON(w, http.StatusAccepted, res)
	}
}
