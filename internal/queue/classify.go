package queue

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"
)

// Decision is what the runner does with a failed job.
type Decision int

const (
	Retry Decision = iota
	Terminal
)

func (d Decision) String() string {
	if d == Terminal {
		return "terminal"
	}
	return "retry"
}

// CRM error codes that will fail the same way on every attempt.
var terminalCRMCodes = []string{"ENTITY_IS_DELETED", "INVALID_FIELD"}

// ErrSkip is returned by handlers whose job no longer applies (e.g. the
// condition of a delayed email stopped holding). The job completes.
var ErrSkip = errors.New("job skipped")

// Classify decides whether a job failure is worth retrying. It depends only
// on the error value.
func Classify(err error) Decision {
	if err == nil {
		return Retry
	}

	var cfgErr *domain.ErrConfiguration
	if errors.As(err, &cfgErr) {
		return Terminal
	}

	var crmErr *domain.ErrCRM
	if errors.As(err, &crmErr) {
		for _, code := range terminalCRMCodes {
			if crmErr.Code == code {
				return Terminal
			}
		}
		return Retry
	}
	msg := err.Error()
	for _, code := range terminalCRMCodes {
		if strings.Contains(msg, code) {
			return Terminal
		}
	}

	var (
		validation *domain.ErrValidation
		notFound   *domain.ErrNotFound
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) {
		return Terminal
	}

	var (
		circuit  *domain.ErrCircuitOpen
		external *domain.ErrExternalService
		netErr   net.Error
	)
	switch {
	case errors.As(err, &circuit), resilience.IsOpen(err):
		return Retry
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return Retry
	case errors.As(err, &external):
		return Retry
	}
	return Retry
}
