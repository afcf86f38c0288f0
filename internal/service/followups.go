package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoanStatusApplicationCompleted prefixes the Blend status of loans whose
// follow-ups are worth polling.
const LoanStatusApplicationCompleted = "Application completed"

// FollowupPoller mirrors Blend follow-ups of active loans into the store
// and queues their publication.
type FollowupPoller struct {
	store       port.Store
	blend       port.MortgageProvider
	outbox      *Outbox
	metrics     *observability.Metrics
	concurrency int
	logger      *zap.Logger
}

func NewFollowupPoller(store port.Store, blend port.MortgageProvider, outbox *Outbox, metrics *observability.Metrics, concurrency int, logger *zap.Logger) *FollowupPoller {
	if concurrency < 1 {
		concurrency = 4
	}
	return &FollowupPoller{
		store:       store,
		blend:       blend,
		outbox:      outbox,
		metrics:     metrics,
		concurrency: concurrency,
		logger:      logger,
	}
}

// PollResult summarises one poll.
type PollResult struct {
	Loans   int
	Synced  int
	Skipped int
	Failed  int
}

// Poll fetches the follow-ups of every eligible loan. A failing loan is
// logged and skipped; rejected credentials abort the whole poll.
func (p *FollowupPoller) Poll(ctx context.Context) (*PollResult, error) {
	ctx, span := tracer.Start(ctx, "FollowupPoller.Poll")
	defer span.End()

	loans, err := p.store.ListLoansWithStatusPrefix(ctx, LoanStatusApplicationCompleted)
	if err != nil {
		return nil, err
	}

	var synced, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range loans {
		loan := loans[i]
		g.Go(func() error {
			n, ok, err := p.pollLoan(gctx, &loan)
			var cfgErr *domain.ErrConfiguration
			switch {
			case errors.As(err, &cfgErr):
				return err
			case err != nil:
				failed.Add(1)
				p.logger.Error("follow-up poll failed for loan",
					zap.String("loan_id", loan.ID.String()),
					zap.String("blend_loan_id", loan.BlendLoanID),
					zap.Error(err),
				)
			case !ok:
				skipped.Add(1)
			}
			synced.Add(int32(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Error("follow-up poll aborted", zap.Error(err))
		return nil, err
	}

	res := &PollResult{Loans: len(loans), Synced: int(synced.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	if p.metrics != nil {
		p.metrics.AddFollowupsSynced(res.Synced)
	}
	span.SetAttributes(attribute.Int("followups.synced", res.Synced))
	p.logger.Info("follow-up poll finished",
		zap.Int("loans", res.Loans),
		zap.Int("synced", res.Synced),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// pollLoan returns the number of follow-ups written and false when the
// loan's application is not eligible.
func (p *FollowupPoller) pollLoan(ctx context.Context, loan *domain.Loan) (int, bool, error) {
	app, err := p.store.GetApplication(ctx, loan.ApplicationID)
	if err != nil {
		return 0, false, err
	}
	if !app.Stage.IsActive() || app.IsMortgageWithdrawn() || !strings.HasPrefix(loan.BlendStatus, LoanStatusApplicationCompleted) {
		return 0, false, nil
	}

	remote, err := p.blend.ListFollowups(ctx, loan.BlendLoanID)
	if err != nil {
		return 0, true, err
	}
	written := 0
	for i := range remote {
		bf := remote[i]
		err := p.store.WithTx(ctx, func(tx port.Store) error {
			f, err := tx.GetFollowupByBlendID(ctx, bf.ID)
			var nf *domain.ErrNotFound
			switch {
			case errors.As(err, &nf):
				f = &domain.Followup{ApplicationID: loan.ApplicationID, LoanID: loan.ID}
			case err != nil:
				return err
			}
			created := f.ID == uuid.Nil
			if changed := bf.ApplyTo(f); !changed && !created {
				return nil
			}
			if err := tx.SaveFollowup(ctx, f); err != nil {
				return err
			}
			if err := p.outbox.Publish(ctx, tx, domain.KindFollowup, f.ID); err != nil {
				return err
			}
			written++
			return nil
		})
		if err != nil {
			return written, true, err
		}
	}
	return written, true, nil
}
