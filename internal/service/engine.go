package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Engine derives the task statuses and acknowledgements an application
// should have from persisted state. Running it twice changes nothing.
type Engine struct {
	store  port.Store
	writer *Writer
	acks   *AcknowledgementAssigner
	now    func() time.Time
	logger *zap.Logger
}

func NewEngine(store port.Store, writer *Writer, acks *AcknowledgementAssigner, logger *zap.Logger) *Engine {
	return &Engine{store: store, writer: writer, acks: acks, now: time.Now, logger: logger}
}

// WithClock overrides the time used for task activity windows (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	c := *e
	c.now = now
	return &c
}

// With binds the engine to tx.
func (e *Engine) With(tx port.Store) *Engine {
	return &Engine{store: tx, writer: e.writer.With(tx), acks: e.acks.With(tx), now: e.now, logger: e.logger}
}

// RunResult is the state after a run.
type RunResult struct {
	Stage    domain.ApplicationStage
	Statuses []domain.TaskStatus
	Promoted bool
}

// Run assigns acknowledgements and tasks, recomputes every task status and
// promotes an Incomplete application whose tasks are all done.
func (e *Engine) Run(ctx context.Context, appID uuid.UUID, src domain.WriteSource) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "Engine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", appID.String()))

	var res *RunResult
	err := e.store.WithTx(ctx, func(tx port.Store) error {
		var err error
		res, err = e.With(tx).run(ctx, appID, src)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, appID uuid.UUID, src domain.WriteSource) (*RunResult, error) {
	app, err := e.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	log := e.logger.With(zap.String("application_id", appID.String()))

	if err := e.acks.Assign(ctx, app, src); err != nil {
		return nil, fmt.Errorf("assign acknowledgements: %w", err)
	}
	in, err := e.inputs(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := e.assign(ctx, app, in, src); err != nil {
		return nil, err
	}

	statuses, err := e.store.ListTaskStatuses(ctx, appID)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		st := &statuses[i]
		progress, ok, unexpected := domain.ComputeTaskProgress(st.Category, in)
		if unexpected {
			log.Warn("unexpected mortgage status", zap.String("loan_status", in.LoanStatus))
		}
		if !ok || progress == st.Status {
			continue
		}
		st.Status = progress
		if _, err := e.writer.SaveTaskStatus(ctx, st, src); err != nil {
			return nil, fmt.Errorf("save %s status: %w", st.Category, err)
		}
	}

	promoted, err := e.PromoteIfComplete(ctx, appID, src)
	if err != nil {
		return nil, err
	}
	final, err := e.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	statuses, err = e.store.ListTaskStatuses(ctx, appID)
	if err != nil {
		return nil, err
	}
	return &RunResult{Stage: final.Stage, Statuses: statuses, Promoted: promoted}, nil
}

// inputs loads what the status rules read.
func (e *Engine) inputs(ctx context.Context, app *domain.Application) (domain.TaskInputs, error) {
	in := domain.TaskInputs{Application: app}

	home, err := e.store.GetCurrentHomeByApplication(ctx, app.ID)
	if err := ignoreNotFound(err); err != nil {
		return in, err
	}
	if home == nil && app.CurrentHomeID != nil {
		home, err = e.store.GetCurrentHome(ctx, *app.CurrentHomeID)
		if err := ignoreNotFound(err); err != nil {
			return in, err
		}
	}
	in.CurrentHome = home

	if app.MortgageLenderID != nil {
		lender, err := e.store.GetMortgageLender(ctx, *app.MortgageLenderID)
		if err := ignoreNotFound(err); err != nil {
			return in, err
		}
		in.Lender = lender
	}

	acks, _, err := ActiveAcknowledgements(ctx, e.store, app.ID)
	if err != nil {
		return in, err
	}
	in.Acknowledgements = acks

	loans, err := e.store.ListLoansByApplication(ctx, app.ID)
	if err != nil {
		return in, err
	}
	if len(loans) > 0 {
		// newest first
		in.LoanStatus = loans[0].BlendStatus
	}
	return in, nil
}

// assign creates the task statuses the application needs and removes the
// current-home tasks of buy-only applications.
func (e *Engine) assign(ctx context.Context, app *domain.Application, in domain.TaskInputs, src domain.WriteSource) error {
	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	existing, err := e.store.ListTaskStatuses(ctx, app.ID)
	if err != nil {
		return err
	}
	byCategory := map[domain.TaskCategory]domain.TaskStatus{}
	for _, st := range existing {
		byCategory[st.Category] = st
	}

	wanted := []domain.TaskCategory{domain.TaskRealEstateAgent, domain.TaskBuyingSituation}
	if len(in.Acknowledgements) > 0 {
		wanted = append(wanted, domain.TaskDisclosures)
	}
	homeTasks := []domain.TaskCategory{domain.TaskPhotoUpload, domain.TaskExistingProperty}
	switch {
	case app.ProductOffering == domain.ProductBuySell && in.CurrentHome != nil:
		wanted = append(wanted, homeTasks...)
	case app.ProductOffering == domain.ProductBuyOnly:
		for _, cat := range homeTasks {
			if st, ok := byCategory[cat]; ok {
				if err := e.store.DeleteTaskStatus(ctx, st.ID); err != nil {
					return fmt.Errorf("remove %s task: %w", cat, err)
				}
				delete(byCategory, cat)
			}
		}
	}

	now := e.now()
	var picked []domain.Task
	for _, cat := range wanted {
		if t := pickTask(tasks, cat, app, now); t != nil {
			picked = append(picked, *t)
		}
	}
	mortgage, err := mortgageTask(tasks, app.BuyingState(), now)
	if err != nil {
		return err
	}
	if mortgage != nil {
		picked = append(picked, *mortgage)
	}

	for _, t := range picked {
		if _, ok := byCategory[t.Category]; ok {
			continue
		}
		progress, ok, _ := domain.ComputeTaskProgress(t.Category, in)
		if !ok {
			progress = domain.ProgressNotStarted
		}
		st := &domain.TaskStatus{ApplicationID: app.ID, TaskID: t.ID, Category: t.Category, Status: progress}
		if _, err := e.writer.SaveTaskStatus(ctx, st, src); err != nil {
			return fmt.Errorf("assign %s task: %w", t.Category, err)
		}
		byCategory[t.Category] = *st
	}
	return nil
}

// pickTask returns the active task of a category that applies to app,
// preferring state or partner specific tasks over generic ones.
func pickTask(tasks []domain.Task, cat domain.TaskCategory, app *domain.Application, now time.Time) *domain.Task {
	var best *domain.Task
	bestScore := -1
	for i := range tasks {
		t := &tasks[i]
		if t.Category != cat || !t.IsActiveAt(now) {
			continue
		}
		if t.State != "" && t.State != app.BuyingState() {
			continue
		}
		if t.PartnerSlug != "" && t.PartnerSlug != app.ApexPartnerSlug {
			continue
		}
		score := 0
		if t.State != "" {
			score++
		}
		if t.PartnerSlug != "" {
			score++
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}

// ErrAmbiguousMortgageTask is returned when a state has more than one
// active mortgage task.
var ErrAmbiguousMortgageTask = errors.New("more than one active mortgage task")

func mortgageTask(tasks []domain.Task, state string, now time.Time) (*domain.Task, error) {
	if state == "" {
		return nil, nil
	}
	var found []domain.Task
	for _, t := range tasks {
		if t.Category == domain.TaskHomewardMortgage && t.State == state && t.IsActiveAt(now) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	}
	return nil, fmt.Errorf("%w for state %s", ErrAmbiguousMortgageTask, state)
}

// PromoteIfComplete moves an Incomplete application to Complete when it has
// tasks and every non-mortgage task is Completed.
func (e *Engine) PromoteIfComplete(ctx context.Context, appID uuid.UUID, src domain.WriteSource) (bool, error) {
	app, err := e.store.GetApplication(ctx, appID)
	if err != nil {
		return false, err
	}
	if app.Stage != domain.StageIncomplete {
		return false, nil
	}
	statuses, err := e.store.ListTaskStatuses(ctx, appID)
	if err != nil {
		return false, err
	}
	if !hasChecklist(statuses) || !domain.AreAllTasksComplete(statuses) {
		return false, nil
	}

	app.Stage = domain.StageComplete
	if _, err := e.writer.SaveApplication(ctx, app, src); err != nil {
		return false, fmt.Errorf("promote application: %w", err)
	}
	e.logger.Info("application promoted",
		zap.String("application_id", appID.String()),
		zap.String("stage", string(app.Stage)),
	)
	return true, nil
}

func hasChecklist(statuses []domain.TaskStatus) bool {
	for _, s := range statuses {
		if s.Category != domain.TaskHomewardMortgage {
			return true
		}
	}
	return false
}

func ignoreNotFound(err error) error {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nil
	}
	return err
}
