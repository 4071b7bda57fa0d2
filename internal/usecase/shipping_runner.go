package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shipzone-sync/internal/domain"
	"shipzone-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ApplyFunc is called once for every operation the store confirmed.
// It may be called from several goroutines at once.
type ApplyFunc func(op domain.Operation, res *domain.OperationResult)

// Runner executes operation lists against the store.
//
// Independent operations run concurrently. Sub-operations only run after
// their parent succeeded, with the id the store returned. A failure never
// stops unrelated operations: every failure is collected in the report.
type Runner struct {
	api         domain.ShippingAPI
	concurrency int
}

// NewRunner creates a Runner. concurrency bounds the in-flight requests per
// dependency level; zero or less means unbounded.
func NewRunner(api domain.ShippingAPI, concurrency int) *Runner {
	return &Runner{api: api, concurrency: concurrency}
}

type runState struct {
	mu        sync.Mutex
	report    *domain.SubmitReport
	errs      *multierror.Error
	onApplied ApplyFunc
}

func (s *runState) applied(op domain.Operation, res *domain.OperationResult) {
	s.mu.Lock()
	s.report.Applied = append(s.report.Applied, op)
	s.mu.Unlock()

	if s.onApplied != nil {
		s.onApplied(op, res)
	}
}

func (s *runState) failed(op domain.Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Failures = append(s.report.Failures, domain.OperationFailure{
		Operation:         op,
		Error:             err.Error(),
		SkippedDependents: op.Dependents(),
	})
	s.errs = multierror.Append(s.errs, fmt.Errorf("%s: %w", op, err))
}

// Run executes ops and blocks until every operation, including the ones
// spawned by sub-operations, has resolved. The returned error aggregates all
// failures and is nil when the report succeeded.
func (r *Runner) Run(ctx context.Context, siteID string, ops []domain.Operation, onApplied ApplyFunc) (*domain.SubmitReport, error) {
	st := &runState{
		report: &domain.SubmitReport{
			ID:        uuid.New().String(),
			SiteID:    siteID,
			StartedAt: time.Now(),
			Applied:   []domain.Operation{},
			Failures:  []domain.OperationFailure{},
		},
		onApplied: onApplied,
	}

	r.run(ctx, ops, st)

	st.report.FinishedAt = time.Now()
	return st.report, st.errs.ErrorOrNil()
}

func (r *Runner) run(ctx context.Context, ops []domain.Operation, st *runState) {
	g := new(errgroup.Group)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for _, op := range ops {
		op := op
		g.Go(func() error {
			r.runOne(ctx, op, st)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) runOne(ctx context.Context, op domain.Operation, st *runState) {
	log := logger.WithContext(ctx)

	if err := ctx.Err(); err != nil {
		st.failed(op, err)
		return
	}

	start := time.Now()
	res, err := r.api.Execute(ctx, op)
	if err != nil {
		log.Warn().Err(err).
			Str("action", string(op.Action)).
			Int64("zone_id", op.ZoneID).
			Int64("id", op.ID).
			Int("skipped_dependents", op.Dependents()).
			Msg("Shipping operation failed")
		st.failed(op, err)
		return
	}
	if res == nil {
		res = &domain.OperationResult{}
	}

	log.Debug().
		Str("action", string(op.Action)).
		Int64("zone_id", op.ZoneID).
		Int64("result_id", res.ID).
		Dur("duration_ms", time.Since(start)).
		Msg("Shipping operation applied")
	st.applied(op, res)

	if len(op.SubOperations) == 0 {
		return
	}
	var dependents []domain.Operation
	for _, produce := range op.SubOperations {
		dependents = append(dependents, produce(res.ID)...)
	}
	r.run(ctx, dependents, st)
}
