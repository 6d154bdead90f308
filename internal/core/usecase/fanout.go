package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

type backendOutcome struct {
	index      int
	status     domain.BackendStatus
	candidates []domain.Candidate
}

// FanOutCoordinator issues one query to every retriever concurrently over a
// shared bounded worker pool, bounds total wall-clock latency, and collects
// whatever subset of results arrived in time.
type FanOutCoordinator struct {
	pool           *ants.Pool
	globalTimeout  time.Duration
	backendTimeout time.Duration
	logger         *slog.Logger
}

func NewFanOutCoordinator(pool *ants.Pool, globalTimeout, backendTimeout time.Duration, logger *slog.Logger) *FanOutCoordinator {
	if globalTimeout <= 0 {
		globalTimeout = 3 * time.Second
	}
	if backendTimeout <= 0 || backendTimeout > globalTimeout {
		backendTimeout = globalTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FanOutCoordinator{
		pool:           pool,
		globalTimeout:  globalTimeout,
		backendTimeout: backendTimeout,
		logger:         logger,
	}
}

// Run fans req out to the retrievers and returns per-retriever candidate
// lists (index-aligned) plus per-backend statuses. Caller cancellation
// discards partial results and yields ErrCancelled; all backends
// failing/timing out yields ErrBackendTotalFailure.
func (f *FanOutCoordinator) Run(
	ctx context.Context,
	retrievers []ports.Retriever,
	req domain.SearchRequest,
	limit int,
) ([][]domain.Candidate, []domain.BackendStatus, error) {
	fanCtx, cancel := context.WithTimeout(ctx, f.globalTimeout)
	defer cancel()

	outcomes := make(chan backendOutcome, len(retrievers))
	for i, retriever := range retrievers {
		index, r := i, retriever
		task := func() {
			outcomes <- f.retrieveOne(fanCtx, index, r, req, limit)
		}
		if f.pool == nil {
			go task()
			continue
		}
		if err := f.pool.Submit(task); err != nil {
			outcomes <- backendOutcome{
				index: index,
				status: domain.BackendStatus{
					Backend: r.Name(),
					State:   domain.BackendError,
					Error:   "worker pool: " + err.Error(),
				},
			}
		}
	}

	lists := make([][]domain.Candidate, len(retrievers))
	statuses := make([]domain.BackendStatus, len(retrievers))
	for range retrievers {
		out := <-outcomes
		lists[out.index] = out.candidates
		statuses[out.index] = out.status
	}

	// Caller cancellation, as opposed to the fan-out deadline elapsing.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, nil, domain.WrapError(domain.ErrCancelled, "fan-out", ctx.Err())
	}

	healthy := 0
	for _, st := range statuses {
		if st.State == domain.BackendOK {
			healthy++
		}
	}
	if healthy == 0 {
		return lists, statuses, domain.WrapError(
			domain.ErrBackendTotalFailure, "fan-out", errors.New(summarizeStatuses(statuses)),
		)
	}
	return lists, statuses, nil
}

func (f *FanOutCoordinator) retrieveOne(
	fanCtx context.Context,
	index int,
	r ports.Retriever,
	req domain.SearchRequest,
	limit int,
) backendOutcome {
	backendCtx, cancel := context.WithTimeout(fanCtx, f.backendTimeout)
	defer cancel()

	start := time.Now()
	candidates, err := r.Retrieve(backendCtx, req, limit)
	took := time.Since(start)

	status := domain.BackendStatus{
		Backend: r.Name(),
		Took:    took,
		Hits:    len(candidates),
	}

	switch {
	case err == nil:
		status.State = domain.BackendOK
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(backendCtx.Err(), context.DeadlineExceeded):
		status.State = domain.BackendTimeout
		status.Error = err.Error()
		status.Hits = 0
		candidates = nil
	default:
		status.State = domain.BackendError
		status.Error = err.Error()
		status.Hits = 0
		candidates = nil
	}

	if status.State != domain.BackendOK {
		f.logger.Warn("backend_degraded",
			"backend", r.Name(),
			"state", string(status.State),
			"took_ms", took.Milliseconds(),
			"error", status.Error,
		)
	}

	return backendOutcome{index: index, status: status, candidates: candidates}
}

func summarizeStatuses(statuses []domain.BackendStatus) string {
	msg := ""
	for _, st := range statuses {
		if msg != "" {
			msg += "; "
		}
		msg += st.Backend + "=" + string(st.State)
		if st.Error != "" {
			msg += " (" + st.Error + ")"
		}
	}
	return msg
}
