package retriever

import (
	"context"
	"errors"
	"net"

	"github.com/hokuto-sato/lawsearch/internal/infrastructure/resilience"
)

func execute(ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) error) error {
	if executor == nil {
		return fn(ctx)
	}
	return executor.Execute(ctx, operation, fn, classifyBackendError)
}

// classifyBackendError retries transient transport failures once and lets
// everything else surface immediately. Context expiry is never retried: the
// fan-out deadline owns that budget.
func classifyBackendError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}
