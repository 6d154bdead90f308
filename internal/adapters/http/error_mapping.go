package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// statusClientClosedRequest mirrors nginx's non-standard 499: the caller
// went away before we finished.
const statusClientClosedRequest = 499

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrLawNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrBackendTotalFailure):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrSynthesisFailure):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
