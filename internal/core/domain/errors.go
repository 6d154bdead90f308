package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrLawNotFound         = errors.New("law not found")
	ErrBackendTotalFailure = errors.New("all retrieval backends failed")
	ErrSynthesisFailure    = errors.New("answer synthesis failed")
	ErrCancelled           = errors.New("request cancelled")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
