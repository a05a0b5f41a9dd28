package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
)

// Error kinds surfaced by the engine. Handlers translate them into status codes.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrClockSkew           = errors.New("clock skew: negative elapsed time")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageError translates repository errors into engine error kinds.
func storageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, ErrStorageUnavailable):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repositories.ErrVersionConflict):
		return fmt.Errorf("%s: %w", op, ErrConcurrencyConflict)
	case errors.Is(err, repositories.ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
