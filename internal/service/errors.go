package service

import (
	"errors"
	"fmt"

	"github.com/kkkkikiki/referral/internal/repository"
)

var (
	// ErrValidation marks missing or malformed input. Never retried.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks an unknown token, pair, campaign or user.
	ErrNotFound = errors.New("not found")

	// ErrIssuance marks a token that could not be issued for the pair.
	ErrIssuance = errors.New("issuance failed")
)

// StoreError wraps a storage failure with the operation that hit it.
// Retryable is set for timeouts and connection failures.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a store failure worth retrying.
func IsRetryable(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Retryable
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError translates repository errors. Not-found becomes ErrNotFound;
// everything else becomes a *StoreError.
func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &StoreError{
		Op:        op,
		Retryable: errors.Is(err, repository.ErrUnavailable),
		Err:       err,
	}
}
