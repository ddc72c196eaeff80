package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadySigned = errors.New("already signed")
	ErrTransient     = errors.New("transient fault")
	ErrFatal         = errors.New("fatal fault")
	ErrSigner        = errors.New("signer fault")
	ErrAnchor        = errors.New("anchor fault")
)

// Transient wraps err so callers can recognize it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Fatal wraps err as a non-retryable auth/config class failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
