package settlement

import (
	"errors"
	"fmt"
)

// Error classes. Callers map them to transport status with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence failure")
)

var (
	ErrMissingSignature = fmt.Errorf("%w: missing signature header", ErrAuthentication)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrAuthentication)
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// persistenceError tags a storage failure unless it already carries a class.
func persistenceError(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrPersistence, op, err)
}
