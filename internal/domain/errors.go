package domain

import "errors"

var (
	// ErrInvalidInput is returned for a malformed name or endpoint.
	// Nothing is written to storage when it is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable wraps any failure of the underlying store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConflictRetryExhausted is returned when concurrent writers kept
	// winning the race on the same endpoint. Errors carrying it also
	// match ErrStorageUnavailable.
	ErrConflictRetryExhausted = errors.New("conflict retry exhausted")
)

// StorageError wraps err so that it matches ErrStorageUnavailable.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, err: err}
}

type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return e.op + ": " + ErrStorageUnavailable.Error() + ": " + e.err.Error()
}

func (e *storageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.err} }
