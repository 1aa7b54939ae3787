package repo

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that, unlike the store reads, treat a
// missing record as an error. It aliases gorm.ErrRecordNotFound.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrStorageUnavailable means the local engine could not be opened.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	// ErrTransactionFailed means the engine aborted an operation.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrNotInitialized is returned by every operation called before Init.
	ErrNotInitialized = errors.New("local store not initialized")
)

// TxError carries the failing store operation and the engine error. It
// matches ErrTransactionFailed with errors.Is and unwraps to the engine
// error, so callers can test for either.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrTransactionFailed, e.Err)
}

// Is reports whether target is ErrTransactionFailed.
func (e *TxError) Is(target error) bool { return target == ErrTransactionFailed }

// Unwrap returns the engine error.
func (e *TxError) Unwrap() error { return e.Err }

// TxFailed wraps err as a *TxError for op. A nil err stays nil.
func TxFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TxError{Op: op, Err: err}
}

// Unavailable wraps an open error so it matches ErrStorageUnavailable.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
