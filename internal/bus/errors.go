package bus

import (
	"errors"
	"fmt"
)

// InputError indicates invalid caller input.
// Transport layers map this to 400 / InvalidArgument.
type InputError string

func (e InputError) Error() string { return string(e) }

// ErrStorageUnavailable wraps every failure of the durable stores that
// fails a call. Transport layers map it to 503 / Unavailable.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotReady is returned by mutating calls before Start has rebuilt the
// registry from the store.
var ErrNotReady = errors.New("bus not ready")

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
