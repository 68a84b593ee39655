package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUserNotInitialized means a mutating command reached the whitelist path for a user
	// that is absent from the store even after a cache refresh. Callers must treat it as a
	// programming fault, not as a user-facing rejection.
	ErrUserNotInitialized = errors.New("user not initialized")

	ErrInvalidBackend  = errors.New("invalid backend")
	ErrDataStoreAccess = errors.New("data store read/write error")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}
