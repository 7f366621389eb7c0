package services

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Handlers map them to status codes with errors.Is;
// details are wrapped around them with %w.
var (
	ErrNotFound            = errors.New("not found")
	ErrSelfReference       = errors.New("cannot target yourself")
	ErrDuplicateConnection = errors.New("a connection between these users already exists")
	ErrNotAuthorized       = errors.New("not allowed to perform this action")
	ErrInvalidState        = errors.New("not allowed in the current state")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrCooldownActive      = errors.New("request was recently declined, try again later")
)

// storageErr tags a repository failure so callers can detect it as ErrStorageUnavailable
// while keeping the driver error in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
