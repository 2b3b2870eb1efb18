package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInsufficientCredits  = errors.New("insufficient analysis credits")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrMalformedPayload     = errors.New("malformed webhook payload")
	ErrOrderConflict        = errors.New("order already finalized with different payment")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrProviderTimeout      = errors.New("payment provider timed out")
	ErrUnauthorized         = errors.New("missing or invalid credentials")

	// Storage-layer errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)
