package gateway

import "errors"

var (
	// ErrUnknownBridge is returned for a bridge ID that is not configured.
	ErrUnknownBridge = errors.New("gateway: unknown bridge")

	// ErrUnknownOperation is returned for a command op the gateway does not
	// implement.
	ErrUnknownOperation = errors.New("gateway: unknown operation")

	// ErrInvalidParameters is returned when a command lacks a field its
	// operation needs.
	ErrInvalidParameters = errors.New("gateway: invalid parameters")

	// ErrStopped is returned once the gateway has shut down.
	ErrStopped = errors.New("gateway: stopped")
)
