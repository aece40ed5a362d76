package lutron

import "errors"

// Domain errors for the Lutron bridge package.
var (
	// ErrNoCredentials is returned when no credential bundle exists for a
	// fresh connection attempt. It is not retried locally.
	ErrNoCredentials = errors.New("lutron: no credentials for bridge")

	// ErrAuthRejected is returned when the bridge refuses the credentials
	// presented on a fresh connection.
	ErrAuthRejected = errors.New("lutron: bridge rejected authentication")

	// ErrNetworkTransient marks timeout and unreachable failures that are
	// retried with increasing backoff.
	ErrNetworkTransient = errors.New("lutron: transient network failure")

	// ErrProtocol is returned when a payload from the bridge is malformed.
	ErrProtocol = errors.New("lutron: protocol error")

	// ErrUnknownZone is returned when a zone cannot be resolved by number or name.
	ErrUnknownZone = errors.New("lutron: unknown zone")

	// ErrUnknownScene is returned when a scene cannot be resolved by number or name.
	ErrUnknownScene = errors.New("lutron: unknown scene")

	// ErrUnknownDevice is returned when a remote or button cannot be resolved.
	ErrUnknownDevice = errors.New("lutron: unknown device or button")

	// ErrUnknownCommand is returned for an unsupported level or button command.
	ErrUnknownCommand = errors.New("lutron: unknown command")

	// ErrRequestTimeout is returned when the bridge does not answer a status
	// request in time.
	ErrRequestTimeout = errors.New("lutron: request timed out")

	// ErrNotInitialized is returned by commands issued before discovery completes.
	ErrNotInitialized = errors.New("lutron: bridge not initialized")

	// ErrInvalidCommunique is returned when a raw communique is neither a LIP
	// command nor a JSON object.
	ErrInvalidCommunique = errors.New("lutron: invalid communique")

	// ErrUnsupported is returned when the bridge type lacks the capability
	// an operation needs.
	ErrUnsupported = errors.New("lutron: operation not supported by bridge type")

	// ErrNotConnected is returned when writing to a closed transport.
	ErrNotConnected = errors.New("lutron: transport not connected")

	// ErrClosed is returned by operations on a stopped engine.
	ErrClosed = errors.New("lutron: engine stopped")
)
