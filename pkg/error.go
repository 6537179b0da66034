package pkg

import "errors"

// Storage stack errors.
var (
	// ErrChannelClosed indicates the transaction channel was torn down.
	// Dispatcher workers treat this as a clean end of channel.
	ErrChannelClosed = errors.New("channel closed")

	// ErrProtocol indicates a malformed frame on the transaction channel.
	ErrProtocol = errors.New("protocol error")

	// ErrBufferTooSmall indicates the provided data buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrShortFrame indicates a truncated frame on the transaction channel.
	ErrShortFrame = errors.New("short frame")

	// ErrInvalidParameter indicates an invalid storage unit parameter.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidVersion indicates an unsupported capability table version.
	ErrInvalidVersion = errors.New("invalid interface version")

	// ErrAlreadyStarted indicates the dispatcher is already running.
	ErrAlreadyStarted = errors.New("dispatcher already started")

	// ErrBusy indicates the storage unit still has active workers.
	ErrBusy = errors.New("dispatcher busy")

	// ErrNotSupported indicates an operation with no bound capability.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNoTransport indicates no transport is registered for an identity.
	ErrNoTransport = errors.New("no transport for device identity")
)
