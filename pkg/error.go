package pkg

import "errors"

// Streaming errors.
var (
	// ErrBusTimeout indicates a bus engine busy-wait did not clear in time.
	ErrBusTimeout = errors.New("bus engine timeout")

	// ErrInitFailed indicates the bus or DMA engine rejected a configuration.
	ErrInitFailed = errors.New("engine init failed")

	// ErrInvalidTransition indicates a state change was requested while the
	// previous transaction had not quiesced. The caller should retry.
	ErrInvalidTransition = errors.New("transaction in flight, try again")

	// ErrInterrupted indicates a blocking wait was cancelled.
	ErrInterrupted = errors.New("interrupted")

	// ErrInvalidArgument indicates an out-of-range configuration value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed indicates the stream instance has been closed.
	ErrClosed = errors.New("stream closed")

	// ErrNotSupported indicates an unsupported operation or platform.
	ErrNotSupported = errors.New("not supported")
)
