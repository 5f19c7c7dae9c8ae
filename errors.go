package serial

import "errors"

// Error kinds reported by Open, OpenPort and Write. Every returned error wraps
// one of these together with the underlying OS error, so callers match with
// errors.Is.
var (
	// ErrOpenFailed means the device could not be opened (missing or busy).
	// Port scanners should treat it as "try the next port".
	ErrOpenFailed = errors.New("serial: open failed")
	// ErrStateQuery means the current line settings could not be read.
	ErrStateQuery = errors.New("serial: cannot query line state")
	// ErrStateApply means 8N1, baud rate, DTR or a buffer purge could not be applied.
	ErrStateApply = errors.New("serial: cannot apply line state")
	// ErrTimeoutConfig means the read timeout could not be set.
	ErrTimeoutConfig = errors.New("serial: cannot configure read timeout")
	// ErrWriteFailed means a write call failed or made no progress. Bytes
	// accepted before the failure are not taken back.
	ErrWriteFailed = errors.New("serial: write failed")
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("serial: reader closed")
	// ErrUnsupported is returned for a driver not available on this platform.
	ErrUnsupported = errors.New("serial: unsupported driver")
)
