// package culverr defines the sentinel error kinds shared across culvert's
// bridge transports and SoC drivers. Call sites wrap one of these with
// fmt.Errorf("%s: %w", detail, sentinel) and callers distinguish kinds with
// errors.Is, never by matching message text.
package culverr

import "errors"

var (
	// NotSupported means the operation does not apply on this SoC
	// generation or through this transport.
	NotSupported = errors.New("not supported")

	// InvalidArgument means a misaligned address, unknown bridge name, or
	// other malformed value reached the core.
	InvalidArgument = errors.New("invalid argument")

	// PermissionDenied means the caller needs root or equivalent
	// privilege for devmem or port I/O.
	PermissionDenied = errors.New("permission denied")

	// IOFailure means a transport-layer failure: mmap failed, a read
	// came back short, a prompt was never found.
	IOFailure = errors.New("i/o failure")

	// ProtocolViolation means a debug-UART reply line failed to parse.
	ProtocolViolation = errors.New("protocol violation")

	// VerifyMismatch means a flash page readback disagreed with what was
	// written.
	VerifyMismatch = errors.New("verify mismatch")

	// Timeout means a bounded wait (OTP idle poll, debug-UART prompt)
	// expired.
	Timeout = errors.New("timeout")

	// AlreadyInState means the requested state change is a no-op because
	// it already holds, e.g. an OTP bit already programmed.
	AlreadyInState = errors.New("already in state")
)
