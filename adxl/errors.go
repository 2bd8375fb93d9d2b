package adxl

import "errors"

// Code is a stable error identifier. It is comparable and implements error,
// so it can be used both as a sentinel with errors.Is and as a value that
// travels to the web surface unchanged.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK Code = "ok"

	// ErrIdentityMismatch is returned by Attach when the identity register
	// does not read back the ADXL346 device id.
	ErrIdentityMismatch Code = "identity_mismatch"
	// ErrInvalidArgument is returned by Write for any payload that is not
	// exactly two bytes.
	ErrInvalidArgument Code = "invalid_argument"
	// ErrOutOfMemory reports that a caller-supplied source could not be read.
	ErrOutOfMemory Code = "out_of_memory"
	// ErrCopyFailed reports that a sample could not be handed to the caller.
	ErrCopyFailed Code = "copy_failed"
	// ErrDeviceUnavailable wraps any failure of the bus transport.
	ErrDeviceUnavailable Code = "device_unavailable"
	ErrNotAttached       Code = "not_attached"
	ErrAlreadyAttached   Code = "already_attached"
	ErrSessionClosed     Code = "session_closed"
	ErrDeviceBusy        Code = "device_busy"
	ErrNotInitialised    Code = "namespace_not_initialised"
	ErrUnknownRegister   Code = "unknown_register"
	ErrNamespaceFull     Code = "namespace_full"

	// Error is the fallback for errors that carry no code.
	Error Code = "error"
)

// CodeOf extracts the Code from err, walking its wrap chain.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
