package pins

import (
	"errors"
	"fmt"
)

// Code identifies a class of rejected or failed pin operation.
type Code string

// Error codes. Everything except HardwareFault is a caller error that the
// service never retries.
const (
	CodeInvalidFunction            Code = "InvalidFunction"
	CodeConflictingBusAssignment   Code = "ConflictingBusAssignment"
	CodeIllegalForFunction         Code = "IllegalForFunction"
	CodeOutOfRange                 Code = "OutOfRange"
	CodeModeConflict               Code = "ModeConflict"
	CodeNoHardwareChannelAvailable Code = "NoHardwareChannelAvailable"
	CodeUnknownPin                 Code = "UnknownPin"
	CodeHardwareFault              Code = "HardwareFault"
	CodeInternal                   Code = "Internal"
)

// Error is returned by every pin operation that does not succeed.
type Error struct {
	Code    Code
	Pin     int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidFunction            = &Error{Code: CodeInvalidFunction}
	ErrConflictingBusAssignment   = &Error{Code: CodeConflictingBusAssignment}
	ErrIllegalForFunction         = &Error{Code: CodeIllegalForFunction}
	ErrOutOfRange                 = &Error{Code: CodeOutOfRange}
	ErrModeConflict               = &Error{Code: CodeModeConflict}
	ErrNoHardwareChannelAvailable = &Error{Code: CodeNoHardwareChannelAvailable}
	ErrUnknownPin                 = &Error{Code: CodeUnknownPin}
	ErrHardwareFault              = &Error{Code: CodeHardwareFault}
)

// Errorf builds an *Error for pin.
func Errorf(code Code, pin int, format string, args ...any) *Error {
	return &Error{Code: code, Pin: pin, Message: fmt.Sprintf(format, args...)}
}

// HardwareFault wraps a driver failure for pin.
func HardwareFault(pin int, cause error, format string, args ...any) *Error {
	return &Error{Code: CodeHardwareFault, Pin: pin, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the code from err, or CodeInternal for foreign errors.
// A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
