// Package simerr defines the fatal-error taxonomy the simulator reports on
// a malformed program or an out-of-range parameter. Every error wraps one
// of the sentinel classes below so callers can errors.Is/errors.As them
// while the printed message keeps the SIM_* class name for log parity with
// the reference tool.
package simerr

import "fmt"

// Class is one of the SIM_* error categories from the error-handling design.
type Class string

const (
	OutOfRange       Class = "SIM_OUT_OF_RANGE"
	ParameterFailed  Class = "SIM_PARAMETER_FAILED"
	AlignError       Class = "SIM_ALIGN_ERROR"
	FileOpenFailed   Class = "SIM_FILE_OPEN_FAILED"
	TensorNotInDDR   Class = "SIM_TENSOR_NOT_IN_DDR"
	UnknownOpcode    Class = "SIM_UNKNOWN_OPCODE"
	WhitelistViolate Class = "SIM_WHITELIST_VIOLATION"
	Internal         Class = "SIM_INTERNAL"
)

// Error is a fatal simulator error tagged with its class and an offending
// value. Every fatal path in the simulator returns one of these rather than
// retrying or recovering locally.
type Error struct {
	Class   Class
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Class, so
// errors.Is(err, simerr.New(simerr.OutOfRange, "")) matches any instance
// of that class regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// New creates an *Error of the given class.
func New(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given class that wraps an underlying error.
func Wrap(class Class, err error, format string, args ...any) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinel returns an error of the given class with no message or detail,
// suitable as a matcher for errors.Is.
func Sentinel(class Class) error { return &Error{Class: class} }
