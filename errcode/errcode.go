package errcode

import "errors"

// Code is a stable error identifier shared by every Click driver.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK       Code = "ok"
	Error    Code = "error"     // generic failure (-1)
	Timeout  Code = "timeout"   // response budget exhausted (-2)
	CmdError Code = "cmd_error" // device rejected the command (-3)

	InvalidParams Code = "invalid_params"
	NotReady      Code = "not_ready"
	Unsupported   Code = "unsupported"
	UnknownBus    Code = "unknown_bus"
	UnknownPin    Code = "unknown_pin"
)

// Int returns the classic numeric return value for c: 0 on success, -1 for a
// generic error, -2 for a timeout and -3 for a command error. Codes with no
// numeric counterpart collapse to -1.
func (c Code) Int() int {
	switch c {
	case OK:
		return 0
	case Timeout:
		return -2
	case CmdError:
		return -3
	default:
		return -1
	}
}

// E keeps an operation name and a cause next to a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Timeout) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E for op with code c and cause err.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
