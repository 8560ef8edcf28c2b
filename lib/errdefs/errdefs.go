package errdefs

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// Code classifies an Error. Callers branch on the code, never on the message.
type Code uint8

const (
	CodeUnknown        Code = iota // 0: Unclassified failure.
	CodeProtocol                   // 1: Malformed frame length or unexpected wire structure.
	CodeHandshake                  // 2: No capabilities, unrecognized response or noise budget exhausted.
	CodeRemote                     // 3: I/O failure while talking to the remote (broken pipe, EOF).
	CodeResponse                   // 4: Unparsable length line in a command response.
	CodeOutOfBand                  // 5: Remote answered with a blank line, the reason is on its stderr.
	CodeCommand                    // 6: Remote reported an application error for a single call.
	CodeCorruptedState             // 7: State file version or payload cannot be decoded.
	CodeProgramming                // 8: Caller violated a precondition. Fatal.
	CodeAbort                      // 9: Operation refused, e.g. because another one is unfinished.
	CodeLocked                     // 10: Lock held by someone else.
	CodeUnfinished                 // 11: A resumable operation is still in progress.
)

// String returns the string representation of a Code.
func (c Code) String() string {
	switch c {
	case CodeProtocol:
		return "ProtocolError"
	case CodeHandshake:
		return "HandshakeError"
	case CodeRemote:
		return "RemoteError"
	case CodeResponse:
		return "ResponseError"
	case CodeOutOfBand:
		return "OutOfBandError"
	case CodeCommand:
		return "CommandError"
	case CodeCorruptedState:
		return "CorruptedState"
	case CodeProgramming:
		return "ProgrammingError"
	case CodeAbort:
		return "Abort"
	case CodeLocked:
		return "LockHeld"
	case CodeUnfinished:
		return "UnfinishedOperation"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by every package of this module.
// Op names the operation or remote command that failed, Hint is an optional
// suggestion shown to the user.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Hint string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This makes the
// sentinels below usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Msg == ""
}

// WithHint returns a copy of the error carrying the given hint.
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// New creates an *Error with a formatted message.
func New(code Code, op string, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap creates an *Error with a formatted message around a cause.
func Wrap(code Code, op string, err error, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HintOf returns the hint of the first *Error in err's chain that has one.
func HintOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Hint != "" {
			return e.Hint
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// --------------------------------------------------------------------------
// Sentinels (for errors.Is)
// --------------------------------------------------------------------------

var (
	ErrProtocol       = &Error{Code: CodeProtocol}
	ErrHandshake      = &Error{Code: CodeHandshake}
	ErrRemote         = &Error{Code: CodeRemote}
	ErrResponse       = &Error{Code: CodeResponse}
	ErrOutOfBand      = &Error{Code: CodeOutOfBand}
	ErrCommand        = &Error{Code: CodeCommand}
	ErrCorruptedState = &Error{Code: CodeCorruptedState}
	ErrProgramming    = &Error{Code: CodeProgramming}
	ErrAbort          = &Error{Code: CodeAbort}
	ErrLocked         = &Error{Code: CodeLocked}
	ErrUnfinished     = &Error{Code: CodeUnfinished}
)
