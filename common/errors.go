package common

import "fmt"

// ErrorKind classifies a Error for programmatic handling (HTTP status
// mapping, retry decisions) independent of its message text.
type ErrorKind uint32

var EErrorKind ErrorKind

func (ErrorKind) NotFound() ErrorKind         { return ErrorKind(0) }
func (ErrorKind) InvalidState() ErrorKind     { return ErrorKind(1) }
func (ErrorKind) ResourceExhausted() ErrorKind { return ErrorKind(2) }
func (ErrorKind) RateLimited() ErrorKind      { return ErrorKind(3) }
func (ErrorKind) QueueFull() ErrorKind        { return ErrorKind(4) }
func (ErrorKind) InvalidArgument() ErrorKind  { return ErrorKind(5) }
func (ErrorKind) Internal() ErrorKind         { return ErrorKind(6) }
func (ErrorKind) Cancelled() ErrorKind        { return ErrorKind(7) }
func (ErrorKind) Timeout() ErrorKind          { return ErrorKind(8) }

func (k ErrorKind) String() string {
	switch k {
	case EErrorKind.NotFound():
		return "NotFound"
	case EErrorKind.InvalidState():
		return "InvalidState"
	case EErrorKind.ResourceExhausted():
		return "ResourceExhausted"
	case EErrorKind.RateLimited():
		return "RateLimited"
	case EErrorKind.QueueFull():
		return "QueueFull"
	case EErrorKind.InvalidArgument():
		return "InvalidArgument"
	case EErrorKind.Internal():
		return "Internal"
	case EErrorKind.Cancelled():
		return "Cancelled"
	case EErrorKind.Timeout():
		return "Timeout"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint32(k))
	}
}

// Error is the module's error type. It carries a Kind so callers can branch
// on category with errors.As without parsing the message, and an optional
// wrapped cause so errors.Is/errors.Unwrap still traverse to the root fault.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, target) to match on Kind alone when target is a
// *Error with a zero Op/Message, matching the common `errors.Is(err,
// &common.Error{Kind: EErrorKind.NotFound()})` idiom used by callers that
// only care about the category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError constructs an Error of the given kind.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError constructs an Error of the given kind wrapping cause.
func WrapError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, cause: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to Internal if err is
// not (or does not wrap) a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return EErrorKind.Internal()
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
