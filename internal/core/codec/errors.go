package codec

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage      = errors.New("malformed message")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrUnresolvedReference   = errors.New("unresolved reference")
	ErrUnsupportedOptions    = errors.New("unsupported codec options")
)

// Code classifies a collected decode problem.
type Code int

const (
	CodeMalformedMessage      Code = 3001
	CodeDuplicateRegistration Code = 3002
	CodeUnresolvedReference   Code = 3003
)

func (c Code) String() string {
	switch c {
	case CodeMalformedMessage:
		return "malformed-message"
	case CodeDuplicateRegistration:
		return "duplicate-registration"
	case CodeUnresolvedReference:
		return "unresolved-reference"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

func (c Code) sentinel() error {
	switch c {
	case CodeMalformedMessage:
		return ErrMalformedMessage
	case CodeDuplicateRegistration:
		return ErrDuplicateRegistration
	case CodeUnresolvedReference:
		return ErrUnresolvedReference
	default:
		return nil
	}
}

// Error is a non-fatal problem found while decoding. The object it names was
// skipped or left partially unset; decoding carried on.
type Error struct {
	Code    Code
	Message string
	// Object is the wire id of the affected object, 0 when unknown.
	Object WireID
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code.sentinel(), e.Message)
	if e.Object != 0 {
		msg = fmt.Sprintf("%s (object %d)", msg, uint64(e.Object))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Code.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Report collects the non-fatal errors of one decode.
type Report struct {
	Errors []*Error
}

func (r *Report) add(code Code, object WireID, cause error, format string, args ...any) {
	r.Errors = append(r.Errors, &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Object:  object,
		Cause:   cause,
	})
}

func (r *Report) merge(o *Report) {
	if o != nil {
		r.Errors = append(r.Errors, o.Errors...)
	}
}

func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Errors)
}

// Err joins every collected error, or returns nil.
func (r *Report) Err() error {
	if r.Len() == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
