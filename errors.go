package mediator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrHandlerNotFound is returned by Invoke and InvokeAsync when no
	// handler is registered for the message type.
	ErrHandlerNotFound = errors.New("mediator: no handler registered")

	// ErrAmbiguousHandler is returned by Invoke and InvokeAsync when more
	// than one handler is registered for the message type.
	ErrAmbiguousHandler = errors.New("mediator: multiple handlers registered")

	// ErrAsyncPipeline is returned by Invoke when the resolved pipeline
	// contains a participant registered with WithAsync. The call is never
	// silently degraded; use InvokeAsync.
	ErrAsyncPipeline = errors.New("mediator: async participant in synchronous pipeline")

	// ErrNilMessage is returned when a nil message is dispatched.
	ErrNilMessage = errors.New("mediator: nil message")

	// ErrNoResolver is returned when a descriptor requires resolution by
	// type but the mediator was built without WithResolver.
	ErrNoResolver = errors.New("mediator: no resolver configured")
)

// ConstructionError wraps a failure to construct or resolve a handler or
// middleware instance. The underlying resolver error is available via
// errors.Unwrap. Construction is never retried by the mediator, and failed
// constructions are never cached, so a later dispatch may succeed.
type ConstructionError struct {
	Type reflect.Type
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("mediator: construct %s: %v", e.Type, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// ResponseTypeError reports that a handler's result could not satisfy the
// response type the caller asked for: either the raw result has the wrong
// type, or no tuple element is assignable to it. Reaching this at runtime
// indicates a registration mismatch.
type ResponseTypeError struct {
	// Message is the dispatched message type.
	Message reflect.Type
	// Expected is the response type the caller requested.
	Expected reflect.Type
	// Result is the handler's actual result type; nil for an unmatched
	// tuple.
	Result reflect.Type
}

func (e *ResponseTypeError) Error() string {
	if e.Result == nil {
		return fmt.Sprintf("mediator: handler for %s returned a tuple with no element assignable to %s", e.Message, e.Expected)
	}
	return fmt.Sprintf("mediator: handler for %s returned %s, want %s", e.Message, e.Result, e.Expected)
}

// PublishError aggregates two or more handler failures from one Publish
// call. A single failure is returned as-is instead. All underlying errors
// participate in errors.Is and errors.As matching.
type PublishError struct {
	Errors []error
}

func (e *PublishError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("mediator: %d handlers failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap returns the underlying handler errors.
func (e *PublishError) Unwrap() []error { return e.Errors }
