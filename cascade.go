package mediator

import (
	"context"
	"reflect"
)

// Result carries a handler's tuple return: a response plus additional
// messages to publish as side effects. Build one with Tuple. Handlers that
// cascade declare Result as their result type.
type Result struct {
	elems []any
}

// Tuple bundles a response with cascading messages. During cascade
// resolution the first element assignable to the caller's expected response
// type is extracted as the response; every other non-nil element is
// published before the originating Invoke returns.
func Tuple(elems ...any) Result {
	return Result{elems: elems}
}

// Elems returns the tuple elements in declaration order.
func (r Result) Elems() []any { return r.elems }

// resolveResponse extracts the caller's response from a pipeline outcome
// and publishes any cascading messages.
//
// A non-tuple result is the response. For a tuple, the first element
// assignable to R is the response and the remaining non-nil elements are
// published sequentially, each publish completing (middleware and all)
// before the next starts and before this function returns. A tuple produced
// by a short-circuiting Before phase only yields the response slot: work
// that never happened publishes no events.
func resolveResponse[R any](ctx context.Context, m *Mediator, msgType reflect.Type, out outcome) (R, error) {
	var zero R

	tup, ok := out.result.(Result)
	if !ok {
		if out.result == nil {
			return zero, nil
		}
		resp, ok := out.result.(R)
		if !ok {
			return zero, &ResponseTypeError{
				Message:  msgType,
				Expected: reflect.TypeOf((*(R))(nil)).Elem(),
				Result:   reflect.TypeOf(out.result),
			}
		}
		return resp, nil
	}

	respIdx := -1
	var resp R
	for i, e := range tup.elems {
		if e == nil {
			continue
		}
		if r, ok := e.(R); ok {
			respIdx = i
			resp = r
			break
		}
	}
	if respIdx < 0 {
		return zero, &ResponseTypeError{Message: msgType, Expected: reflect.TypeOf((*(R))(nil)).Elem()}
	}

	if out.short {
		return resp, nil
	}

	for i, e := range tup.elems {
		if i == respIdx || e == nil {
			continue
		}
		m.hooks.cascade(ctx, msgType, reflect.TypeOf(e))
		if err := m.Publish(ctx, e); err != nil {
			return zero, err
		}
	}
	return resp, nil
}

// cascadeAll publishes every non-nil tuple element of a fire-and-forget
// outcome. Used by Publish fan-out, where no response slot exists.
func (m *Mediator) cascadeAll(ctx context.Context, msgType reflect.Type, out outcome) error {
	tup, ok := out.result.(Result)
	if !ok || out.short {
		return nil
	}
	for _, e := range tup.elems {
		if e == nil {
			continue
		}
		m.hooks.cascade(ctx, msgType, reflect.TypeOf(e))
		if err := m.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
