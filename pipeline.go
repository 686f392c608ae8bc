package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Middleware phases are discovered by type assertion: a middleware value
// implements any subset of BeforePhase, AfterPhase, FinallyPhase, and
// ExecutePhase. A registration with none of them is rejected.

// BeforePhase runs before the handler, in ascending Order. It returns
// Continue with optional state values for later phases, or ShortCircuit to
// skip the handler and every remaining Before phase.
type BeforePhase interface {
	Before(ctx context.Context, msg any) (BeforeResult, error)
}

// AfterPhase runs after a successful handler invocation, in descending
// Order. It is skipped when the pipeline short-circuits or fails.
type AfterPhase interface {
	After(ctx context.Context, msg, result any, s *State) error
}

// FinallyPhase runs exactly once per invocation, in descending Order,
// regardless of success, failure, or short-circuit. err is the in-flight
// pipeline error, or nil (a short-circuit is not a failure).
type FinallyPhase interface {
	Finally(ctx context.Context, msg any, err error, s *State) error
}

// Next invokes the remainder of the pipeline. Calling it again re-runs all
// Before, handler, After, and Finally phases, including their side effects.
type Next func(ctx context.Context) (any, error)

// ExecutePhase wraps the entire remaining pipeline. Wrappers nest
// outermost-first by ascending Order; retry-style middleware re-invokes
// next for each attempt, which re-runs the whole documented pipeline.
type ExecutePhase interface {
	Execute(ctx context.Context, msg any, next Next) (any, error)
}

// BeforeResult is the tagged outcome of a Before phase: either continue
// with state values, or short-circuit the pipeline with a final result.
type BeforeResult struct {
	short  bool
	result any
	state  []any
}

// Continue proceeds with the pipeline. The given state values are stored by
// their concrete type for later After and Finally phases.
func Continue(state ...any) BeforeResult {
	return BeforeResult{state: state}
}

// ShortCircuit stops the pipeline: the handler and all remaining Before and
// After phases are skipped, Finally phases still run, and result becomes
// the pipeline's result.
func ShortCircuit(result any) BeforeResult {
	return BeforeResult{short: true, result: result}
}

// ShortCircuited reports whether the result short-circuits the pipeline.
func (r BeforeResult) ShortCircuited() bool { return r.short }

// State accumulates the values Before phases emitted, keyed by concrete
// type. When two Before phases emit a value of the same type, the later one
// wins.
type State struct {
	values map[reflect.Type]any
}

func newState() *State {
	return &State{values: make(map[reflect.Type]any)}
}

func (s *State) put(v any) {
	if v == nil {
		return
	}
	s.values[reflect.TypeOf(v)] = v
}

// StateOf returns the state value of concrete type T emitted by an earlier
// Before phase, if any.
func StateOf[T any](s *State) (T, bool) {
	v, ok := s.values[reflect.TypeOf((*(T))(nil)).Elem()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// middlewareUnit pairs a descriptor with its resolved instance for one
// invocation.
type middlewareUnit struct {
	d *MiddlewareDescriptor
	v any
}

// pipeline is the per-invocation state: the message, the resolved handler
// instance, and the ordered middleware. It is owned by one dispatch call
// and never shared.
type pipeline struct {
	handler  *HandlerDescriptor
	instance any
	msg      any
	msgType  reflect.Type
	mws      []middlewareUnit

	short bool
}

// outcome is the pipeline's result plus whether it was produced by a
// short-circuiting Before phase, which the cascade resolver needs to know.
type outcome struct {
	result any
	short  bool
}

// requireSync rejects pipelines containing any async-marked participant.
func (p *pipeline) requireSync() error {
	if p.handler.Async {
		return fmt.Errorf("%w: handler %s", ErrAsyncPipeline, p.handler.HandlerType)
	}
	for _, mw := range p.mws {
		if mw.d.Async {
			return fmt.Errorf("%w: middleware %s", ErrAsyncPipeline, mw.d.MiddlewareType)
		}
	}
	return nil
}

// run executes the pipeline: Execute wrappers nested outermost-first, then
// the Before/handler/After/Finally core.
func (p *pipeline) run(ctx context.Context) (outcome, error) {
	next := Next(p.core)
	for i := len(p.mws) - 1; i >= 0; i-- {
		ex, ok := p.mws[i].v.(ExecutePhase)
		if !ok {
			continue
		}
		inner := next
		next = func(ctx context.Context) (any, error) {
			return ex.Execute(ctx, p.msg, inner)
		}
	}

	result, err := next(ctx)
	return outcome{result: result, short: p.short}, err
}

// core is the Before/handler/After/Finally state machine.
//
// Before runs ascending; a short-circuit or error stops the walk. The
// handler runs only when every Before continued. After runs descending on
// success only. Finally runs descending for every participant, always,
// receiving the in-flight error. Cancellation between phases counts as a
// failure. The original error is returned unchanged unless a Finally phase
// itself fails, in which case both are reported via errors.Join.
func (p *pipeline) core(ctx context.Context) (any, error) {
	state := newState()
	p.short = false

	var (
		result  any
		failure error
	)

	for _, mw := range p.mws {
		if failure = cancelled(ctx); failure != nil {
			break
		}
		b, ok := mw.v.(BeforePhase)
		if !ok {
			continue
		}
		res, err := b.Before(ctx, p.msg)
		if err != nil {
			failure = err
			break
		}
		if res.short {
			p.short = true
			result = res.result
			break
		}
		for _, v := range res.state {
			state.put(v)
		}
	}

	if failure == nil && !p.short {
		if failure = cancelled(ctx); failure == nil {
			result, failure = p.handler.Handle(ctx, p.instance, p.msg)
		}
	}

	if failure == nil && !p.short {
		for i := len(p.mws) - 1; i >= 0; i-- {
			a, ok := p.mws[i].v.(AfterPhase)
			if !ok {
				continue
			}
			if err := a.After(ctx, p.msg, result, state); err != nil {
				failure = err
				break
			}
		}
	}

	for i := len(p.mws) - 1; i >= 0; i-- {
		f, ok := p.mws[i].v.(FinallyPhase)
		if !ok {
			continue
		}
		if err := f.Finally(ctx, p.msg, failure, state); err != nil {
			if failure != nil {
				failure = errors.Join(failure, err)
			} else {
				failure = err
			}
		}
	}

	if failure != nil {
		return nil, failure
	}
	return result, nil
}

// cancelled returns the context's cancellation cause, if any.
func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	default:
		return nil
	}
}

// hasPhase reports whether mw implements at least one middleware phase.
func hasPhase(mw any) bool {
	switch mw.(type) {
	case BeforePhase, AfterPhase, FinallyPhase, ExecutePhase:
		return true
	}
	return false
}
