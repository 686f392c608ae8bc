package mediator

import (
	"context"
	"reflect"
	"time"
)

// DispatchKind distinguishes the request-response path from fan-out in
// hook callbacks.
type DispatchKind int

const (
	// KindInvoke is the single-handler request-response path.
	KindInvoke DispatchKind = iota
	// KindPublish is the zero-to-many notification path.
	KindPublish
)

// String returns the kind name for logging.
func (k DispatchKind) String() string {
	if k == KindPublish {
		return "publish"
	}
	return "invoke"
}

// OnDispatchFunc is called just before a pipeline executes.
type OnDispatchFunc func(ctx context.Context, kind DispatchKind, msg reflect.Type)

// OnSuccessFunc is called after a dispatch completes successfully,
// including any cascaded publishes.
type OnSuccessFunc func(ctx context.Context, kind DispatchKind, msg reflect.Type, duration time.Duration)

// OnFailureFunc is called after a dispatch fails.
type OnFailureFunc func(ctx context.Context, kind DispatchKind, msg reflect.Type, err error, duration time.Duration)

// OnCascadeFunc is called when a handler's tuple return publishes a
// cascading message. from is the originating message type.
type OnCascadeFunc func(ctx context.Context, from, msg reflect.Type)

// hooks holds all configured hook functions.
type hooks struct {
	onDispatch []OnDispatchFunc
	onSuccess  []OnSuccessFunc
	onFailure  []OnFailureFunc
	onCascade  []OnCascadeFunc
}

func (h *hooks) dispatch(ctx context.Context, kind DispatchKind, msg reflect.Type) {
	for _, fn := range h.onDispatch {
		fn(ctx, kind, msg)
	}
}

func (h *hooks) success(ctx context.Context, kind DispatchKind, msg reflect.Type, d time.Duration) {
	for _, fn := range h.onSuccess {
		fn(ctx, kind, msg, d)
	}
}

func (h *hooks) failure(ctx context.Context, kind DispatchKind, msg reflect.Type, err error, d time.Duration) {
	for _, fn := range h.onFailure {
		fn(ctx, kind, msg, err, d)
	}
}

func (h *hooks) cascade(ctx context.Context, from, msg reflect.Type) {
	for _, fn := range h.onCascade {
		fn(ctx, from, msg)
	}
}

// WithOnDispatch adds a hook called just before each pipeline executes.
// Multiple hooks are called in order.
//
// Example:
//
//	mediator.WithOnDispatch(func(ctx context.Context, kind mediator.DispatchKind, msg reflect.Type) {
//	    logger.DebugContext(ctx, "dispatching", "kind", kind.String(), "message", msg.String())
//	})
func WithOnDispatch(fn OnDispatchFunc) MediatorOption {
	return func(m *Mediator) {
		m.hooks.onDispatch = append(m.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after a dispatch completes successfully.
// Multiple hooks are called in order.
//
// Example:
//
//	mediator.WithOnSuccess(func(ctx context.Context, kind mediator.DispatchKind, msg reflect.Type, d time.Duration) {
//	    metrics.Timing("mediator."+kind.String(), d)
//	})
func WithOnSuccess(fn OnSuccessFunc) MediatorOption {
	return func(m *Mediator) {
		m.hooks.onSuccess = append(m.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after a dispatch fails.
// Multiple hooks are called in order.
//
// Example:
//
//	mediator.WithOnFailure(func(ctx context.Context, kind mediator.DispatchKind, msg reflect.Type, err error, d time.Duration) {
//	    logger.ErrorContext(ctx, "dispatch failed", "message", msg.String(), "error", err)
//	})
func WithOnFailure(fn OnFailureFunc) MediatorOption {
	return func(m *Mediator) {
		m.hooks.onFailure = append(m.hooks.onFailure, fn)
	}
}

// WithOnCascade adds a hook called for each cascading message published
// from a handler's tuple return. Multiple hooks are called in order.
func WithOnCascade(fn OnCascadeFunc) MediatorOption {
	return func(m *Mediator) {
		m.hooks.onCascade = append(m.hooks.onCascade, fn)
	}
}
