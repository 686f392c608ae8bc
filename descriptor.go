package mediator

import (
	"context"
	"math"
	"reflect"
)

// Lifetime controls how handler and middleware instances are acquired.
type Lifetime int

const (
	// LifetimeDefault constructs the instance at most once, on first use,
	// and reuses it for every subsequent dispatch.
	LifetimeDefault Lifetime = iota

	// LifetimeTransient resolves a fresh instance on every dispatch.
	LifetimeTransient

	// LifetimeScoped resolves the instance from the active Scope on every
	// dispatch; the resolver decides whether to reuse within a scope.
	LifetimeScoped

	// LifetimeSingleton delegates singleton semantics to the resolver
	// instead of the mediator's own cache.
	LifetimeSingleton
)

// String returns the lifetime name for logging and errors.
func (l Lifetime) String() string {
	switch l {
	case LifetimeDefault:
		return "default"
	case LifetimeTransient:
		return "transient"
	case LifetimeScoped:
		return "scoped"
	case LifetimeSingleton:
		return "singleton"
	default:
		return "unknown"
	}
}

// DefaultOrder sorts participants without an explicit order after all
// ordered ones.
const DefaultOrder = math.MaxInt

// HandlerDescriptor describes one registered handler. Descriptors are
// created during registration, typically through RegisterFunc, RegisterProc,
// ProvideFunc, or ProvideProc, and are immutable once the mediator has
// dispatched its first message. Generated registration code may build
// descriptors directly and pass them to Mediator.RegisterDescriptor.
type HandlerDescriptor struct {
	// MessageType is the message type this handler is bound to. Handlers
	// bound to an interface type participate in Publish fan-out for every
	// message implementing the interface.
	MessageType reflect.Type

	// HandlerType identifies the handler for instance resolution and
	// diagnostics.
	HandlerType reflect.Type

	// Handle invokes the resolved handler instance with the message.
	Handle func(ctx context.Context, instance, msg any) (any, error)

	// New constructs the handler instance. For LifetimeDefault it is called
	// at most once; for the other lifetimes it is called on every dispatch
	// with the active scope. When New is nil, the mediator's Resolver is
	// used with HandlerType instead.
	New func(ctx context.Context, scope Scope) (any, error)

	// Async marks a handler whose body suspends (performs I/O or otherwise
	// honors cancellation mid-flight). Invoke rejects async handlers;
	// InvokeAsync and Publish accept them.
	Async bool

	// Order determines execution order among multiple handlers during
	// sequential Publish fan-out. Lower runs first. Defaults to DefaultOrder.
	Order int

	// Lifetime selects the instance acquisition strategy.
	Lifetime Lifetime

	// Cascades reports whether the handler returns a Result tuple whose
	// extra elements are published as cascading messages.
	Cascades bool

	// Middleware lists the middleware types this handler explicitly opts
	// into. Only consulted for middleware registered with ExplicitOnly.
	Middleware []reflect.Type

	seq int
}

// MiddlewareDescriptor describes one registered middleware. Built through
// Mediator.Use or Provide, or directly by generated registration code via
// Mediator.UseDescriptor.
type MiddlewareDescriptor struct {
	// MiddlewareType identifies the middleware for instance resolution,
	// explicit opt-in matching, and diagnostics.
	MiddlewareType reflect.Type

	// AppliesTo restricts the middleware to messages of this type. A
	// concrete type matches exactly; an interface type matches any message
	// implementing it; nil applies to all messages.
	AppliesTo reflect.Type

	// Order determines pipeline position: lower runs earlier in Before and
	// later in After and Finally. Defaults to DefaultOrder. Ties are broken
	// by applicability specificity (exact, then interface, then universal),
	// then registration order.
	Order int

	// Lifetime selects the instance acquisition strategy.
	Lifetime Lifetime

	// ExplicitOnly middleware applies only to handlers that opted in with
	// WithMiddleware.
	ExplicitOnly bool

	// Async marks middleware with a suspending phase. Invoke rejects
	// pipelines containing async middleware.
	Async bool

	// Instance is a ready-to-use middleware value for LifetimeDefault
	// registrations.
	Instance any

	// New constructs the middleware instance; same contract as
	// HandlerDescriptor.New.
	New func(ctx context.Context, scope Scope) (any, error)

	seq int
}

// HandlerOption configures a handler registration.
type HandlerOption interface {
	applyHandler(*HandlerDescriptor)
}

// MiddlewareOption configures a middleware registration.
type MiddlewareOption interface {
	applyMiddleware(*MiddlewareDescriptor)
}

// Option configures either a handler or a middleware registration.
type Option interface {
	HandlerOption
	MiddlewareOption
}

type orderOption int

func (o orderOption) applyHandler(d *HandlerDescriptor)       { d.Order = int(o) }
func (o orderOption) applyMiddleware(d *MiddlewareDescriptor) { d.Order = int(o) }

// WithOrder sets the execution order. For handlers it controls sequential
// Publish fan-out order; for middleware it controls pipeline position.
// Lower runs first.
func WithOrder(n int) Option { return orderOption(n) }

type lifetimeOption Lifetime

func (o lifetimeOption) applyHandler(d *HandlerDescriptor)       { d.Lifetime = Lifetime(o) }
func (o lifetimeOption) applyMiddleware(d *MiddlewareDescriptor) { d.Lifetime = Lifetime(o) }

// WithLifetime sets the instance acquisition strategy.
func WithLifetime(l Lifetime) Option { return lifetimeOption(l) }

type asyncOption struct{}

func (asyncOption) applyHandler(d *HandlerDescriptor)       { d.Async = true }
func (asyncOption) applyMiddleware(d *MiddlewareDescriptor) { d.Async = true }

// WithAsync marks the participant as suspending. Pipelines containing an
// async participant are rejected by Invoke with ErrAsyncPipeline; use
// InvokeAsync instead.
func WithAsync() Option { return asyncOption{} }

type appliesToOption struct{ t reflect.Type }

func (o appliesToOption) applyMiddleware(d *MiddlewareDescriptor) { d.AppliesTo = o.t }

// AppliesTo restricts middleware to messages of type T. If T is an
// interface, the middleware applies to every message implementing it.
func AppliesTo[T any]() MiddlewareOption {
	return appliesToOption{t: reflect.TypeOf((*(T))(nil)).Elem()}
}

type explicitOnlyOption struct{}

func (explicitOnlyOption) applyMiddleware(d *MiddlewareDescriptor) { d.ExplicitOnly = true }

// ExplicitOnly restricts middleware to handlers that opted in with
// WithMiddleware.
func ExplicitOnly() MiddlewareOption { return explicitOnlyOption{} }

type usesOption struct{ t reflect.Type }

func (o usesOption) applyHandler(d *HandlerDescriptor) {
	d.Middleware = append(d.Middleware, o.t)
}

// WithMiddleware opts the handler into an explicit-only middleware. MW must
// be the same type the middleware was registered with.
func WithMiddleware[MW any]() HandlerOption {
	return usesOption{t: reflect.TypeOf((*(MW))(nil)).Elem()}
}
