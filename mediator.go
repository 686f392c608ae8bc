package mediator

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Mediator dispatches messages to registered handlers through their
// middleware pipelines.
//
// Usage:
//  1. Create a mediator with New
//  2. Register handlers with RegisterFunc, RegisterProc, or the Provide
//     variants
//  3. Add middleware with Use or Provide
//  4. Dispatch with Invoke, InvokeAsync, or Publish
//
// Mediator is safe for concurrent use after configuration. Do not register
// handlers or middleware after the first dispatch; doing so panics.
type Mediator struct {
	registry *Registry
	cache    *instanceCache
	resolver Resolver
	hooks    hooks

	publishDefaults publishConfig
	freezeOnce      sync.Once
}

// MediatorOption configures a Mediator.
type MediatorOption func(*Mediator)

// New creates a Mediator with the given options.
//
// Example:
//
//	m := mediator.New(
//	    mediator.WithResolver(locator),
//	    mediator.WithOnFailure(func(ctx context.Context, kind mediator.DispatchKind, msg reflect.Type, err error, d time.Duration) {
//	        slog.ErrorContext(ctx, "dispatch failed", "message", msg.String(), "error", err)
//	    }),
//	)
func New(opts ...MediatorOption) *Mediator {
	m := &Mediator{
		registry: newRegistry(),
		cache:    newInstanceCache(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithResolver sets the resolver used for handlers and middleware whose
// lifetime is delegated to dependency injection, and for descriptors
// registered without a constructor.
func WithResolver(r Resolver) MediatorOption {
	return func(m *Mediator) {
		m.resolver = r
	}
}

// WithSequentialPublish makes Publish run handlers one at a time in
// ascending Order by default, instead of concurrently. Individual Publish
// calls can still override the policy.
func WithSequentialPublish() MediatorOption {
	return func(m *Mediator) {
		m.publishDefaults.sequential = true
	}
}

// WithPublishLimit bounds how many handlers a concurrent Publish runs at
// once. Zero means no limit.
func WithPublishLimit(n int) MediatorOption {
	return func(m *Mediator) {
		m.publishDefaults.limit = n
	}
}

// Registry exposes the mediator's handler registry for diagnostics and
// tooling. The registry is read-only once dispatching has started.
func (m *Mediator) Registry() *Registry { return m.registry }

// freeze makes the registry immutable before the first dispatch.
func (m *Mediator) freeze() {
	m.freezeOnce.Do(m.registry.freeze)
}

// RegisterFunc registers a request-response handler with the default
// cached lifetime. The instance is shared across all dispatches. The type
// parameters cannot be inferred from the handler value and must be spelled
// out; HandleFunc infers them from a plain function instead.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
//
// Example:
//
//	mediator.RegisterFunc[CreateOrder, mediator.Result](m, &CreateOrderFunc{db: db})
//	mediator.RegisterFunc[LookupUser, *User](m, &LookupUserFunc{client: client}, mediator.WithAsync())
func RegisterFunc[M, R any](m *Mediator, h Func[M, R], opts ...HandlerOption) {
	d := funcDescriptor[M, R](opts)
	d.New = func(context.Context, Scope) (any, error) { return h, nil }
	m.registry.add(&d)
}

// ProvideFunc registers a request-response handler built by a constructor.
// With the default lifetime the constructor runs at most once, using the
// scope active at first dispatch; with a DI lifetime it runs on every
// dispatch with the active scope.
func ProvideFunc[M, R any](m *Mediator, provide func(ctx context.Context, s Scope) (Func[M, R], error), opts ...HandlerOption) {
	d := funcDescriptor[M, R](opts)
	d.New = func(ctx context.Context, s Scope) (any, error) { return provide(ctx, s) }
	m.registry.add(&d)
}

// RegisterProc registers a notification handler with the default cached
// lifetime.
//
// Example:
//
//	mediator.RegisterProc[OrderCreated](m, &OrderCreatedProc{mailer: mailer}, mediator.WithOrder(1))
func RegisterProc[M any](m *Mediator, h Proc[M], opts ...HandlerOption) {
	d := procDescriptor[M](opts)
	d.New = func(context.Context, Scope) (any, error) { return h, nil }
	m.registry.add(&d)
}

// HandleFunc registers a plain function as a request-response handler.
// Unlike RegisterFunc, the message and result types are inferred:
//
//	mediator.HandleFunc(m, func(ctx context.Context, p Ping) (string, error) {
//	    return "Pong: " + p.ID, nil
//	})
func HandleFunc[M, R any](m *Mediator, fn func(ctx context.Context, msg M) (R, error), opts ...HandlerOption) {
	RegisterFunc[M, R](m, FuncFunc[M, R](fn), opts...)
}

// HandleProc registers a plain function as a notification handler with
// inferred message type:
//
//	mediator.HandleProc(m, func(ctx context.Context, e OrderCreated) error {
//	    return nil
//	})
func HandleProc[M any](m *Mediator, fn func(ctx context.Context, msg M) error, opts ...HandlerOption) {
	RegisterProc[M](m, ProcFunc[M](fn), opts...)
}

// ProvideProc registers a notification handler built by a constructor; same
// lifetime contract as ProvideFunc.
func ProvideProc[M any](m *Mediator, provide func(ctx context.Context, s Scope) (Proc[M], error), opts ...HandlerOption) {
	d := procDescriptor[M](opts)
	d.New = func(ctx context.Context, s Scope) (any, error) { return provide(ctx, s) }
	m.registry.add(&d)
}

// RegisterDescriptor registers a prebuilt handler descriptor. This is the
// bulk registration path for generated code; most callers should use the
// typed Register and Provide functions instead.
func (m *Mediator) RegisterDescriptor(d HandlerDescriptor) {
	if d.MessageType == nil || d.Handle == nil {
		panic("mediator: descriptor needs MessageType and Handle")
	}
	m.registry.add(&d)
}

// Use adds middleware to the pipeline. The middleware value must implement
// at least one of BeforePhase, AfterPhase, FinallyPhase, or ExecutePhase.
//
// Example:
//
//	m.Use(&AuditMiddleware{log: log}, mediator.WithOrder(1))
//	m.Use(&RetryMiddleware{}, mediator.ExplicitOnly())
func (m *Mediator) Use(mw any, opts ...MiddlewareOption) {
	if mw == nil || !hasPhase(mw) {
		panic("mediator: middleware implements no pipeline phase")
	}
	d := MiddlewareDescriptor{
		MiddlewareType: reflect.TypeOf(mw),
		Order:          DefaultOrder,
		Instance:       mw,
	}
	for _, o := range opts {
		o.applyMiddleware(&d)
	}
	m.registry.use(&d)
}

// Provide adds middleware built by a constructor; same lifetime contract as
// ProvideFunc. MW is the type recorded for explicit opt-in matching and
// resolver lookups.
func Provide[MW any](m *Mediator, provide func(ctx context.Context, s Scope) (MW, error), opts ...MiddlewareOption) {
	d := MiddlewareDescriptor{
		MiddlewareType: reflect.TypeOf((*(MW))(nil)).Elem(),
		Order:          DefaultOrder,
		New: func(ctx context.Context, s Scope) (any, error) {
			mw, err := provide(ctx, s)
			if err != nil {
				return nil, err
			}
			if !hasPhase(mw) {
				return nil, fmt.Errorf("middleware %T implements no pipeline phase", mw)
			}
			return mw, nil
		},
	}
	for _, o := range opts {
		o.applyMiddleware(&d)
	}
	m.registry.use(&d)
}

// UseDescriptor registers a prebuilt middleware descriptor; the bulk
// registration path for generated code.
func (m *Mediator) UseDescriptor(d MiddlewareDescriptor) {
	if d.MiddlewareType == nil || (d.Instance == nil && d.New == nil && m.resolver == nil) {
		panic("mediator: descriptor needs MiddlewareType and an instance, constructor, or resolver")
	}
	m.registry.use(&d)
}

func funcDescriptor[M, R any](opts []HandlerOption) HandlerDescriptor {
	d := HandlerDescriptor{
		MessageType: reflect.TypeOf((*(M))(nil)).Elem(),
		HandlerType: reflect.TypeOf((*(Func[M, R]))(nil)).Elem(),
		Order:       DefaultOrder,
		Cascades:    reflect.TypeOf((*(R))(nil)).Elem() == reflect.TypeOf((*(Result))(nil)).Elem(),
		Handle: func(ctx context.Context, instance, msg any) (any, error) {
			return instance.(Func[M, R]).Call(ctx, msg.(M))
		},
	}
	for _, o := range opts {
		o.applyHandler(&d)
	}
	return d
}

func procDescriptor[M any](opts []HandlerOption) HandlerDescriptor {
	d := HandlerDescriptor{
		MessageType: reflect.TypeOf((*(M))(nil)).Elem(),
		HandlerType: reflect.TypeOf((*(Proc[M]))(nil)).Elem(),
		Order:       DefaultOrder,
		Handle: func(ctx context.Context, instance, msg any) (any, error) {
			return nil, instance.(Proc[M]).Run(ctx, msg.(M))
		},
	}
	for _, o := range opts {
		o.applyHandler(&d)
	}
	return d
}
