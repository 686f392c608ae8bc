// Package mediator provides in-process message dispatch with middleware
// pipelines for command, query, and event patterns.
//
// The mediator routes a message to handlers by its runtime type. Invoke is
// the request-response path with exactly one handler; Publish is the
// fan-out path with zero to many. Handlers are wrapped in a middleware
// pipeline with Before, After, Finally, and Execute phases, and a handler
// may return a tuple whose extra elements are published as cascading
// messages before the original call returns.
//
// # Quick Start
//
// Define a message and a handler:
//
//	type Ping struct {
//	    ID string
//	}
//
//	type PingFunc struct{}
//
//	func (PingFunc) Call(ctx context.Context, p Ping) (string, error) {
//	    return "Pong: " + p.ID, nil
//	}
//
// Create a mediator, register, and dispatch:
//
//	m := mediator.New()
//
//	mediator.RegisterFunc[Ping, string](m, PingFunc{})
//
//	pong, err := mediator.Invoke[string](ctx, m, Ping{ID: "x"})
//
// Plain functions register with full type inference:
//
//	mediator.HandleFunc(m, func(ctx context.Context, p Ping) (string, error) {
//	    return "Pong: " + p.ID, nil
//	})
//
// # Design Philosophy
//
// The package separates concerns into three layers:
//
//   - Messages: Plain values whose runtime type is the routing key
//   - Mediator: Resolves handlers and orchestrates the pipeline
//   - Handlers: Pure business logic behind the Func and Proc contracts
//
// This separation allows:
//   - Callers decoupled from handler location and construction
//   - Cross-cutting concerns expressed once as middleware
//   - Consistent observability via hooks
//   - Easy testing with function adapters
//
// Registration happens once at startup, typically from generated code or a
// composition root; the registry is immutable after the first dispatch and
// every lookup afterward is a lock-free read.
//
// # Invoke and Publish
//
// Invoke requires exactly one handler for the message type and returns its
// typed response:
//
//	order, err := mediator.Invoke[Order](ctx, m, CreateOrder{SKU: "a-1"})
//
// Zero handlers yields ErrHandlerNotFound, several yield
// ErrAmbiguousHandler. Invoke is the synchronous path: a pipeline
// containing a participant registered with WithAsync is rejected with
// ErrAsyncPipeline instead of silently blocking; InvokeAsync accepts any
// pipeline.
//
// Publish fans out to every handler matching the message: handlers for the
// exact type plus handlers registered for an interface it implements. Zero
// handlers is a valid no-op. All handlers are attempted even if some fail;
// one failure is returned as-is, several are aggregated into *PublishError.
// Handlers run concurrently by default; use Sequentially or
// WithSequentialPublish for strict ascending-Order execution.
//
// # Middleware
//
// Middleware implements any subset of the phase interfaces; phases are
// discovered by type assertion at registration:
//
//	type Audit struct{}
//
//	func (Audit) Before(ctx context.Context, msg any) (mediator.BeforeResult, error) {
//	    return mediator.Continue(time.Now()), nil
//	}
//
//	func (Audit) Finally(ctx context.Context, msg any, err error, s *mediator.State) error {
//	    if start, ok := mediator.StateOf[time.Time](s); ok {
//	        log.Printf("%T took %v", msg, time.Since(start))
//	    }
//	    return nil
//	}
//
//	m.Use(Audit{}, mediator.WithOrder(1))
//
// Pipeline order follows a stack discipline: Before phases run in
// ascending Order, After and Finally phases in descending Order. Finally
// phases run exactly once per invocation no matter how the pipeline ends.
// A Before phase may return mediator.ShortCircuit(v) to skip the handler
// and remaining phases; the short-circuited value becomes the result,
// After phases are skipped, and Finally phases run with a nil error.
//
// Execute phases wrap the entire remaining pipeline and nest
// outermost-first by ascending Order. Retry-style middleware re-invokes
// next, which re-runs every phase and the handler, side effects included:
//
//	func (r Retry) Execute(ctx context.Context, msg any, next mediator.Next) (any, error) {
//	    res, err := next(ctx)
//	    for i := 0; err != nil && i < r.Attempts; i++ {
//	        res, err = next(ctx)
//	    }
//	    return res, err
//	}
//
// Middleware applies to all messages by default. Restrict it with
// AppliesTo[T] (exact type or interface), or register it with ExplicitOnly
// and opt handlers in with WithMiddleware[MW].
//
// # Cascading Messages
//
// A handler that needs to publish events as part of answering declares
// Result as its result type and returns a tuple:
//
//	func (f *CreateOrderFunc) Call(ctx context.Context, cmd CreateOrder) (mediator.Result, error) {
//	    order := f.create(cmd)
//	    return mediator.Tuple(order, OrderCreated{OrderID: order.ID}), nil
//	}
//
// The first tuple element assignable to the caller's expected response
// type is the response; every other non-nil element is published, each
// publish completing before the next, all before Invoke returns. When a
// Before phase short-circuits with a tuple, only the response slot is
// honored and nothing is published: work that never happened produces no
// events.
//
// # Lifetimes and Scopes
//
// Handlers and middleware registered by value are constructed once and
// shared. Constructor registrations (ProvideFunc, ProvideProc, Provide)
// default to the same cache-once behavior, initialized lazily with the
// scope active at first dispatch. Lifetimes delegated to dependency
// injection resolve on every dispatch instead:
//
//	mediator.ProvideFunc(m, newOrderFunc, mediator.WithLifetime(mediator.LifetimeScoped))
//
// The active scope travels on the context:
//
//	scope := locator.NewScope()
//	ctx = mediator.WithScope(ctx, scope)
//
// The mediator borrows the scope; it never creates or closes one. Any
// container can plug in through the Resolver interface, and the bundled
// Locator covers standalone use.
//
// # Hooks
//
// Hooks provide observability without coupling to a logging or metrics
// system:
//
//	m := mediator.New(
//	    mediator.WithOnSuccess(func(ctx context.Context, kind mediator.DispatchKind, msg reflect.Type, d time.Duration) {
//	        metrics.Timing("mediator."+kind.String(), d)
//	    }),
//	    mediator.WithOnFailure(func(ctx context.Context, kind mediator.DispatchKind, msg reflect.Type, err error, d time.Duration) {
//	        slog.ErrorContext(ctx, "dispatch failed", "message", msg.String(), "error", err)
//	    }),
//	)
//
// Available hooks: WithOnDispatch, WithOnSuccess, WithOnFailure,
// WithOnCascade. Multiple hooks of the same kind are called in order.
//
// # Envelope Ingress
//
// Callers outside the process can dispatch through JSON envelopes:
//
//	in := mediator.NewIngress(m)
//	mediator.RegisterMessage[CreateOrder](in, "order/create")
//
//	resp, err := in.Call(ctx, []byte(`{"type": "order/create", "payload": {"sku": "a-1"}}`))
//
// # Error Handling
//
// The mediator never swallows errors. A handler's error reaches the caller
// unchanged after Finally phases run; if a Finally phase itself fails, both
// errors are joined and remain matchable with errors.Is and errors.As.
// Resolution failures surface as *ConstructionError, response mismatches as
// *ResponseTypeError, and multi-handler Publish failures as *PublishError.
// A cancelled context mid-pipeline behaves like a handler failure: Finally
// phases run and the cancellation cause propagates.
//
// # Thread Safety
//
// Mediator is safe for concurrent use after configuration is complete.
// Registering handlers or middleware after the first dispatch panics. The
// only mutable shared state is the instance cache's construct-once slot,
// guarded by a per-descriptor lock that is released before any handler or
// middleware code runs.
package mediator
