package mediator

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"
)

// Invoke dispatches a message to its single registered handler and returns
// the typed response. Exactly one handler must be registered for the
// message's runtime type: zero yields ErrHandlerNotFound, more than one
// yields ErrAmbiguousHandler.
//
// Invoke is the synchronous path: it fails with ErrAsyncPipeline if the
// handler or any applicable middleware was registered with WithAsync,
// rather than silently blocking. Use InvokeAsync for pipelines that
// suspend.
//
// Cascading messages from a tuple-returning handler are fully published
// before Invoke returns.
//
// Example:
//
//	pong, err := mediator.Invoke[string](ctx, m, Ping{ID: "x"})
func Invoke[R any](ctx context.Context, m *Mediator, msg any) (R, error) {
	return invoke[R](ctx, m, msg, false)
}

// InvokeAsync is Invoke without the synchronous-pipeline restriction: the
// pipeline may contain participants registered with WithAsync. The call
// still blocks until the handler, its middleware, and all cascaded
// publishes complete.
func InvokeAsync[R any](ctx context.Context, m *Mediator, msg any) (R, error) {
	return invoke[R](ctx, m, msg, true)
}

func invoke[R any](ctx context.Context, m *Mediator, msg any, async bool) (R, error) {
	var zero R
	if msg == nil {
		return zero, ErrNilMessage
	}
	m.freeze()

	t := reflect.TypeOf(msg)
	ds := m.registry.Lookup(t)
	switch {
	case len(ds) == 0:
		return zero, fmt.Errorf("%w for %s", ErrHandlerNotFound, t)
	case len(ds) > 1:
		return zero, fmt.Errorf("%w for %s: %d found", ErrAmbiguousHandler, t, len(ds))
	}

	p, err := m.pipelineFor(ctx, t, msg, ds[0])
	if err != nil {
		return zero, err
	}
	if !async {
		if err := p.requireSync(); err != nil {
			return zero, err
		}
	}

	m.hooks.dispatch(ctx, KindInvoke, t)
	start := time.Now()

	out, err := p.run(ctx)
	if err != nil {
		m.hooks.failure(ctx, KindInvoke, t, err, time.Since(start))
		return zero, err
	}

	resp, err := resolveResponse[R](ctx, m, t, out)
	if err != nil {
		m.hooks.failure(ctx, KindInvoke, t, err, time.Since(start))
		return zero, err
	}

	m.hooks.success(ctx, KindInvoke, t, time.Since(start))
	return resp, nil
}

// publishConfig is the fan-out execution policy.
type publishConfig struct {
	sequential bool
	limit      int
}

// PublishOption overrides the mediator's fan-out policy for one Publish
// call.
type PublishOption func(*publishConfig)

// Sequentially runs handlers one at a time in ascending Order.
func Sequentially() PublishOption {
	return func(c *publishConfig) {
		c.sequential = true
	}
}

// Concurrently runs handlers concurrently, at most limit at a time; zero
// means no limit. Start order follows ascending Order, but completion
// order is unspecified.
func Concurrently(limit int) PublishOption {
	return func(c *publishConfig) {
		c.sequential = false
		c.limit = limit
	}
}

// Publish dispatches a message to every matching handler: those registered
// for its exact type plus those registered for an interface it implements.
// Zero matching handlers is a valid no-op.
//
// Every handler is attempted even when some fail; a failure in one pipeline
// never prevents the others from running. If exactly one handler fails its
// error is returned as-is; two or more failures are aggregated into a
// *PublishError. Handlers run concurrently by default (see
// WithSequentialPublish, Sequentially, Concurrently).
//
// Example:
//
//	if err := m.Publish(ctx, OrderCreated{OrderID: id}); err != nil {
//	    var perr *mediator.PublishError
//	    if errors.As(err, &perr) {
//	        // inspect perr.Errors
//	    }
//	}
func (m *Mediator) Publish(ctx context.Context, msg any, opts ...PublishOption) error {
	if msg == nil {
		return ErrNilMessage
	}
	m.freeze()

	cfg := m.publishDefaults
	for _, o := range opts {
		o(&cfg)
	}

	t := reflect.TypeOf(msg)
	ds := m.registry.fanoutFor(t)
	if len(ds) == 0 {
		return nil
	}

	m.hooks.dispatch(ctx, KindPublish, t)
	start := time.Now()

	errs := make([]error, len(ds))
	runOne := func(d *HandlerDescriptor) error {
		p, err := m.pipelineFor(ctx, t, msg, d)
		if err != nil {
			return err
		}
		out, err := p.run(ctx)
		if err != nil {
			return err
		}
		return m.cascadeAll(ctx, t, out)
	}

	if cfg.sequential {
		for i, d := range ds {
			errs[i] = runOne(d)
		}
	} else {
		var g errgroup.Group
		if cfg.limit > 0 {
			g.SetLimit(cfg.limit)
		}
		for i, d := range ds {
			i, d := i, d
			g.Go(func() error {
				errs[i] = runOne(d)
				return nil
			})
		}
		_ = g.Wait()
	}

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}

	var err error
	switch len(failed) {
	case 0:
		m.hooks.success(ctx, KindPublish, t, time.Since(start))
		return nil
	case 1:
		err = failed[0]
	default:
		err = &PublishError{Errors: failed}
	}
	m.hooks.failure(ctx, KindPublish, t, err, time.Since(start))
	return err
}

// pipelineFor resolves the handler instance and applicable middleware for
// one dispatch.
func (m *Mediator) pipelineFor(ctx context.Context, t reflect.Type, msg any, d *HandlerDescriptor) (*pipeline, error) {
	instance, err := m.cache.handler(ctx, m, d)
	if err != nil {
		return nil, err
	}

	mds := m.registry.middlewareFor(t, d.Middleware)
	mws := make([]middlewareUnit, 0, len(mds))
	for _, md := range mds {
		v, err := m.cache.middleware(ctx, m, md)
		if err != nil {
			return nil, err
		}
		mws = append(mws, middlewareUnit{d: md, v: v})
	}

	return &pipeline{
		handler:  d,
		instance: instance,
		msg:      msg,
		msgType:  t,
		mws:      mws,
	}, nil
}
