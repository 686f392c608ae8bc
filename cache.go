package mediator

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// instanceCache acquires handler and middleware instances per descriptor
// lifetime. LifetimeDefault instances are constructed at most once, with a
// double-checked slot per descriptor, using whatever scope is active at
// first use. DI-managed lifetimes bypass the cache entirely and resolve on
// every dispatch. This is the only mutable shared state in the mediator;
// the slot lock is released before any handler or middleware phase runs.
type instanceCache struct {
	mu    sync.Mutex
	slots map[any]*cacheSlot
}

type cacheSlot struct {
	mu sync.Mutex
	v  atomic.Value // boxed
}

// boxed wraps instances so atomic.Value always stores one concrete type.
type boxed struct{ v any }

func newInstanceCache() *instanceCache {
	return &instanceCache{slots: make(map[any]*cacheSlot)}
}

func (c *instanceCache) handler(ctx context.Context, m *Mediator, d *HandlerDescriptor) (any, error) {
	if d.Lifetime == LifetimeDefault {
		return c.once(ctx, m, d, d.New, d.HandlerType)
	}
	return construct(ctx, m, d.New, d.HandlerType)
}

func (c *instanceCache) middleware(ctx context.Context, m *Mediator, d *MiddlewareDescriptor) (any, error) {
	if d.Lifetime == LifetimeDefault {
		if d.Instance != nil {
			return d.Instance, nil
		}
		return c.once(ctx, m, d, d.New, d.MiddlewareType)
	}
	return construct(ctx, m, d.New, d.MiddlewareType)
}

// once returns the cached instance for key, constructing it under the
// slot lock on first use. A failed construction is not cached, so a later
// dispatch can retry with a working scope.
func (c *instanceCache) once(ctx context.Context, m *Mediator, key any, build func(context.Context, Scope) (any, error), typ reflect.Type) (any, error) {
	s := c.slot(key)
	if v := s.v.Load(); v != nil {
		return v.(boxed).v, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.v.Load(); v != nil {
		return v.(boxed).v, nil
	}

	inst, err := construct(ctx, m, build, typ)
	if err != nil {
		return nil, err
	}
	s.v.Store(boxed{v: inst})
	return inst, nil
}

func (c *instanceCache) slot(key any) *cacheSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &cacheSlot{}
		c.slots[key] = s
	}
	return s
}

// construct builds an instance from the descriptor's own constructor when
// present, falling back to the mediator's resolver by type.
func construct(ctx context.Context, m *Mediator, build func(context.Context, Scope) (any, error), typ reflect.Type) (any, error) {
	scope := ScopeFrom(ctx)
	if build != nil {
		inst, err := build(ctx, scope)
		if err != nil {
			return nil, &ConstructionError{Type: typ, Err: err}
		}
		return inst, nil
	}
	if m.resolver == nil {
		return nil, &ConstructionError{Type: typ, Err: ErrNoResolver}
	}
	inst, err := m.resolver.Resolve(ctx, typ, scope)
	if err != nil {
		return nil, &ConstructionError{Type: typ, Err: err}
	}
	return inst, nil
}
