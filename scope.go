package mediator

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Scope is an opaque handle to a dependency-resolution scope. The mediator
// borrows the scope in effect when a dispatch call arrives; it never creates
// or closes scopes itself. Callers attach a scope to the context with
// WithScope and own its lifecycle.
type Scope any

type scopeKey struct{}

// WithScope attaches a resolution scope to the context. Handlers and
// middleware with a DI-managed lifetime are resolved against this scope.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope attached to the context, or nil if none.
func ScopeFrom(ctx context.Context) Scope {
	return ctx.Value(scopeKey{})
}

// Resolver resolves instances by type from a scope. It is the boundary to
// an external dependency-injection container; the mediator treats it as an
// opaque service locator and applies no caching of its own for
// LifetimeTransient, LifetimeScoped, or LifetimeSingleton descriptors.
type Resolver interface {
	Resolve(ctx context.Context, typ reflect.Type, scope Scope) (any, error)
}

// Locator is a small Resolver implementation for wiring the mediator
// without an external container. It supports singleton, scoped, and
// transient providers and hands out child scopes via NewScope.
//
// Configure providers before first use; Locator is safe for concurrent
// resolution afterward.
type Locator struct {
	providers map[reflect.Type]*provider
}

type provider struct {
	lifetime Lifetime
	build    func(ctx context.Context, s Scope) (any, error)

	mu    sync.Mutex
	built bool
	inst  any
}

// NewLocator creates an empty Locator.
func NewLocator() *Locator {
	return &Locator{providers: make(map[reflect.Type]*provider)}
}

// ProvideType registers a provider for type T. LifetimeSingleton providers
// are built once per Locator; LifetimeScoped once per scope; everything
// else is built on every resolution.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
func ProvideType[T any](l *Locator, lifetime Lifetime, build func(ctx context.Context, s Scope) (T, error)) {
	l.providers[reflect.TypeOf((*(T))(nil)).Elem()] = &provider{
		lifetime: lifetime,
		build: func(ctx context.Context, s Scope) (any, error) {
			return build(ctx, s)
		},
	}
}

// Resolve implements Resolver.
func (l *Locator) Resolve(ctx context.Context, typ reflect.Type, scope Scope) (any, error) {
	p, ok := l.providers[typ]
	if !ok {
		return nil, fmt.Errorf("no provider for %s", typ)
	}

	switch p.lifetime {
	case LifetimeSingleton:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.built {
			return p.inst, nil
		}
		inst, err := p.build(ctx, scope)
		if err != nil {
			return nil, err
		}
		p.inst = inst
		p.built = true
		return inst, nil

	case LifetimeScoped:
		ls, ok := scope.(*LocatorScope)
		if !ok {
			return nil, fmt.Errorf("scoped provider for %s requires a locator scope", typ)
		}
		return ls.instance(ctx, typ, p)

	default:
		return p.build(ctx, scope)
	}
}

// NewScope creates a child scope. Scoped providers resolve at most once per
// scope. Attach the scope to a context with WithScope.
func (l *Locator) NewScope() *LocatorScope {
	return &LocatorScope{
		id:        uuid.NewString(),
		locator:   l,
		instances: make(map[reflect.Type]any),
	}
}

// LocatorScope is one resolution scope handed out by a Locator.
type LocatorScope struct {
	id      string
	locator *Locator

	mu        sync.Mutex
	instances map[reflect.Type]any
}

// ID returns the scope's unique identifier, useful for correlating hook
// output with a request.
func (s *LocatorScope) ID() string { return s.id }

func (s *LocatorScope) instance(ctx context.Context, typ reflect.Type, p *provider) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instances[typ]; ok {
		return inst, nil
	}
	inst, err := p.build(ctx, s)
	if err != nil {
		return nil, err
	}
	s.instances[typ] = inst
	return inst, nil
}
