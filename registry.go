package mediator

import (
	"cmp"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry holds the handler and middleware descriptors for one mediator.
// It is populated during registration and becomes immutable at the first
// dispatch; all lookups after that point are pure, allocation-light reads
// with no synchronization beyond an internal memo for fan-out matching.
type Registry struct {
	handlers   map[reflect.Type][]*HandlerDescriptor
	middleware []*MiddlewareDescriptor
	seq        int
	frozen     atomic.Bool

	// fanout memoizes assignability matching per published message type.
	// Safe because the descriptor tables never change after freeze.
	fanout sync.Map // reflect.Type -> []*HandlerDescriptor
}

func newRegistry() *Registry {
	return &Registry{handlers: make(map[reflect.Type][]*HandlerDescriptor)}
}

func (r *Registry) add(d *HandlerDescriptor) {
	if r.frozen.Load() {
		panic("mediator: handler registered after first dispatch")
	}
	r.seq++
	d.seq = r.seq
	r.handlers[d.MessageType] = append(r.handlers[d.MessageType], d)
}

func (r *Registry) use(d *MiddlewareDescriptor) {
	if r.frozen.Load() {
		panic("mediator: middleware registered after first dispatch")
	}
	r.seq++
	d.seq = r.seq
	r.middleware = append(r.middleware, d)
}

// freeze sorts every descriptor list and marks the registry read-only.
func (r *Registry) freeze() {
	for _, ds := range r.handlers {
		slices.SortStableFunc(ds, func(a, b *HandlerDescriptor) int {
			if c := cmp.Compare(a.Order, b.Order); c != 0 {
				return c
			}
			return cmp.Compare(a.seq, b.seq)
		})
	}
	r.frozen.Store(true)
}

// Lookup returns the descriptors registered for exactly the given message
// type, sorted by Order. The returned slice is shared and must not be
// modified; repeated lookups return identical content in identical order.
func (r *Registry) Lookup(t reflect.Type) []*HandlerDescriptor {
	return r.handlers[t]
}

// fanoutFor returns every descriptor matching the message type for Publish:
// exact-type handlers plus handlers registered for an interface the type
// implements, merged and sorted by Order.
func (r *Registry) fanoutFor(t reflect.Type) []*HandlerDescriptor {
	if v, ok := r.fanout.Load(t); ok {
		return v.([]*HandlerDescriptor)
	}

	var ds []*HandlerDescriptor
	for key, hs := range r.handlers {
		if key == t || (key.Kind() == reflect.Interface && t.Implements(key)) {
			ds = append(ds, hs...)
		}
	}
	slices.SortStableFunc(ds, func(a, b *HandlerDescriptor) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	r.fanout.Store(t, ds)
	return ds
}

// middlewareFor returns the middleware applicable to a message type, sorted
// for pipeline execution: ascending Order, with ties broken by specificity
// (exact match, then interface match, then universal) and registration
// order. explicit lists the middleware types the handler opted into; it is
// only consulted for ExplicitOnly middleware.
func (r *Registry) middlewareFor(t reflect.Type, explicit []reflect.Type) []*MiddlewareDescriptor {
	var ds []*MiddlewareDescriptor
	for _, d := range r.middleware {
		if d.ExplicitOnly && !slices.Contains(explicit, d.MiddlewareType) {
			continue
		}
		if specificity(d, t) < 0 {
			continue
		}
		ds = append(ds, d)
	}
	slices.SortStableFunc(ds, func(a, b *MiddlewareDescriptor) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := cmp.Compare(specificity(a, t), specificity(b, t)); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return ds
}

// specificity ranks how precisely a middleware's AppliesTo matches the
// message type: 0 exact, 1 interface, 2 universal. Returns -1 for no match.
func specificity(d *MiddlewareDescriptor, t reflect.Type) int {
	switch {
	case d.AppliesTo == nil:
		return 2
	case d.AppliesTo == t:
		return 0
	case d.AppliesTo.Kind() == reflect.Interface && t.Implements(d.AppliesTo):
		return 1
	default:
		return -1
	}
}

// Registration is one {message type, handler descriptor} pair exposed for
// diagnostics and tooling.
type Registration struct {
	MessageType reflect.Type
	Descriptor  HandlerDescriptor
}

// Snapshot returns a read-only copy of every registered handler, sorted by
// message type name and then Order. Reading a snapshot has no side effects
// on dispatch.
func (r *Registry) Snapshot() []Registration {
	var regs []Registration
	for t, ds := range r.handlers {
		for _, d := range ds {
			regs = append(regs, Registration{MessageType: t, Descriptor: *d})
		}
	}
	slices.SortStableFunc(regs, func(a, b Registration) int {
		if c := cmp.Compare(a.MessageType.String(), b.MessageType.String()); c != 0 {
			return c
		}
		return cmp.Compare(a.Descriptor.seq, b.Descriptor.seq)
	})
	return regs
}
