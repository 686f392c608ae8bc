package mediator

import "context"

// Proc (procedure) handles a message without returning a result.
// Use this for notification handlers registered for Publish fan-out.
//
// The type parameter M is the message type. Messages are matched by their
// runtime type, so a Proc registered for an interface type receives every
// published message that implements it.
//
// Example:
//
//	type OrderCreatedProc struct {
//	    mailer Mailer
//	}
//
//	func (p *OrderCreatedProc) Run(ctx context.Context, e OrderCreated) error {
//	    return p.mailer.SendReceipt(ctx, e.OrderID)
//	}
type Proc[M any] interface {
	Run(ctx context.Context, msg M) error
}

// ProcFunc is a function adapter for Proc. Use for simple procedures
// that don't need a struct (HandleProc wraps this for you):
//
//	mediator.HandleProc(m, func(ctx context.Context, e OrderCreated) error {
//	    return nil
//	})
type ProcFunc[M any] func(ctx context.Context, msg M) error

// Run implements the Proc interface.
func (f ProcFunc[M]) Run(ctx context.Context, msg M) error {
	return f(ctx, msg)
}

// Func (function) handles a message and returns a typed result.
// Use this for request-response handlers invoked with Invoke or InvokeAsync.
//
// The type parameters are: M for the message, R for the result. A handler
// that wants to publish cascading messages declares R = Result and returns
// a value built with Tuple.
//
// Example:
//
//	type CreateOrderFunc struct {
//	    db *sql.DB
//	}
//
//	func (f *CreateOrderFunc) Call(ctx context.Context, cmd CreateOrder) (mediator.Result, error) {
//	    order, err := f.insert(ctx, cmd)
//	    if err != nil {
//	        return mediator.Result{}, err
//	    }
//	    return mediator.Tuple(order, OrderCreated{OrderID: order.ID}), nil
//	}
type Func[M, R any] interface {
	Call(ctx context.Context, msg M) (R, error)
}

// FuncFunc is a function adapter for Func. Use for simple functions
// that don't need a struct (HandleFunc wraps this for you):
//
//	mediator.HandleFunc(m, func(ctx context.Context, p Ping) (string, error) {
//	    return "Pong: " + p.ID, nil
//	})
type FuncFunc[M, R any] func(ctx context.Context, msg M) (R, error)

// Call implements the Func interface.
func (f FuncFunc[M, R]) Call(ctx context.Context, msg M) (R, error) {
	return f(ctx, msg)
}
