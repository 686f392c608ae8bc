package mediator_test

import (
	"context"
	"fmt"

	"github.com/bjaus/mediator"
)

type Ping struct {
	ID string
}

func Example() {
	m := mediator.New()

	mediator.HandleFunc(m, func(ctx context.Context, p Ping) (string, error) {
		return "Pong: " + p.ID, nil
	})

	pong, err := mediator.Invoke[string](context.Background(), m, Ping{ID: "42"})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(pong)
	// Output: Pong: 42
}

type Withdraw struct {
	Account string
	Amount  int
}

type balanceGuard struct {
	limit int
}

func (g balanceGuard) Before(ctx context.Context, msg any) (mediator.BeforeResult, error) {
	if w, ok := msg.(Withdraw); ok && w.Amount > g.limit {
		return mediator.ShortCircuit("declined"), nil
	}
	return mediator.Continue(), nil
}

func Example_middleware() {
	m := mediator.New()

	mediator.HandleFunc(m, func(ctx context.Context, w Withdraw) (string, error) {
		return fmt.Sprintf("withdrew %d from %s", w.Amount, w.Account), nil
	})
	m.Use(balanceGuard{limit: 100})

	ctx := context.Background()
	ok, _ := mediator.Invoke[string](ctx, m, Withdraw{Account: "a-1", Amount: 50})
	declined, _ := mediator.Invoke[string](ctx, m, Withdraw{Account: "a-1", Amount: 500})

	fmt.Println(ok)
	fmt.Println(declined)
	// Output:
	// withdrew 50 from a-1
	// declined
}

type CreateOrder struct {
	SKU string
}

type Order struct {
	ID  int
	SKU string
}

type OrderCreated struct {
	OrderID int
}

func Example_cascade() {
	m := mediator.New()

	mediator.HandleFunc(m, func(ctx context.Context, cmd CreateOrder) (mediator.Result, error) {
		o := Order{ID: 1, SKU: cmd.SKU}
		return mediator.Tuple(o, OrderCreated{OrderID: o.ID}), nil
	})
	mediator.HandleProc(m, func(ctx context.Context, e OrderCreated) error {
		fmt.Println("receipt sent for order", e.OrderID)
		return nil
	})

	o, err := mediator.Invoke[Order](context.Background(), m, CreateOrder{SKU: "widget"})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("created order %d (%s)\n", o.ID, o.SKU)
	// Output:
	// receipt sent for order 1
	// created order 1 (widget)
}

func Example_publish() {
	m := mediator.New()

	mediator.HandleProc(m, func(ctx context.Context, e OrderCreated) error {
		fmt.Println("mailer: order", e.OrderID)
		return nil
	}, mediator.WithOrder(1))
	mediator.HandleProc(m, func(ctx context.Context, e OrderCreated) error {
		fmt.Println("warehouse: order", e.OrderID)
		return nil
	}, mediator.WithOrder(2))

	if err := m.Publish(context.Background(), OrderCreated{OrderID: 7}, mediator.Sequentially()); err != nil {
		fmt.Println("error:", err)
	}
	// Output:
	// mailer: order 7
	// warehouse: order 7
}
