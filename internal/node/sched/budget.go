package sched

import "context"

// Budget yields every n iterations of a bulk loop.
type Budget struct {
	y     Yielder
	every int
	n     int
}

func NewBudget(y Yielder, every int) *Budget {
	if every < 1 {
		every = 1
	}
	return &Budget{y: y, every: every}
}

// Tick counts one iteration and yields when the budget is spent.
func (b *Budget) Tick(ctx context.Context) error {
	b.n++
	if b.n%b.every != 0 {
		return nil
	}
	return b.y.Yield(ctx)
}
