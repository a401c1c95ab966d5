package book

import "container/list"

// Limit is a price level: a FIFO queue of resting orders at one price, plus
// the level's aggregate resting volume. The queue is arrival-ordered, which
// gives time priority within the price.
type Limit struct {
	Price Tick

	orders      *list.List // of *RestingOrder, front = oldest
	totalVolume float64
}

// NewLimit creates an empty price level at price.
func NewLimit(price Tick) *Limit {
	return &Limit{
		Price:  price,
		orders: list.New(),
	}
}

// TotalVolume returns the sum of resting quantity at this level.
func (l *Limit) TotalVolume() float64 {
	return l.totalVolume
}

// Empty reports whether the level has no resting orders. Empty levels are
// reaped by the owning OrderBook; they must never be retained.
func (l *Limit) Empty() bool {
	return l.orders.Len() == 0
}

// Orders returns a snapshot copy of the resting orders, oldest first,
// suitable for serialization. Mutating the result does not affect the book.
func (l *Limit) Orders() []RestingOrder {
	out := make([]RestingOrder, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		r := e.Value.(*RestingOrder)
		out = append(out, *r)
	}
	return out
}

// AddOrder appends r at the tail of the queue. Precondition: r.Qty > 0.
func (l *Limit) AddOrder(r RestingOrder) {
	l.orders.PushBack(&r)
	l.totalVolume += r.Qty
}

// fillStats accumulates the result of consuming this level against an
// incoming order.
type fillStats struct {
	fillsTotal            uint64
	restingOrdersConsumed uint64
	matchedQty            float64
}

// FillOrder consumes from the head of the queue against incoming.Size until
// incoming.Size reaches 0 or the queue empties. Every branch decrements
// totalVolume by exactly the quantity matched.
func (l *Limit) FillOrder(incoming *Order, fn onFill) fillStats {
	var stats fillStats

	for incoming.Size > 0 {
		front := l.orders.Front()
		if front == nil {
			break
		}
		resting := front.Value.(*RestingOrder)

		matched := resting.Qty
		if incoming.Size < matched {
			matched = incoming.Size
		}

		incoming.Size -= matched
		resting.Qty -= matched
		l.totalVolume -= matched

		stats.fillsTotal++
		stats.matchedQty += matched
		fn(resting.ID, matched)

		if resting.Qty == 0 {
			stats.restingOrdersConsumed++
			l.orders.Remove(front)
		}
	}

	if l.totalVolume < 0 {
		l.totalVolume = 0
	}

	return stats
}
