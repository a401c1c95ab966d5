package book

import (
	"github.com/tidwall/btree"
)

type priceLevels = btree.BTreeG[*Limit]

// OrderBook holds the resting orders for one trading pair: two price-indexed
// maps (bids, asks) plus cached aggregate capacity per side. asks is ordered
// ascending by price (best ask = lowest); bids is ordered descending (best
// bid = highest).
type OrderBook struct {
	asks *priceLevels
	bids *priceLevels

	askCapacity float64
	bidCapacity float64
}

// NewOrderBook returns an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		asks: btree.NewBTreeG(func(a, b *Limit) bool { return a.Price < b.Price }),
		bids: btree.NewBTreeG(func(a, b *Limit) bool { return a.Price > b.Price }),
	}
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (Tick, bool) {
	l, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return l.Price, true
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (Tick, bool) {
	l, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return l.Price, true
}

// AskCapacity is the cached sum of resting ask volume.
func (b *OrderBook) AskCapacity() float64 { return b.askCapacity }

// BidCapacity is the cached sum of resting bid volume.
func (b *OrderBook) BidCapacity() float64 { return b.bidCapacity }

// Asks returns the ask levels in best-first (ascending price) order. The
// slice and its Limits are safe for read-only use by the caller.
func (b *OrderBook) Asks() []*Limit { return collect(b.asks) }

// Bids returns the bid levels in best-first (descending price) order.
func (b *OrderBook) Bids() []*Limit { return collect(b.bids) }

func collect(tr *priceLevels) []*Limit {
	out := make([]*Limit, 0, tr.Len())
	tr.Scan(func(l *Limit) bool {
		out = append(out, l)
		return true
	})
	return out
}

// sideLevels returns the side map an order of side rests on, and a pointer
// to that side's cached capacity.
func (b *OrderBook) sideLevels(side Side) (*priceLevels, *float64) {
	if side == Bid {
		return b.bids, &b.bidCapacity
	}
	return b.asks, &b.askCapacity
}

// AddLimitOrder inserts order's quantity at price in the side map selected
// by order.Side, creating the level if absent, and updates that side's
// cached capacity. The caller (MatchEngine) is responsible for rejecting
// crossing limits before calling this; AddLimitOrder performs no crossing
// check.
func (b *OrderBook) AddLimitOrder(price Tick, order Order) {
	levels, capacity := b.sideLevels(order.Side)

	level, ok := levels.GetMut(&Limit{Price: price})
	if !ok {
		level = NewLimit(price)
		levels.Set(level)
	}
	level.AddOrder(RestingOrder{ID: order.ID, Qty: order.Size})
	*capacity += order.Size
}

// FillReport summarizes the outcome of a market order sweep.
type FillReport struct {
	InsufficientLiquidity bool
	FullyFilled           bool
	FilledQty             float64
	RemainingQty          float64
	FillsTotal            uint64
	RestingOrdersConsumed uint64
	LevelsCrossed         uint64
	TotalMatchedQty       float64
}

// MatchMarket executes a market order of order.Side and order.Size against
// the opposing side in best-price-first order. If the opposing side's
// cached capacity is less than order.Size, the book is left completely
// unmodified and the report reports InsufficientLiquidity: a market order
// either fully fills or does nothing.
func (b *OrderBook) MatchMarket(order *Order, fn onFill) FillReport {
	requested := order.Size
	levels, capacity := b.sideLevels(oppositeSide(order.Side))

	if *capacity < requested {
		return FillReport{
			InsufficientLiquidity: true,
			RemainingQty:          requested,
		}
	}

	var report FillReport
	for order.Size > 0 {
		level, ok := levels.MinMut()
		if !ok {
			break // unreachable given the capacity pre-check above
		}

		stats := level.FillOrder(order, fn)
		if stats.fillsTotal > 0 {
			report.LevelsCrossed++
		}
		report.FillsTotal += stats.fillsTotal
		report.RestingOrdersConsumed += stats.restingOrdersConsumed
		report.TotalMatchedQty += stats.matchedQty

		if level.Empty() {
			levels.Delete(level)
		}
	}

	*capacity -= report.TotalMatchedQty
	if *capacity < 0 {
		*capacity = 0
	}

	report.FilledQty = requested - order.Size
	report.RemainingQty = order.Size
	report.FullyFilled = order.Size == 0
	return report
}

func oppositeSide(s Side) Side {
	if s == Bid {
		return Ask
	}
	return Bid
}
