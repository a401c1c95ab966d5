package book_test

import (
	"testing"

	"fenrir/internal/book"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rest(b *book.OrderBook, side book.Side, id book.OrderID, price book.Tick, qty float64) {
	b.AddLimitOrder(price, book.Order{ID: id, Side: side, Size: qty})
}

// Scenario A — multi-level sweep.
func TestMatchMarket_MultiLevelSweep(t *testing.T) {
	b := book.NewOrderBook()
	rest(b, book.Ask, 1, 113000, 40.0)
	rest(b, book.Ask, 2, 120000, 50.0)
	rest(b, book.Ask, 3, 110000, 1.0)
	rest(b, book.Bid, 4, 100000, 100.0)

	order := &book.Order{ID: 5, Side: book.Bid, Size: 5.0}
	report := b.MatchMarket(order, func(book.OrderID, float64) {})

	assert.True(t, report.FullyFilled)
	assert.Equal(t, 0.0, order.Size)

	levels := map[book.Tick]float64{}
	for _, l := range b.Asks() {
		levels[l.Price] = l.TotalVolume()
	}
	assert.Equal(t, map[book.Tick]float64{113000: 36.0, 120000: 50.0}, levels)

	bestBid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, book.Tick(100000), bestBid)
	assert.Equal(t, 100.0, b.BidCapacity())
}

// Scenario B — asks always iterate ascending regardless of insertion order.
func TestAsks_AscendingRegardlessOfInsertOrder(t *testing.T) {
	b := book.NewOrderBook()
	for i, p := range []book.Tick{105, 100, 102, 101, 104} {
		rest(b, book.Ask, book.OrderID(i+1), p, 10)
	}

	bestAsk, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, book.Tick(100), bestAsk)

	var prices []book.Tick
	for _, l := range b.Asks() {
		prices = append(prices, l.Price)
	}
	assert.Equal(t, []book.Tick{100, 101, 102, 104, 105}, prices)
}

// Scenario C — bids always iterate best (highest) first.
func TestBids_DescendingRegardlessOfInsertOrder(t *testing.T) {
	b := book.NewOrderBook()
	for i, p := range []book.Tick{95, 100, 98, 99, 96} {
		rest(b, book.Bid, book.OrderID(i+1), p, 10)
	}

	bestBid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, book.Tick(100), bestBid)

	var prices []book.Tick
	for _, l := range b.Bids() {
		prices = append(prices, l.Price)
	}
	assert.Equal(t, []book.Tick{100, 99, 98, 96, 95}, prices)
}

// Scenario D — partial fill across levels.
func TestMatchMarket_PartialFillAcrossLevels(t *testing.T) {
	b := book.NewOrderBook()
	rest(b, book.Ask, 1, 100, 100)
	rest(b, book.Ask, 2, 101, 100)
	rest(b, book.Ask, 3, 102, 100)
	rest(b, book.Ask, 4, 103, 100)

	order := &book.Order{ID: 5, Side: book.Bid, Size: 250}
	report := b.MatchMarket(order, func(book.OrderID, float64) {})

	assert.True(t, report.FullyFilled)
	assert.Equal(t, 250.0, report.FilledQty)
	assert.Equal(t, uint64(3), report.LevelsCrossed)

	levels := map[book.Tick]float64{}
	for _, l := range b.Asks() {
		levels[l.Price] = l.TotalVolume()
	}
	assert.Equal(t, map[book.Tick]float64{102: 50, 103: 100}, levels)
	assert.Equal(t, 150.0, b.AskCapacity())
}

// Scenario E — insufficient liquidity leaves the book untouched.
func TestMatchMarket_InsufficientLiquidity(t *testing.T) {
	b := book.NewOrderBook()
	rest(b, book.Ask, 1, 100, 100)

	order := &book.Order{ID: 2, Side: book.Bid, Size: 200}
	report := b.MatchMarket(order, func(book.OrderID, float64) {})

	assert.True(t, report.InsufficientLiquidity)
	assert.Equal(t, 0.0, report.FilledQty)
	assert.Equal(t, 200.0, order.Size)
	assert.Equal(t, 100.0, b.AskCapacity())
}

// Invariant: no empty level survives a sweep that exactly exhausts it.
func TestMatchMarket_ExactSizeEmptiesLevel(t *testing.T) {
	b := book.NewOrderBook()
	rest(b, book.Ask, 1, 100, 50)

	order := &book.Order{ID: 2, Side: book.Bid, Size: 50}
	report := b.MatchMarket(order, func(book.OrderID, float64) {})

	assert.True(t, report.FullyFilled)
	assert.Empty(t, b.Asks())
	assert.Equal(t, 0.0, b.AskCapacity())
	_, ok := b.BestAsk()
	assert.False(t, ok)
}

// Invariant: price-time priority within a level.
func TestFillOrder_PriceTimePriority(t *testing.T) {
	b := book.NewOrderBook()
	rest(b, book.Ask, 1, 100, 10)
	rest(b, book.Ask, 2, 100, 10)
	rest(b, book.Ask, 3, 100, 10)

	var filledOrder []book.OrderID
	order := &book.Order{ID: 9, Side: book.Bid, Size: 15}
	b.MatchMarket(order, func(id book.OrderID, qty float64) {
		filledOrder = append(filledOrder, id)
	})

	assert.Equal(t, []book.OrderID{1, 2}, filledOrder)
	remaining := b.Asks()[0].Orders()
	assert.Equal(t, []book.RestingOrder{{ID: 2, Qty: 5}, {ID: 3, Qty: 10}}, remaining)
}

// Invariant: capacity consistency across a mixed sequence of operations.
func TestCapacityConsistency(t *testing.T) {
	b := book.NewOrderBook()
	rest(b, book.Ask, 1, 100, 30)
	rest(b, book.Ask, 2, 101, 70)
	rest(b, book.Bid, 3, 90, 40)

	order := &book.Order{ID: 4, Side: book.Bid, Size: 30}
	b.MatchMarket(order, func(book.OrderID, float64) {})

	var askSum float64
	for _, l := range b.Asks() {
		askSum += l.TotalVolume()
	}
	assert.Equal(t, askSum, b.AskCapacity())

	var bidSum float64
	for _, l := range b.Bids() {
		bidSum += l.TotalVolume()
	}
	assert.Equal(t, bidSum, b.BidCapacity())
}
