package engine_test

import (
	"errors"
	"testing"

	"fenrir/internal/book"
	"fenrir/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func pair() engine.TradingPair {
	return engine.TradingPair{Base: "BTC", Quote: "USD"}
}

func TestAddNewMarketIsIdempotent(t *testing.T) {
	e := engine.New()
	id1 := e.AddNewMarket(pair())
	id2 := e.AddNewMarket(pair())
	assert.Equal(t, id1, id2)
	assert.Len(t, e.GetOrderbooks(), 1)
}

func TestPlaceLimitOrder_RestsWhenNonCrossing(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	resp, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{UserID: "alice", Side: book.Bid, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, engine.Open, resp.Order.Status)
	assert.Equal(t, 5.0, resp.Order.RemainingSize)
	assert.NotEmpty(t, resp.Message)
}

// Scenario F: an aggressive limit order that would cross the book is
// rejected outright, never rested and never matched.
func TestPlaceLimitOrder_RejectsCrossingAsk(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	_, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{UserID: "alice", Side: book.Bid, Size: 5})
	require.NoError(t, err)

	_, err = e.PlaceLimitOrder(pair(), dec("99"), book.Order{UserID: "bob", Side: book.Ask, Size: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrCrossingLimit))
	assert.Contains(t, err.Error(), "sell order on that price 99")

	ob, ok := e.GetLimitsForAPair(pair())
	require.True(t, ok)
	assert.Equal(t, 5.0, ob.BidCapacity())
	assert.Equal(t, 0.0, ob.AskCapacity())
}

func TestPlaceLimitOrder_RejectsCrossingBid(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	_, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{UserID: "alice", Side: book.Ask, Size: 5})
	require.NoError(t, err)

	_, err = e.PlaceLimitOrder(pair(), dec("101"), book.Order{UserID: "bob", Side: book.Bid, Size: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrCrossingLimit))
	assert.Contains(t, err.Error(), "buy order on that price 101")
}

func TestPlaceLimitOrder_UnknownMarket(t *testing.T) {
	e := engine.New()
	_, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{Side: book.Bid, Size: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrUnknownMarket))
}

func TestFillMarketOrder_ConservationHolds(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	placed, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{UserID: "alice", Side: book.Ask, Size: 10})
	require.NoError(t, err)

	order := &book.Order{UserID: "bob", Side: book.Bid, Size: 4}
	resp, err := e.FillMarketOrder(pair(), order)
	require.NoError(t, err)
	assert.Equal(t, engine.Filled, resp.Order.Status)
	assert.Equal(t, 4.0, resp.Order.FilledSize)
	assert.Equal(t, 0.0, resp.Order.RemainingSize)

	rested, ok := e.GetOrder(placed.Order.ID)
	require.True(t, ok)
	assert.Equal(t, rested.OriginalSize, rested.RemainingSize+rested.FilledSize)
	assert.Equal(t, 6.0, rested.RemainingSize)
	assert.Equal(t, engine.PartiallyFilled, rested.Status)
}

func TestFillMarketOrder_InsufficientLiquidityLeavesBookUntouched(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	_, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{UserID: "alice", Side: book.Ask, Size: 3})
	require.NoError(t, err)

	order := &book.Order{UserID: "bob", Side: book.Bid, Size: 10}
	resp, err := e.FillMarketOrder(pair(), order)
	require.NoError(t, err)
	assert.Equal(t, engine.Rejected, resp.Order.Status)
	assert.Equal(t, 0.0, resp.Order.FilledSize)

	ob, ok := e.GetLimitsForAPair(pair())
	require.True(t, ok)
	assert.Equal(t, 3.0, ob.AskCapacity())
}

func TestByIDVariantsMatchByPairVariants(t *testing.T) {
	e := engine.New()
	id := e.AddNewMarket(pair())

	gotPair, ok := e.TradingPairFor(id)
	require.True(t, ok)
	assert.Equal(t, pair(), gotPair)

	resp, err := e.PlaceLimitOrderByID(id, dec("50"), book.Order{UserID: "alice", Side: book.Bid, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, id, mustMarketID(t, e, resp.Order.Pair))
}

func TestRawVariantsSkipMessageFormatting(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	snap, err := e.PlaceLimitOrderRaw(pair(), dec("50"), book.Order{UserID: "alice", Side: book.Bid, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, engine.Open, snap.Status)

	order := &book.Order{UserID: "bob", Side: book.Ask, Size: 2}
	filled, err := e.FillMarketOrderRaw(pair(), order)
	require.NoError(t, err)
	assert.Equal(t, engine.Filled, filled.Status)
}

func TestStatsAccumulateAcrossFills(t *testing.T) {
	e := engine.New()
	e.AddNewMarket(pair())

	_, err := e.PlaceLimitOrder(pair(), dec("100"), book.Order{UserID: "alice", Side: book.Ask, Size: 5})
	require.NoError(t, err)
	_, err = e.FillMarketOrder(pair(), &book.Order{UserID: "bob", Side: book.Bid, Size: 5})
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.FillsTotal)
	assert.Equal(t, 5.0, stats.TotalMatchedQty)

	e.ResetStats()
	assert.Equal(t, engine.EngineStats{}, e.Stats())
}

func mustMarketID(t *testing.T, e *engine.MatchEngine, pair engine.TradingPair) engine.MarketId {
	t.Helper()
	id, ok := e.GetMarketID(pair)
	require.True(t, ok)
	return id
}
