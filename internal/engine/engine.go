// Package engine is the multi-market registry that dispatches order
// placement and matching to the correct book, assigns order identity,
// enforces the aggressive-limit rejection policy, and tracks every order's
// lifecycle and cumulative statistics.
//
// The engine is single-threaded by contract: callers that need concurrent
// access must serialize it themselves (§5 of the design — there are no
// internal locks).
package engine

import (
	"math"

	"fenrir/internal/book"
	"fenrir/internal/tick"

	"github.com/shopspring/decimal"
)

// MatchEngine owns every registered market's book plus the cross-market
// bookkeeping: order identity allocation, the snapshot table, and
// cumulative stats.
type MatchEngine struct {
	markets     []TradingPair
	orderbooks  []*book.OrderBook
	marketIndex map[TradingPair]MarketId

	orders      map[book.OrderID]OrderSnapshot
	nextOrderID uint64

	stats EngineStats
}

// New returns an empty engine with no registered markets.
func New() *MatchEngine {
	return &MatchEngine{
		marketIndex: make(map[TradingPair]MarketId),
		orders:      make(map[book.OrderID]OrderSnapshot),
		nextOrderID: 1,
	}
}

// allocateOrderID hands out the next order id, saturating rather than
// wrapping if the 64-bit space is ever exhausted.
func (e *MatchEngine) allocateOrderID() book.OrderID {
	id := e.nextOrderID
	if e.nextOrderID != math.MaxUint64 {
		e.nextOrderID++
	}
	return book.OrderID(id)
}

// ensureOrderIdentity assigns a real id on first contact (id == 0 means
// unassigned) and defaults an empty user id to "unknown".
func (e *MatchEngine) ensureOrderIdentity(order *book.Order) {
	if order.ID == 0 {
		order.ID = e.allocateOrderID()
	}
	if order.UserID == "" {
		order.UserID = "unknown"
	}
}

// AddNewMarket registers pair if it isn't already known and returns its
// MarketId. Registration is idempotent: a duplicate call returns the
// existing id without creating a second book.
func (e *MatchEngine) AddNewMarket(pair TradingPair) MarketId {
	if id, ok := e.marketIndex[pair]; ok {
		return id
	}
	id := MarketId(len(e.markets))
	e.markets = append(e.markets, pair)
	e.orderbooks = append(e.orderbooks, book.NewOrderBook())
	e.marketIndex[pair] = id
	return id
}

// GetMarketID resolves a registered pair to its MarketId.
func (e *MatchEngine) GetMarketID(pair TradingPair) (MarketId, bool) {
	id, ok := e.marketIndex[pair]
	return id, ok
}

// TradingPairFor resolves a MarketId back to its TradingPair.
func (e *MatchEngine) TradingPairFor(id MarketId) (TradingPair, bool) {
	if id < 0 || int(id) >= len(e.markets) {
		return TradingPair{}, false
	}
	return e.markets[id], true
}

// GetOrderbooks lists every registered pair, in registration order.
func (e *MatchEngine) GetOrderbooks() []TradingPair {
	out := make([]TradingPair, len(e.markets))
	copy(out, e.markets)
	return out
}

// GetOrder looks up a single order's current snapshot.
func (e *MatchEngine) GetOrder(id book.OrderID) (OrderSnapshot, bool) {
	snap, ok := e.orders[id]
	return snap, ok
}

// GetOrdersForUser returns every snapshot belonging to userID.
func (e *MatchEngine) GetOrdersForUser(userID string) []OrderSnapshot {
	var out []OrderSnapshot
	for _, snap := range e.orders {
		if snap.UserID == userID {
			out = append(out, snap)
		}
	}
	return out
}

// GetLimitsForAPair returns a read-only view of pair's book.
func (e *MatchEngine) GetLimitsForAPair(pair TradingPair) (*book.OrderBook, bool) {
	id, ok := e.marketIndex[pair]
	if !ok {
		return nil, false
	}
	return e.GetLimitsForMarket(id)
}

// GetLimitsForMarket returns a read-only view of the book registered at id.
func (e *MatchEngine) GetLimitsForMarket(id MarketId) (*book.OrderBook, bool) {
	if id < 0 || int(id) >= len(e.orderbooks) {
		return nil, false
	}
	return e.orderbooks[id], true
}

// Stats returns a copy of the cumulative counters.
func (e *MatchEngine) Stats() EngineStats {
	return e.stats
}

// ResetStats zeroes the cumulative counters.
func (e *MatchEngine) ResetStats() {
	e.stats = EngineStats{}
}

func snapshotFromOrder(pair TradingPair, order book.Order, orderType OrderType, priceTick *tick.Tick, originalSize float64, status OrderStatus) OrderSnapshot {
	remaining := order.Size
	filled := originalSize - remaining
	if filled < 0 {
		filled = 0
	}
	return OrderSnapshot{
		ID:            order.ID,
		UserID:        order.UserID,
		Pair:          pair,
		Side:          order.Side,
		OrderType:     orderType,
		Price:         priceTick,
		OriginalSize:  originalSize,
		RemainingSize: remaining,
		FilledSize:    filled,
		Status:        status,
	}
}

func applyFillSnapshot(snap *OrderSnapshot, filledQty float64) {
	remaining := snap.RemainingSize - filledQty
	if remaining < 0 {
		remaining = 0
	}
	snap.RemainingSize = remaining
	snap.FilledSize = math.Max(snap.OriginalSize-remaining, 0)
	if remaining == 0 {
		snap.Status = Filled
	} else {
		snap.Status = PartiallyFilled
	}
}

// --- Limit order placement ---------------------------------------------

// PlaceLimitOrder rejects crossing limits and otherwise rests order in
// pair's book, assigning it an id and an Open snapshot.
func (e *MatchEngine) PlaceLimitOrder(pair TradingPair, price decimal.Decimal, order book.Order) (OrderResponse, error) {
	id, ok := e.marketIndex[pair]
	if !ok {
		return OrderResponse{}, errUnknownMarketPair(pair)
	}
	return e.PlaceLimitOrderByID(id, price, order)
}

// PlaceLimitOrderByID is PlaceLimitOrder addressed by MarketId instead of
// TradingPair, for callers that already hold the id from AddNewMarket.
func (e *MatchEngine) PlaceLimitOrderByID(id MarketId, price decimal.Decimal, order book.Order) (OrderResponse, error) {
	return e.PlaceLimitOrderByIDTick(id, tick.FromDecimal(price), order)
}

// PlaceLimitOrderByIDTick is PlaceLimitOrderByID given an already-quantized
// price.
func (e *MatchEngine) PlaceLimitOrderByIDTick(id MarketId, priceTick tick.Tick, order book.Order) (OrderResponse, error) {
	snapshot, err := e.placeLimitOrderInternal(id, priceTick, order)
	if err != nil {
		return OrderResponse{}, err
	}
	message := placedMessage(snapshot, priceTick)
	return OrderResponse{Order: snapshot, Message: message}, nil
}

// PlaceLimitOrderRaw is PlaceLimitOrder without message formatting, for
// callers (tests, benchmarks) that only need the snapshot.
func (e *MatchEngine) PlaceLimitOrderRaw(pair TradingPair, price decimal.Decimal, order book.Order) (OrderSnapshot, error) {
	id, ok := e.marketIndex[pair]
	if !ok {
		return OrderSnapshot{}, errUnknownMarketPair(pair)
	}
	return e.placeLimitOrderInternal(id, tick.FromDecimal(price), order)
}

func (e *MatchEngine) placeLimitOrderInternal(id MarketId, priceTick tick.Tick, order book.Order) (OrderSnapshot, error) {
	e.ensureOrderIdentity(&order)

	if id < 0 || int(id) >= len(e.markets) {
		return OrderSnapshot{}, errUnknownMarketID(id)
	}
	pair := e.markets[id]
	orderbook := e.orderbooks[id]

	switch order.Side {
	case book.Ask:
		if bestBid, ok := orderbook.BestBid(); ok && bestBid >= priceTick {
			return OrderSnapshot{}, errCrossingLimit(book.Ask, priceTick)
		}
	case book.Bid:
		if bestAsk, ok := orderbook.BestAsk(); ok && bestAsk <= priceTick {
			return OrderSnapshot{}, errCrossingLimit(book.Bid, priceTick)
		}
	}

	orderbook.AddLimitOrder(priceTick, order)

	snapshot := snapshotFromOrder(pair, order, Limit, &priceTick, order.Size, Open)
	e.orders[snapshot.ID] = snapshot
	return snapshot, nil
}

func placedMessage(snapshot OrderSnapshot, priceTick tick.Tick) string {
	return " received " + snapshot.Side.String() + " order with size " +
		trimFloat(snapshot.OriginalSize) + " in pair " + snapshot.Pair.String() +
		" on price " + tick.ToDecimal(priceTick).String()
}

// --- Market order matching ----------------------------------------------

// FillMarketOrder matches order against the opposing side of pair's book.
func (e *MatchEngine) FillMarketOrder(pair TradingPair, order *book.Order) (OrderResponse, error) {
	id, ok := e.marketIndex[pair]
	if !ok {
		return OrderResponse{}, errUnknownMarketPair(pair)
	}
	return e.FillMarketOrderByID(id, order)
}

// FillMarketOrderByID is FillMarketOrder addressed by MarketId.
func (e *MatchEngine) FillMarketOrderByID(id MarketId, order *book.Order) (OrderResponse, error) {
	snapshot, report, err := e.executeMarketOrder(id, order)
	if err != nil {
		return OrderResponse{}, err
	}
	return OrderResponse{Order: snapshot, Message: marketMessage(snapshot.Side, report)}, nil
}

// FillMarketOrderRaw is FillMarketOrder without message formatting.
func (e *MatchEngine) FillMarketOrderRaw(pair TradingPair, order *book.Order) (OrderSnapshot, error) {
	id, ok := e.marketIndex[pair]
	if !ok {
		return OrderSnapshot{}, errUnknownMarketPair(pair)
	}
	snapshot, _, err := e.executeMarketOrder(id, order)
	return snapshot, err
}

func (e *MatchEngine) executeMarketOrder(id MarketId, order *book.Order) (OrderSnapshot, book.FillReport, error) {
	e.ensureOrderIdentity(order)
	originalSize := order.Size

	if id < 0 || int(id) >= len(e.markets) {
		return OrderSnapshot{}, book.FillReport{}, errUnknownMarketID(id)
	}
	pair := e.markets[id]
	orderbook := e.orderbooks[id]

	onFill := func(orderID book.OrderID, filledQty float64) {
		if snap, ok := e.orders[orderID]; ok {
			applyFillSnapshot(&snap, filledQty)
			e.orders[orderID] = snap
		}
	}

	report := orderbook.MatchMarket(order, onFill)

	e.stats.FillsTotal += report.FillsTotal
	e.stats.RestingOrdersConsumedTotal += report.RestingOrdersConsumed
	e.stats.LevelsCrossedTotal += report.LevelsCrossed
	e.stats.TotalMatchedQty += report.TotalMatchedQty

	status := Rejected
	if report.FilledQty > 0 {
		if report.FullyFilled {
			status = Filled
		} else {
			status = PartiallyFilled
		}
	}

	snapshot := snapshotFromOrder(pair, *order, Market, nil, originalSize, status)
	e.orders[snapshot.ID] = snapshot
	return snapshot, report, nil
}

func marketMessage(side book.Side, report book.FillReport) string {
	if report.InsufficientLiquidity {
		if side == book.Bid {
			return "Not enough ask orders to fill this buy"
		}
		return "Not enough bid orders to fill this sell"
	}
	return "Successfully filled " + trimFloat(report.FilledQty) + " " + side.String() + " market orders"
}
