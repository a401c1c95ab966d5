package engine

import (
	"fmt"

	"fenrir/internal/book"
	"fenrir/internal/tick"
)

// OrderSnapshot is an immutable-by-convention record of an order's lifecycle
// as tracked by the engine. original_size == remaining_size + filled_size
// holds at every moment, up to floating-point settlement.
type OrderSnapshot struct {
	ID            book.OrderID
	UserID        string
	Pair          TradingPair
	Side          book.Side
	OrderType     OrderType
	Price         *tick.Tick // nil for market orders
	OriginalSize  float64
	RemainingSize float64
	FilledSize    float64
	Status        OrderStatus
}

func (s OrderSnapshot) String() string {
	price := "market"
	if s.Price != nil {
		price = tick.ToDecimal(*s.Price).String()
	}
	return fmt.Sprintf(
		"Order(id=%d user=%s pair=%s side=%s type=%s price=%s size=%.8f/%.8f status=%s)",
		s.ID, s.UserID, s.Pair, s.Side, s.OrderType, price,
		s.FilledSize, s.OriginalSize, s.Status,
	)
}

// OrderResponse pairs a snapshot with a stable, human-readable message — the
// wording a host surface forwards verbatim as its response body.
type OrderResponse struct {
	Order   OrderSnapshot
	Message string
}

// EngineStats are cumulative counters across every market an engine serves.
type EngineStats struct {
	FillsTotal                 uint64
	RestingOrdersConsumedTotal uint64
	LevelsCrossedTotal         uint64
	TotalMatchedQty            float64
}
