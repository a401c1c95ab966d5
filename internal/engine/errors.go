package engine

import (
	"errors"
	"fmt"

	"fenrir/internal/book"
	"fenrir/internal/tick"
)

// Error kinds. Messages are formatted separately (see marketError) so the
// stable, host-forwarded wording never picks up an %w-wrapped suffix, while
// errors.Is still works against these sentinels.
var (
	ErrUnknownMarket = errors.New("unknown market")
	ErrCrossingLimit = errors.New("crossing limit")
)

type marketError struct {
	kind error
	msg  string
}

func (e *marketError) Error() string { return e.msg }
func (e *marketError) Unwrap() error { return e.kind }

func errUnknownMarketPair(pair TradingPair) error {
	return &marketError{kind: ErrUnknownMarket, msg: fmt.Sprintf("the orderbook %s doesn't exist ", pair)}
}

func errUnknownMarketID(id MarketId) error {
	return &marketError{kind: ErrUnknownMarket, msg: fmt.Sprintf("market id %d doesn't exist", id)}
}

func errCrossingLimit(side book.Side, priceTick tick.Tick) error {
	word := "buy"
	if side == book.Ask {
		word = "sell"
	}
	return &marketError{
		kind: ErrCrossingLimit,
		msg: fmt.Sprintf(
			"You can not place a %s order on that price %s. Try a market order.",
			word, tick.ToDecimal(priceTick),
		),
	}
}
