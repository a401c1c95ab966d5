// Package net is the wire protocol for the TCP order-entry surface: fixed
// binary frames in and Report frames back out, generalized from a single-
// ticker wire format to the engine's TradingPair/MarketId addressing.
package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fenrir/internal/book"
	"fenrir/internal/engine"
	"fenrir/internal/tick"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified username length")
	ErrCancelUnsupported  = errors.New("order cancellation is not supported by this engine")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
	AddMarket
)

type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants. pairFieldLen is the fixed width given to each of
// Base/Quote on the wire; shorter tickers are right-padded with zero bytes.
const (
	pairFieldLen = 8

	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 1 + pairFieldLen*2 + 8 + 8 + 1 + 1
	CancelOrderMessageHeaderLen = pairFieldLen*2 + 8
	AddMarketMessageHeaderLen   = pairFieldLen * 2
	LogBookMessageHeaderLen     = pairFieldLen * 2
)

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

// ParseMessage decodes a raw wire frame into its concrete Message type.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, errors.New("message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case LogBook:
		return parseLogBook(msg)
	case AddMarket:
		return parseAddMarket(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

func packPair(pair engine.TradingPair) [pairFieldLen * 2]byte {
	var out [pairFieldLen * 2]byte
	copy(out[0:pairFieldLen], pair.Base)
	copy(out[pairFieldLen:], pair.Quote)
	return out
}

func unpackPair(buf []byte) engine.TradingPair {
	return engine.TradingPair{
		Base:  strings.TrimRight(string(buf[0:pairFieldLen]), "\x00"),
		Quote: strings.TrimRight(string(buf[pairFieldLen:pairFieldLen*2]), "\x00"),
	}
}

// NewOrderMessage carries either a limit or a market order. For a market
// order PriceTick is ignored by the handler.
type NewOrderMessage struct {
	BaseMessage
	OrderType   engine.OrderType
	Pair        engine.TradingPair
	PriceTick   tick.Tick
	Quantity    float64
	Side        book.Side
	UsernameLen uint8
	Username    string
}

func (o *NewOrderMessage) ToBookOrder() book.Order {
	return book.Order{
		UserID: o.Username,
		Side:   o.Side,
		Size:   o.Quantity,
	}
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	off := 0

	m.OrderType = engine.OrderType(msg[off])
	off++

	m.Pair = unpackPair(msg[off : off+pairFieldLen*2])
	off += pairFieldLen * 2

	m.PriceTick = tick.Tick(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8

	m.Quantity = math.Float64frombits(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8

	m.Side = book.Side(msg[off])
	off++

	m.UsernameLen = msg[off]
	off++

	if len(msg) < off+int(m.UsernameLen) {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Username = string(msg[off : off+int(m.UsernameLen)])

	return m, nil
}

// CancelOrderMessage is parsed but always rejected by the handler: the core
// engine has no cancellation path.
type CancelOrderMessage struct {
	BaseMessage
	Pair    engine.TradingPair
	OrderID book.OrderID
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.Pair = unpackPair(msg[0 : pairFieldLen*2])
	m.OrderID = book.OrderID(binary.BigEndian.Uint64(msg[pairFieldLen*2 : pairFieldLen*2+8]))
	return m, nil
}

// LogBookMessage asks the server to log the current state of one market.
type LogBookMessage struct {
	BaseMessage
	Pair engine.TradingPair
}

func parseLogBook(msg []byte) (LogBookMessage, error) {
	if len(msg) < LogBookMessageHeaderLen {
		return LogBookMessage{}, ErrMessageTooShort
	}
	return LogBookMessage{
		BaseMessage: BaseMessage{TypeOf: LogBook},
		Pair:        unpackPair(msg[0 : pairFieldLen*2]),
	}, nil
}

// AddMarketMessage registers a new trading pair with the engine.
type AddMarketMessage struct {
	BaseMessage
	Pair engine.TradingPair
}

func parseAddMarket(msg []byte) (AddMarketMessage, error) {
	if len(msg) < AddMarketMessageHeaderLen {
		return AddMarketMessage{}, ErrMessageTooShort
	}
	return AddMarketMessage{
		BaseMessage: BaseMessage{TypeOf: AddMarket},
		Pair:        unpackPair(msg[0 : pairFieldLen*2]),
	}, nil
}

// Report is the fixed-width execution/error report written back to a
// client session.
type Report struct {
	MessageType ReportMessageType
	Pair        engine.TradingPair
	Side        book.Side
	Timestamp   uint64
	Quantity    float64
	PriceTick   tick.Tick
	ErrStrLen   uint32
	Err         string
	MessageLen  uint32
	Message     string
}

const reportFixedHeaderLen = 1 + pairFieldLen*2 + 1 + 8 + 8 + 8 + 4 + 4

// Serialize converts the report to its wire form.
func (r *Report) Serialize() []byte {
	totalSize := reportFixedHeaderLen + len(r.Err) + len(r.Message)
	buf := make([]byte, totalSize)

	off := 0
	buf[off] = byte(r.MessageType)
	off++

	packed := packPair(r.Pair)
	copy(buf[off:off+pairFieldLen*2], packed[:])
	off += pairFieldLen * 2

	buf[off] = byte(r.Side)
	off++

	binary.BigEndian.PutUint64(buf[off:off+8], r.Timestamp)
	off += 8

	binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(r.Quantity))
	off += 8

	binary.BigEndian.PutUint64(buf[off:off+8], uint64(r.PriceTick))
	off += 8

	binary.BigEndian.PutUint32(buf[off:off+4], r.ErrStrLen)
	off += 4

	binary.BigEndian.PutUint32(buf[off:off+4], r.MessageLen)
	off += 4

	copy(buf[off:], r.Err)
	off += len(r.Err)
	copy(buf[off:], r.Message)

	return buf
}

// SerializeExecutionReport builds the wire report for a successful order
// response.
func SerializeExecutionReport(resp engine.OrderResponse) []byte {
	priceTick := tick.Tick(0)
	if resp.Order.Price != nil {
		priceTick = *resp.Order.Price
	}
	report := Report{
		MessageType: ExecutionReport,
		Pair:        resp.Order.Pair,
		Side:        resp.Order.Side,
		Timestamp:   uint64(time.Now().Unix()),
		Quantity:    resp.Order.FilledSize,
		PriceTick:   priceTick,
		MessageLen:  uint32(len(resp.Message)),
		Message:     resp.Message,
	}
	return report.Serialize()
}

// SerializeErrorReport builds the wire report for a handling error.
func SerializeErrorReport(err error) []byte {
	errStr := fmt.Sprintf("%s", err)
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().Unix()),
		ErrStrLen:   uint32(len(errStr)),
		Err:         errStr,
	}
	return report.Serialize()
}
