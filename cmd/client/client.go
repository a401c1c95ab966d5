package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/book"
	"fenrir/internal/engine"
	fenrirNet "fenrir/internal/net"
	"fenrir/internal/tick"

	"github.com/shopspring/decimal"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'log', 'add-market']")

	base := flag.String("base", "BTC", "Trading pair base asset")
	quote := flag.String("quote", "USD", "Trading pair quote asset")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	price := flag.String("price", "100.0", "Limit price (ignored for market orders)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	pair := engine.TradingPair{Base: *base, Quote: *quote}

	side := book.Bid
	if strings.ToLower(*sideStr) == "sell" {
		side = book.Ask
	}
	orderType := engine.Limit
	if strings.ToLower(*typeStr) == "market" {
		orderType = engine.Market
	}

	switch strings.ToLower(*action) {
	case "place":
		priceDec, err := decimal.NewFromString(*price)
		if err != nil {
			log.Fatalf("invalid -price: %v", err)
		}
		for _, q := range parseQuantities(*qtyStr) {
			if err := sendPlaceOrder(conn, *owner, pair, orderType, priceDec, q, side); err != nil {
				log.Printf("Failed to place order (Qty: %.2f): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s %s order: %s %.2f @ %s\n", orderType, strings.ToUpper(*sideStr), pair, q, priceDec)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "add-market":
		if err := sendAddMarket(conn, pair); err != nil {
			log.Printf("Failed to register market: %v", err)
		} else {
			fmt.Printf("-> Requested market %s\n", pair)
		}

	case "log":
		if err := sendLog(conn, pair); err != nil {
			log.Printf("Failed to send log request: %v", err)
		} else {
			fmt.Println("-> Sent Log Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func parseQuantities(input string) []float64 {
	parts := strings.Split(input, ",")
	var result []float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseFloat(p, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

func packPairField(buf []byte, s string) {
	copy(buf, s)
}

func sendPlaceOrder(conn net.Conn, owner string, pair engine.TradingPair, orderType engine.OrderType, price decimal.Decimal, qty float64, side book.Side) error {
	usernameLen := len(owner)
	totalLen := fenrirNet.BaseMessageHeaderLen + fenrirNet.NewOrderMessageHeaderLen + usernameLen
	buf := make([]byte, totalLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.NewOrder))
	off := 2

	buf[off] = byte(orderType)
	off++

	packPairField(buf[off:off+8], pair.Base)
	packPairField(buf[off+8:off+16], pair.Quote)
	off += 16

	binary.BigEndian.PutUint64(buf[off:off+8], uint64(tick.FromDecimal(price)))
	off += 8

	binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(qty))
	off += 8

	buf[off] = byte(side)
	off++

	buf[off] = uint8(usernameLen)
	off++

	copy(buf[off:], owner)

	_, err := conn.Write(buf)
	return err
}

func sendAddMarket(conn net.Conn, pair engine.TradingPair) error {
	buf := make([]byte, fenrirNet.BaseMessageHeaderLen+fenrirNet.AddMarketMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.AddMarket))
	packPairField(buf[2:10], pair.Base)
	packPairField(buf[10:18], pair.Quote)
	_, err := conn.Write(buf)
	return err
}

func sendLog(conn net.Conn, pair engine.TradingPair) error {
	buf := make([]byte, fenrirNet.BaseMessageHeaderLen+fenrirNet.LogBookMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.LogBook))
	packPairField(buf[2:10], pair.Base)
	packPairField(buf[10:18], pair.Quote)
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints Report frames from the server.
func readReports(conn net.Conn) {
	const fixedHeaderLen = 1 + 16 + 1 + 8 + 8 + 8 + 4 + 4

	for {
		headerBuf := make([]byte, fixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := fenrirNet.ReportMessageType(headerBuf[0])
		baseStr := strings.TrimRight(string(headerBuf[1:9]), "\x00")
		quoteStr := strings.TrimRight(string(headerBuf[9:17]), "\x00")
		side := book.Side(headerBuf[17])
		qty := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[26:34]))
		priceTick := tick.Tick(binary.BigEndian.Uint64(headerBuf[34:42]))
		errStrLen := binary.BigEndian.Uint32(headerBuf[42:46])
		msgLen := binary.BigEndian.Uint32(headerBuf[46:50])

		varBuf := make([]byte, errStrLen+msgLen)
		if len(varBuf) > 0 {
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				return
			}
		}
		errStr := string(varBuf[:errStrLen])
		message := string(varBuf[errStrLen:])

		if msgType == fenrirNet.ErrorReport {
			fmt.Printf("\n[SERVER ERROR] %s\n", errStr)
			continue
		}

		sideStr := "BUY"
		if side == book.Ask {
			sideStr = "SELL"
		}
		fmt.Printf("\n[EXECUTION] %s %s_%s | Qty: %.8f | Price: %s | %s\n",
			sideStr, baseStr, quoteStr, qty, tick.ToDecimal(priceTick), message)
	}
}
