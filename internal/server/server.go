package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"fenrir/internal/book"
	"fenrir/internal/engine"
	fenrirnet "fenrir/internal/net"
	"fenrir/internal/tick"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	maxRecvSize      = 4 * 1024
	defaultNWorkers  = 10
	defaultConnDeadl = 5 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// Engine is the subset of *engine.MatchEngine the wire surface drives.
type Engine interface {
	GetMarketID(pair engine.TradingPair) (engine.MarketId, bool)
	AddNewMarket(pair engine.TradingPair) engine.MarketId
	PlaceLimitOrderByIDTick(id engine.MarketId, priceTick tick.Tick, order book.Order) (engine.OrderResponse, error)
	FillMarketOrderByID(id engine.MarketId, order *book.Order) (engine.OrderResponse, error)
	GetLimitsForMarket(id engine.MarketId) (*book.OrderBook, bool)
}

// clientSession tracks one live TCP connection and its session identity.
type clientSession struct {
	id   uuid.UUID
	conn net.Conn
}

type clientMessage struct {
	clientAddress string
	message       fenrirnet.Message
}

// Server accepts TCP connections, parses wire frames, and drives an Engine.
type Server struct {
	address string
	port    int
	engine  Engine
	pool    WorkerPool
	cancel  context.CancelFunc

	sessionsLock sync.Mutex
	sessions     map[string]clientSession

	inbox chan clientMessage
}

// New returns a Server bound to address:port, driving engine.
func New(address string, port int, eng Engine) *Server {
	return &Server{
		address:  address,
		port:     port,
		engine:   eng,
		pool:     NewWorkerPool(defaultNWorkers),
		sessions: make(map[string]clientSession),
		inbox:    make(chan clientMessage, 1),
	}
}

// Shutdown cancels the server's run context.
func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is canceled. It is meant to be run in
// its own goroutine; callers block on ctx instead.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			sessionID := s.addSession(conn)
			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Str("session", sessionID.String()).
				Msg("new client session")

			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) addSession(conn net.Conn) uuid.UUID {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	id := uuid.New()
	s.sessions[conn.RemoteAddr().String()] = clientSession{id: id, conn: conn}
	return id
}

func (s *Server) deleteSession(address string) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	delete(s.sessions, address)
}

func (s *Server) sendExecution(clientAddress string, resp engine.OrderResponse) error {
	return s.writeBytes(clientAddress, fenrirnet.SerializeExecutionReport(resp))
}

func (s *Server) sendError(clientAddress string, err error) error {
	return s.writeBytes(clientAddress, fenrirnet.SerializeErrorReport(err))
}

func (s *Server) writeBytes(clientAddress string, payload []byte) error {
	s.sessionsLock.Lock()
	session, ok := s.sessions[clientAddress]
	s.sessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}

	if _, err := session.conn.Write(payload); err != nil {
		s.deleteSession(clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler drains parsed messages and dispatches them to the engine.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.inbox:
			if err := s.handleMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", msg.clientAddress).
					Msg("error handling message")
				s.sendError(msg.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(msg clientMessage) error {
	switch msg.message.GetType() {
	case fenrirnet.NewOrder:
		order, ok := msg.message.(fenrirnet.NewOrderMessage)
		if !ok {
			return fenrirnet.ErrInvalidMessageType
		}
		return s.handleNewOrder(msg.clientAddress, order)

	case fenrirnet.CancelOrder:
		return fenrirnet.ErrCancelUnsupported

	case fenrirnet.LogBook:
		logMsg, ok := msg.message.(fenrirnet.LogBookMessage)
		if !ok {
			return fenrirnet.ErrInvalidMessageType
		}
		return s.handleLogBook(logMsg)

	case fenrirnet.AddMarket:
		addMsg, ok := msg.message.(fenrirnet.AddMarketMessage)
		if !ok {
			return fenrirnet.ErrInvalidMessageType
		}
		id := s.engine.AddNewMarket(addMsg.Pair)
		log.Info().Str("pair", addMsg.Pair.String()).Int("marketId", int(id)).Msg("market registered")
		return nil

	default:
		log.Error().Int("messageType", int(msg.message.GetType())).Msg("invalid message type")
		return fenrirnet.ErrInvalidMessageType
	}
}

func (s *Server) handleNewOrder(clientAddress string, msg fenrirnet.NewOrderMessage) error {
	id, ok := s.engine.GetMarketID(msg.Pair)
	if !ok {
		return fmt.Errorf("unknown market %s", msg.Pair)
	}

	order := msg.ToBookOrder()

	var (
		resp engine.OrderResponse
		err  error
	)
	switch msg.OrderType {
	case engine.Limit:
		resp, err = s.engine.PlaceLimitOrderByIDTick(id, msg.PriceTick, order)
	case engine.Market:
		resp, err = s.engine.FillMarketOrderByID(id, &order)
	default:
		return fenrirnet.ErrInvalidMessageType
	}
	if err != nil {
		return err
	}

	return s.sendExecution(clientAddress, resp)
}

func (s *Server) handleLogBook(msg fenrirnet.LogBookMessage) error {
	id, ok := s.engine.GetMarketID(msg.Pair)
	if !ok {
		return fmt.Errorf("unknown market %s", msg.Pair)
	}
	ob, ok := s.engine.GetLimitsForMarket(id)
	if !ok {
		return fmt.Errorf("unknown market id %d", id)
	}

	for _, level := range ob.Bids() {
		log.Info().Str("pair", msg.Pair.String()).Str("side", "bid").
			Int64("tick", int64(level.Price)).Float64("volume", level.TotalVolume()).Msg("level")
	}
	for _, level := range ob.Asks() {
		log.Info().Str("pair", msg.Pair.String()).Str("side", "ask").
			Int64("tick", int64(level.Price)).Float64("volume", level.TotalVolume()).Msg("level")
	}
	return nil
}

// handleConnection reads one message off conn, dispatches it, and re-queues
// the connection for its next message. Any error returned here is fatal to
// the worker's tomb.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnDeadl)); err != nil {
		log.Error().Err(err).Msg("failed setting connection deadline")
		s.deleteSession(conn.RemoteAddr().String())
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			s.deleteSession(conn.RemoteAddr().String())
			return nil
		}

		message, err := fenrirnet.ParseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
			return nil
		}

		s.inbox <- clientMessage{
			message:       message,
			clientAddress: conn.RemoteAddr().String(),
		}
		s.pool.AddTask(conn)
	}
	return nil
}
