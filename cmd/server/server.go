package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fenrir/internal/engine"
	"fenrir/internal/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	eng := engine.New()
	eng.AddNewMarket(engine.TradingPair{Base: "BTC", Quote: "USD"})
	eng.AddNewMarket(engine.TradingPair{Base: "ETH", Quote: "USD"})

	srv := server.New("0.0.0.0", 9001, eng)

	go srv.Run(ctx)
	<-ctx.Done()
}
