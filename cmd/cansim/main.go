package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/observability"
	"github.com/danmuck/cantelemetry/internal/simulate"
)

func main() {
	observability.InitLogger("cansim")

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "cansim: %v\n", err)
		os.Exit(2)
	}
	pub, err := dial(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cansim: %v\n", err)
		os.Exit(1)
	}
	defer pub.Close()

	sender, err := simulate.NewSender(opts.sim, pub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cansim: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info().
		Str("transport", opts.transport).
		Str("target", opts.target()).
		Int("rate", opts.sim.Rate).
		Msg("cansim sending")
	stats, err := sender.Run(ctx)
	log.Info().
		Int("bursts", stats.Bursts).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Msg("cansim stopped")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cansim: %v\n", err)
		os.Exit(1)
	}
}
