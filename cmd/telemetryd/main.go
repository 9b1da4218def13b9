package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/observability"
	"github.com/danmuck/cantelemetry/internal/service"
)

func main() {
	observability.InitLogger("telemetryd")

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: %v\n", err)
		os.Exit(2)
	}
	svc, err := service.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: %v\n", err)
		os.Exit(2)
	}
	log.Info().
		Str("http", cfg.HTTP.Addr).
		Bool("udp", cfg.UDP.Enabled).
		Bool("serial", cfg.Serial.Enabled).
		Bool("mqtt", cfg.MQTT.Enabled).
		Msg("telemetryd starting")
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: %v\n", err)
		os.Exit(1)
	}
}
