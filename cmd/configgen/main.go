package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/danmuck/cantelemetry/internal/config"
	"github.com/danmuck/cantelemetry/internal/observability"
)

func defaultPath(kind string) string {
	switch kind {
	case "telemetryd":
		return "cmd/telemetryd/config.toml"
	case "override":
		return "cmd/telemetryd/override.toml"
	default:
		log.Fatal().Str("kind", kind).Msg("unknown config kind")
		return ""
	}
}

func main() {
	observability.InitLogger("configgen")

	kind := pflag.String("kind", "telemetryd", "config kind: telemetryd|override")
	output := pflag.StringP("output", "o", "", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.StringP("input", "i", "", "config path for validation (defaults to per-kind cmd path)")
	force := pflag.BoolP("force", "f", false, "overwrite existing config file")
	pflag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		// override files are partial; loading them over defaults validates the merged result
		if _, err := config.Load(path); err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("write template failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
