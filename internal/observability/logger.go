package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/logging"
)

// InitLogger installs the process logger tagged with app. The level and
// console options come from the logging profile.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := logging.NewLogger(logging.Current()).With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
