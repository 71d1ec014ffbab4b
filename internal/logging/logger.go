package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger from the environment.
// DIRECTOR_LOG_LEVEL selects the level (debug, info, warn, error; default
// info). DIRECTOR_LOG_JSON=1 keeps raw JSON lines instead of the console
// writer. Logs always go to stderr; stdout is reserved for EMF metric
// documents.
func Init() {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("DIRECTOR_LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("DIRECTOR_LOG_JSON") == "1" {
		log.Logger = log.Output(os.Stderr)
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
