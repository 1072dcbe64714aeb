// Package logging sets up the structured logger every non-PRINT
// diagnostic in this module writes through. PRINT output from running
// bytecode always goes straight to the configured stdout writer,
// untouched by this logger. Only cmd/ttvm logs through it (server
// start-up lines and a debug line per spawned process); the scheduler and
// process packages do not log, and CLI errors are printed to stdout.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-friendly zerolog.Logger, mirroring the teacher's
// plain fmt.Printf-to-stdout style but with leveling and structured
// fields instead of bare strings.
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
