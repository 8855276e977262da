// Package logging собирает zerolog.Logger из настроек.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New: format "json" пишет JSON-строки, иначе человекочитаемый console writer.
// Неизвестный уровень трактуется как info.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
