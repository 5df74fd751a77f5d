package huff

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package default logger, configured from HUFF_LOG_LEVEL.
// Logging is disabled unless the variable names a level.
var Logger zerolog.Logger

func init() {
	Logger = NewLogger(os.Getenv("HUFF_LOG_LEVEL"), os.Stderr)
}

// NewLogger returns a console logger writing to out at the named level
// (debug, info, warn, error). Any other name disables logging.
func NewLogger(levelName string, out io.Writer) zerolog.Logger {
	var level zerolog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.Disabled
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", "huff").
		Logger()
}

func logTree(l *zerolog.Logger, op string, t *HuffTree, cached bool) {
	l.Debug().
		Str("op", op).
		Int("symbols", t.freq.Len()).
		Int("nodes", t.Len()).
		Bool("cached", cached).
		Msg("tree ready")
}

func logHeader(l *zerolog.Logger, op string, size int64) {
	l.Debug().
		Str("op", op).
		Int64("header_size", size).
		Msg("header")
}

func logDone(l *zerolog.Logger, op string, st Stats) {
	l.Debug().
		Str("op", op).
		Int64("in", st.InputBytes).
		Int64("out", st.OutputBytes).
		Int64("header_size", st.HeaderSize).
		Msg("done")
}
