package log

import (
	"io"

	"log/slog"
)

type Config struct {
	Level     int  `mapstructure:"level"`
	AddSource bool `mapstructure:"add_source"`
	// Text switches from JSON to the human readable handler.
	Text bool `mapstructure:"text"`
}

// New returns a logger writing to w with the configured level and format.
func New(w io.Writer, c Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     slog.Level(c.Level),
		AddSource: c.AddSource,
	}
	if c.Text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
