package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name onto slog. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger returns a JSON slog logger at the configured level. *slog.Logger
// satisfies core.Logger.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
