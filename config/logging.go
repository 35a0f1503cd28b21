package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger from the observability settings.
func NewLogger(o Observability, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("log level %q: %w", o.LogLevel, err))
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(o.LogFormat) {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("unsupported log format %q", o.LogFormat))
	}
}
