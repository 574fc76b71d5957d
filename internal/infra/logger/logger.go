package logger

import (
	"io"
	"log/slog"
	"os"
)

const service = "temny-shop"

func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter в dev читаемый текст с debug-уровнем, в остальных окружениях JSON.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if env == "dev" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service, "env", env)
}
