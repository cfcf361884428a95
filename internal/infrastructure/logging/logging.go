package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Service    string
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Quiet keeps records off stdout; the terminal panel owns the screen.
	Quiet bool
}

func Init(cfg Config) (*RotatingWriter, error) {
	var (
		out      []io.Writer
		rotating *RotatingWriter
	)
	if !cfg.Quiet {
		out = append(out, os.Stdout)
	}
	if path := strings.TrimSpace(cfg.File); path != "" {
		w, err := NewRotatingWriter(path, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
		rotating = w
		out = append(out, w)
	}

	level := parseLevel(cfg.Level)
	handler := newHandler(cfg.Format, io.MultiWriter(out...), level)
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	slog.SetDefault(logger)

	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(handler, level).Writer())
	return rotating, nil
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
