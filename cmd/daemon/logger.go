package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

// newLogger returns a console logger when stderr is a terminal and the JSON
// production logger otherwise. NOWPANEL_LOG_LEVEL overrides the level.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if stderrIsTerminal() {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if raw := os.Getenv("NOWPANEL_LOG_LEVEL"); raw != "" {
		level, err := zap.ParseAtomicLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid NOWPANEL_LOG_LEVEL: %w", err)
		}
		cfg.Level = level
	}

	return cfg.Build()
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
