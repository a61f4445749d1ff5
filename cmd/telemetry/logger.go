package main

import (
	"github.com/septivank/sensor-telemetry/internal/config"
	"github.com/septivank/sensor-telemetry/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
