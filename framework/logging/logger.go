// Package logging builds the application's zap logger from config.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-compose/framework/config"
)

// New builds a logger. Production environments start from zap's production
// config, everything else from the development config; LOG_LEVEL and
// LOG_FORMAT override both.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Log.Format {
	case "json", "console":
		zc.Encoding = cfg.Log.Format
	case "":
	default:
		return nil, fmt.Errorf("logging: unknown LOG_FORMAT %q", cfg.Log.Format)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named(cfg.App.Name), nil
}
