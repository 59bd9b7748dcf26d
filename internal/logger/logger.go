// Package logger builds the zap logger shared by every component.
package logger

import "go.uber.org/zap"

// New returns a development logger (console, debug level) when dev is set,
// otherwise a production JSON logger.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	return zap.NewProduction()
}
