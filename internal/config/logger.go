package config

import "go.uber.org/zap"

// NewLogger builds the zap logger for the configured mode.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	if c.Mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
