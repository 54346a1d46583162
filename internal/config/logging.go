package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger returns the zap logger selected by log_format. Console output
// uses the development config with ISO8601 timestamps.
func (c *Config) BuildLogger(quiet bool) (*zap.Logger, error) {
	var zcfg zap.Config
	if c.LogFormat == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if quiet {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return zcfg.Build()
}
