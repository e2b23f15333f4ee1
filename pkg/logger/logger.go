package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is a no-op until InitLogger runs, so packages that log can be used
// from tests without setup.
var Log = zap.NewNop()

// InitLogger builds the global logger. release mode logs JSON at info,
// anything else logs colored console output at debug.
func InitLogger(mode string) error {
	var cfg zap.Config
	if mode == "release" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build %s logger: %w", mode, err)
	}
	Log = l
	zap.ReplaceGlobals(l)
	return nil
}

// ForTable returns the global logger tagged with a table id.
func ForTable(tableID int64) *zap.Logger {
	return Log.With(zap.Int64("tableID", tableID))
}
