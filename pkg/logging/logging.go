package logging

import (
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	AppName string
	Level   string
	Pretty  bool
}

// NewLogger builds the service logger. Pretty enables the console encoder
// for local development; production uses the JSON encoder.
func NewLogger(opts Options) (ectologger.Logger, error) {
	var cfg zap.Config
	if opts.Pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	if level, err := zapcore.ParseLevel(strings.ToLower(opts.Level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := cfg.Build(zap.Fields(zap.String("app", opts.AppName)))
	if err != nil {
		return nil, err
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
