// Package logging builds the zap logger shared by the engine's components.
package logging

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"mit.edu/dsg/sqlroute/config"
)

// New returns a JSON production logger, or a console development logger when
// cfg.Development is set. An empty level means info.
func New(cfg config.Log) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, errors.Wrap(err, "log.level")
		}
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger.Named("sqlroute"), nil
}
