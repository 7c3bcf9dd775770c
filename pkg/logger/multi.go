package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Multi creates a *zap.Logger that dispatches every entry to the cores of all
// provided loggers. Used by the proxy command to write console output to
// stdout and JSON to a log file simultaneously.
func Multi(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, len(loggers))
	for i, l := range loggers {
		cores[i] = l.Core()
	}
	return zap.New(zapcore.NewTee(cores...))
}
