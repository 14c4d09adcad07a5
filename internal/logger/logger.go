package logger

import (
	"go.uber.org/zap"
)

// New returns a sugared zap logger. Development mode logs human-readable
// output at debug level; otherwise JSON at info level.
func New(development bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop is a logger that discards everything. Used by tests and tooling.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
