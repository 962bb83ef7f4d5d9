// Package logger provides the structured logger used across tuyalink's
// internal services. It wraps zap behind logr so that session and discovery
// code logs through a small, leveled interface instead of depending on zap
// directly.
package logger

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the logger handle passed into session and discovery constructors.
type Log struct {
	logr.Logger
}

// New builds a logger named after the component that owns it (e.g. a device
// id, or "discovery"). When logFile is empty, output goes to stderr.
func New(name, logFile string, production bool) (*Log, error) {
	var zc zap.Config
	if production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc.DisableCaller = true
	zc.DisableStacktrace = true

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), fs.ModeDir); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		zc.OutputPaths = []string{logFile}
	}

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return &Log{Logger: zapr.NewLogger(z).WithName(name)}, nil
}

// NewSimple creates a logger against the already-configured global zap
// instance. Callers that embed tuyalink without wiring their own zap config
// use this.
func NewSimple(name string) *Log {
	return &Log{Logger: zapr.NewLogger(zap.L().Named(name))}
}

// New derives a sub-logger scoped under an additional name segment, e.g.
// log.New("session").New(deviceID).
func (l *Log) New(name string) *Log {
	return &Log{Logger: l.WithName(name)}
}

// Info logs at the default (always-on) verbosity.
func (l *Log) Info(msg string, kv ...interface{}) {
	l.Logger.V(0).WithValues(kv...).Info(msg)
}

// Debug logs protocol/state-machine detail: handshake steps, backoff waits,
// reconnect attempts.
func (l *Log) Debug(msg string, kv ...interface{}) {
	l.Logger.V(1).WithValues(kv...).Info(msg)
}

// Trace logs wire-level detail: raw frame bytes, per-datagram parse attempts.
func (l *Log) Trace(msg string, kv ...interface{}) {
	l.Logger.V(2).WithValues(kv...).Info(msg)
}
