// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wraps the teacher's own structured-logging dependency,
// github.com/luxfi/log (see log/nolog.go for its Logger interface and
// protocol/nova/consensus.go for the calling convention this package
// matches: Debug/Info/Warn/Error(msg string, fields ...zap.Field), with
// go.uber.org/zap used only to build the fields passed into it).
package logging

import (
	"fmt"
	"log/slog"

	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// Logger is the leveled, contextual logging interface every actor in this
// module takes at construction. It is a thin, trimmed restatement of
// log.Logger's Debug/Info/Warn/Error/With subset — the rest of that
// interface (Trace, Crit, Verbo, handler access, level control, panic
// recovery) belongs to the node-level surface this marshal core doesn't
// own.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type luxLogger struct {
	l log.Logger
}

// Wrap adapts an existing log.Logger (e.g. one constructed by an embedding
// node) to Logger.
func Wrap(l log.Logger) Logger {
	return &luxLogger{l: l}
}

// New builds a named production logger at the given level ("debug",
// "info", "warn", "error"), the way internal/ringtail/finalizer.go obtains
// its logger via log.NewLogger(name).
func New(name string, level string) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	l := log.NewLogger(name)
	l.SetLevel(lvl)
	return &luxLogger{l: l}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", level)
	}
}

// NewNoOp returns a Logger that discards everything, for tests and
// read-only tooling, mirroring log.NewNoOpLogger().
func NewNoOp() Logger {
	return &luxLogger{l: log.NewNoOpLogger()}
}

func (z *luxLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fieldsToAny(fields)...) }
func (z *luxLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fieldsToAny(fields)...) }
func (z *luxLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fieldsToAny(fields)...) }
func (z *luxLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fieldsToAny(fields)...) }

func (z *luxLogger) With(fields ...zap.Field) Logger {
	return &luxLogger{l: z.l.WithFields(fields...)}
}

// fieldsToAny lets zap.Field values flow through log.Logger's ctx
// ...interface{} parameter, matching how the teacher's own call sites
// (e.g. protocol/nova/consensus.go's ts.ctx.Log.Verbo(...)) pass zap.Field
// constructors straight through.
func fieldsToAny(fields []zap.Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f
	}
	return out
}
