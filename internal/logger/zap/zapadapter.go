package zap

import (
	"go.uber.org/zap"

	"github.com/chuyangliu/dcell/internal/logger"
)

// Adapter adapts a *zap.Logger to the logger.Logger interface used
// throughout this controller's packages.
type Adapter struct {
	L *zap.Logger
}

// NewAdapter wraps l, skipping one extra stack frame so that the
// reported caller is the controller code calling through this adapter,
// not this file.
func NewAdapter(l *zap.Logger) Adapter {
	return Adapter{L: l.WithOptions(zap.AddCallerSkip(1))}
}

func (z Adapter) With(fields ...logger.Field) logger.Logger {
	return Adapter{L: z.L.With(toZap(fields)...)}
}

func (z Adapter) Named(name string) logger.Logger {
	return Adapter{L: z.L.Named(name)}
}

func (z Adapter) Debug(msg string, fields ...logger.Field) {
	if ce := z.L.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (z Adapter) Info(msg string, fields ...logger.Field) {
	if ce := z.L.Check(zap.InfoLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (z Adapter) Warn(msg string, fields ...logger.Field) {
	if ce := z.L.Check(zap.WarnLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func (z Adapter) Error(msg string, fields ...logger.Field) {
	if ce := z.L.Check(zap.ErrorLevel, msg); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

func toZap(fs []logger.Field) []zap.Field {
	if len(fs) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		out = append(out, zap.Any(f.Key, f.Val))
	}
	return out
}
