// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Composable middleware around pump handlers.

package adapters

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
	"github.com/momentics/hioload-ipc/pump"
)

// PumpMiddleware wraps a pump.Handler with extra behavior.
type PumpMiddleware func(pump.Handler) pump.Handler

// ChainPump applies middleware to h, first middleware outermost.
func ChainPump(h pump.Handler, mw ...PumpMiddleware) pump.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// RecoverMiddleware converts a handler panic into a handler error, so one
// poisoned message tears down its binding instead of the process.
func RecoverMiddleware(log *zap.Logger) PumpMiddleware {
	return func(next pump.Handler) pump.Handler {
		return func(m *ipc.Message) (d api.Disposition, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("pump handler panic", zap.Any("value", r))
					d = api.Continue
					err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("handler panic: %v", r))
				}
			}()
			return next(m)
		}
	}
}

// DebugLogMiddleware logs every dispatched message at debug level.
func DebugLogMiddleware(log *zap.Logger) PumpMiddleware {
	return func(next pump.Handler) pump.Handler {
		return func(m *ipc.Message) (api.Disposition, error) {
			log.Debug("pump dispatch",
				zap.Int("bytes", len(m.Bytes)),
				zap.Int("handles", len(m.Handles)))
			return next(m)
		}
	}
}

// MetricsMiddleware counts dispatched messages and handler failures on c.
func MetricsMiddleware(c *ControlAdapter) PumpMiddleware {
	return func(next pump.Handler) pump.Handler {
		return func(m *ipc.Message) (api.Disposition, error) {
			d, err := next(m)
			c.AddMetric("pump.dispatched", 1)
			if err != nil {
				c.AddMetric("pump.handler_errors", 1)
			}
			return d, err
		}
	}
}
