package service

import (
	"context"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// publish fans an event out after the originating request may have finished
func publish(ctx context.Context, d dispatcher.Dispatcher, evt *event.Event) {
	if d == nil {
		return
	}
	d.DispatchAsync(context.WithoutCancel(ctx), evt)
}
