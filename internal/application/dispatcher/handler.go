package dispatcher

import (
	"context"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	// CatchAll is set for handlers registered with SubscribeAll
	CatchAll bool
}

// subscription is one registration. A nil only set matches every type not
// listed in except.
type subscription struct {
	name    string
	only    map[event.Type]bool
	except  map[event.Type]bool
	handler Handler
}

func (s *subscription) matches(t event.Type) bool {
	if s.only != nil {
		return s.only[t]
	}
	return !s.except[t]
}
