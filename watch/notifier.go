package watch

import "context"

// Notification is one server-initiated message for a subscriber.
type Notification struct {
	Method string
	Params any
}

// Notifier delivers notifications to one subscriber. WebSocket connections
// use ws.JSONRPCNotifier; tests capture them in memory.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
