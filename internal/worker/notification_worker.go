package worker

import (
	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/service"
)

// StartEventWorkers subscribes the notification handlers and, when a
// publisher is configured, bridges every dispatched event onto kafka. The
// returned stop function flushes the bridge.
func StartEventWorkers(dispatcher events.Dispatcher, notifications *service.NotificationService, bridge *events.KafkaPublisher) func() {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if bridge != nil && dispatcher != nil {
		dispatcher.SubscribeAll(bridge.Handle)
	}
	return func() {
		if bridge != nil {
			_ = bridge.Close()
		}
	}
}
