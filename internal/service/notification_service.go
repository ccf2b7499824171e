package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/notify"
)

// NotificationService renders domain events into outbound notifications.
// Requester-facing events go to the original sender, SLA and escalation
// events go to the assigned team. Delivery failures are logged and
// swallowed so they never reach the lifecycle that emitted the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketAutoResolved, n.handleTicketAutoResolved)
	n.dispatcher.Subscribe(events.EventTicketResolved, n.handleTicketResolved)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventSlaWarning, n.handleSlaWarning)
	n.dispatcher.Subscribe(events.EventSlaResponseBreach, n.handleSlaResponseBreach)
	n.dispatcher.Subscribe(events.EventSlaResolutionBreach, n.handleSlaResolutionBreach)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Sender,
		Subject:   fmt.Sprintf("[Ticket %s] We received your request", event.TicketID),
		Body: fmt.Sprintf("Hello,\n\nYour request %q was registered as ticket %s.\nCategory: %s\nPriority: %s\n\nIT Service Desk",
			payload.Subject, event.TicketID, payload.Category, payload.Priority),
	})
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Team,
		Subject:   fmt.Sprintf("[Ticket %s] New %s ticket assigned", event.TicketID, payload.Category),
		Body: fmt.Sprintf("Ticket %s has been assigned to your team.\nSubject: %s\nPriority: %s",
			event.TicketID, payload.Subject, payload.Priority),
	})
	return nil
}

func (n *NotificationService) handleTicketAutoResolved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAutoResolvedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Sender,
		Subject:   fmt.Sprintf("[Ticket %s] Resolved automatically", event.TicketID),
		Body: fmt.Sprintf("Hello,\n\nYour request %q matched a known low-impact issue and was resolved automatically.\nIf the problem persists, please submit a new request.\n\nIT Service Desk",
			payload.Subject),
	})
	return nil
}

func (n *NotificationService) handleTicketResolved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketResolvedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Sender,
		Subject:   fmt.Sprintf("[Ticket %s] Your ticket has been resolved", event.TicketID),
		Body: fmt.Sprintf("Hello,\n\nYour request %q has been resolved.\nResolution: %s\n\nIT Service Desk",
			payload.Subject, payload.Note),
	})
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Team,
		Subject:   fmt.Sprintf("[ESCALATED] Ticket %s requires attention", event.TicketID),
		Body: fmt.Sprintf("Ticket %s was escalated (%s).\nSubject: %s\nPriority: %s -> %s\nResolution due: %s",
			event.TicketID, payload.Reason, payload.Subject, payload.OldPriority, payload.NewPriority,
			payload.ResolutionDueAt.Format("2006-01-02 15:04 MST")),
	})
	return nil
}

func (n *NotificationService) handleSlaWarning(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaWarningPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Team,
		Subject:   fmt.Sprintf("[SLA WARNING] Ticket %s is approaching its deadline", event.TicketID),
		Body: fmt.Sprintf("Ticket %s is close to its resolution deadline.\nSubject: %s\nResolution due: %s",
			event.TicketID, payload.Subject, payload.ResolutionDueAt.Format("2006-01-02 15:04 MST")),
	})
	return nil
}

func (n *NotificationService) handleSlaResponseBreach(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaBreachPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Team,
		Subject:   fmt.Sprintf("[SLA BREACH] Ticket %s missed its response deadline", event.TicketID),
		Body: fmt.Sprintf("Ticket %s passed its first-response deadline without a response.\nSubject: %s\nResponse was due: %s",
			event.TicketID, payload.Subject, payload.DueAt.Format("2006-01-02 15:04 MST")),
	})
	return nil
}

func (n *NotificationService) handleSlaResolutionBreach(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaBreachPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, notify.Message{
		Recipient: payload.Team,
		Subject:   fmt.Sprintf("[SLA BREACH] Ticket %s missed its resolution deadline", event.TicketID),
		Body: fmt.Sprintf("Ticket %s passed its resolution deadline and has been escalated.\nSubject: %s\nResolution was due: %s",
			event.TicketID, payload.Subject, payload.DueAt.Format("2006-01-02 15:04 MST")),
	})
	return nil
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, msg notify.Message) {
	if msg.Recipient == "" {
		return
	}
	if err := n.notifier.Send(ctx, msg); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.String("recipient", msg.Recipient),
			zap.Error(err))
	}
}
