package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/domain"
	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/notify"
	"github.com/opsdesk-io/servicedesk/internal/service"
)

type recordingNotifier struct {
	messages []notify.Message
	err      error
}

func (r *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	r.messages = append(r.messages, msg)
	return r.err
}

func newNotificationFixture(t *testing.T) (events.Dispatcher, *recordingNotifier) {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	notifier := &recordingNotifier{}
	svc := service.NewNotificationService(dispatcher, notifier, zap.NewNop())
	svc.RegisterHandlers()
	return dispatcher, notifier
}

func publish(t *testing.T, dispatcher events.Dispatcher, eventType events.EventType, payload interface{}) {
	t.Helper()
	err := dispatcher.Publish(context.Background(), events.Event{
		ID:        "evt-1",
		Type:      eventType,
		TicketID:  "tkt-42",
		Actor:     "system",
		Timestamp: intakeBase,
		Payload:   payload,
	})
	require.NoError(t, err)
}

func TestTicketCreatedNotifiesRequester(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventTicketCreated, events.TicketCreatedPayload{
		Sender:   "alice@example.com",
		Subject:  "vpn keeps dropping",
		Category: domain.CategoryNetwork,
		Priority: domain.TicketPriorityMedium,
		Status:   domain.TicketStatusAssigned,
	})

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, "alice@example.com", msg.Recipient)
	assert.Contains(t, msg.Subject, "tkt-42")
	assert.Contains(t, msg.Subject, "We received your request")
	assert.Contains(t, msg.Body, "vpn keeps dropping")
	assert.Contains(t, msg.Body, string(domain.CategoryNetwork))
}

func TestTicketAssignedNotifiesTeam(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventTicketAssigned, events.TicketAssignedPayload{
		Team:     "network-team@example.com",
		Subject:  "vpn keeps dropping",
		Category: domain.CategoryNetwork,
		Priority: domain.TicketPriorityMedium,
	})

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, "network-team@example.com", msg.Recipient)
	assert.Contains(t, msg.Subject, "assigned")
	assert.Contains(t, msg.Body, "vpn keeps dropping")
}

func TestTicketResolvedIncludesNote(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventTicketResolved, events.TicketResolvedPayload{
		Sender:     "alice@example.com",
		Subject:    "vpn keeps dropping",
		Note:       "replaced the client certificate",
		ResolvedAt: intakeBase,
	})

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, "alice@example.com", msg.Recipient)
	assert.Contains(t, msg.Body, "replaced the client certificate")
}

func TestTicketEscalatedNotifiesTeamWithReason(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventTicketEscalated, events.TicketEscalatedPayload{
		Team:            "network-team@example.com",
		Subject:         "core switch unreachable",
		OldPriority:     domain.TicketPriorityMedium,
		NewPriority:     domain.TicketPriorityHigh,
		Reason:          events.EscalationReasonResolutionBreach,
		ResolutionDueAt: intakeBase.Add(8 * time.Hour),
	})

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, "network-team@example.com", msg.Recipient)
	assert.Contains(t, msg.Subject, "ESCALATED")
	assert.Contains(t, msg.Body, events.EscalationReasonResolutionBreach)
	assert.Contains(t, msg.Body, "MEDIUM -> HIGH")
}

func TestSlaBreachSubjectsDistinguishDeadlines(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)
	payload := events.SlaBreachPayload{
		Team:       "network-team@example.com",
		Subject:    "core switch unreachable",
		DueAt:      intakeBase.Add(2 * time.Hour),
		ObservedAt: intakeBase.Add(3 * time.Hour),
	}

	publish(t, dispatcher, events.EventSlaResponseBreach, payload)
	publish(t, dispatcher, events.EventSlaResolutionBreach, payload)

	require.Len(t, notifier.messages, 2)
	assert.Contains(t, notifier.messages[0].Subject, "response deadline")
	assert.Contains(t, notifier.messages[1].Subject, "resolution deadline")
}

func TestSlaWarningNotifiesTeam(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventSlaWarning, events.SlaWarningPayload{
		Team:            "network-team@example.com",
		Subject:         "core switch unreachable",
		ResolutionDueAt: intakeBase.Add(8 * time.Hour),
	})

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0].Subject, "approaching its deadline")
}

func TestDeliveryFailureDoesNotReachPublisher(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)
	notifier.err = errors.New("smtp connection refused")

	publish(t, dispatcher, events.EventTicketAssigned, events.TicketAssignedPayload{
		Team:    "network-team@example.com",
		Subject: "vpn keeps dropping",
	})

	// Send was attempted and its failure swallowed
	assert.Len(t, notifier.messages, 1)
}

func TestEmptyRecipientSkipsDelivery(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventTicketAssigned, events.TicketAssignedPayload{
		Subject: "no team on this one",
	})

	assert.Empty(t, notifier.messages)
}

func TestMismatchedPayloadIgnored(t *testing.T) {
	dispatcher, notifier := newNotificationFixture(t)

	publish(t, dispatcher, events.EventTicketCreated, "not a payload struct")

	assert.Empty(t, notifier.messages)
}
