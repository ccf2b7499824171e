package events

import (
	"time"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketAutoResolved  EventType = "ticket_auto_resolved"
	EventTicketResolved      EventType = "ticket_resolved"
	EventTicketEscalated     EventType = "ticket_escalated"
	EventSlaWarning          EventType = "sla_warning"
	EventSlaResponseBreach   EventType = "sla_response_breach"
	EventSlaResolutionBreach EventType = "sla_resolution_breach"
)

// AllEventTypes lists every event the service emits.
func AllEventTypes() []EventType {
	return []EventType{
		EventTicketCreated,
		EventTicketAssigned,
		EventTicketAutoResolved,
		EventTicketResolved,
		EventTicketEscalated,
		EventSlaWarning,
		EventSlaResponseBreach,
		EventSlaResolutionBreach,
	}
}

// Escalation reasons recorded on TicketEscalatedPayload.
const (
	EscalationReasonIntake           = "high_priority_intake"
	EscalationReasonResolutionBreach = "resolution_breach"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload carries the classification outcome for a new ticket.
type TicketCreatedPayload struct {
	Sender   string                `json:"sender"`
	Subject  string                `json:"subject"`
	Category domain.Category       `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
	Status   domain.TicketStatus   `json:"status"`
	Fallback bool                  `json:"classification_fallback,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Team     string                `json:"team"`
	Subject  string                `json:"subject"`
	Category domain.Category       `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketAutoResolvedPayload payload.
type TicketAutoResolvedPayload struct {
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Note       string    `json:"note"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Team            string                `json:"team"`
	Subject         string                `json:"subject"`
	OldPriority     domain.TicketPriority `json:"old_priority"`
	NewPriority     domain.TicketPriority `json:"new_priority"`
	Reason          string                `json:"reason"`
	ResolutionDueAt time.Time             `json:"resolution_due_at"`
}

// SlaWarningPayload payload.
type SlaWarningPayload struct {
	Team            string    `json:"team"`
	Subject         string    `json:"subject"`
	ResolutionDueAt time.Time `json:"resolution_due_at"`
}

// SlaBreachPayload is shared by response and resolution breach events.
type SlaBreachPayload struct {
	Team       string    `json:"team"`
	Subject    string    `json:"subject"`
	DueAt      time.Time `json:"due_at"`
	ObservedAt time.Time `json:"observed_at"`
}
