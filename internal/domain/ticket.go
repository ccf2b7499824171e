package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew          TicketStatus = "NEW"
	TicketStatusAssigned     TicketStatus = "ASSIGNED"
	TicketStatusAutoResolved TicketStatus = "AUTO_RESOLVED"
	TicketStatusResolved     TicketStatus = "RESOLVED"
	TicketStatusEscalated    TicketStatus = "ESCALATED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusAutoResolved || s == TicketStatusResolved
}

// Valid reports whether the value is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusAssigned, TicketStatusAutoResolved, TicketStatusResolved, TicketStatusEscalated:
		return true
	}
	return false
}

// OpenStatuses lists the states a ticket can still transition out of.
func OpenStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusNew, TicketStatusAssigned, TicketStatusEscalated}
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// Valid reports whether the value is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Category buckets tickets for team routing.
type Category string

const (
	CategoryAccess         Category = "ACCESS"
	CategoryNetwork        Category = "NETWORK"
	CategoryInfrastructure Category = "INFRASTRUCTURE"
	CategoryEmail          Category = "EMAIL"
	CategorySoftware       Category = "SOFTWARE"
	CategoryOther          Category = "OTHER"
)

// Valid reports whether the value is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAccess, CategoryNetwork, CategoryInfrastructure, CategoryEmail, CategorySoftware, CategoryOther:
		return true
	}
	return false
}

// Ticket is the aggregate for service desk requests created from inbound mail.
type Ticket struct {
	ID                 string
	Fingerprint        string
	Sender             string
	Subject            string
	Body               string
	Category           Category
	Priority           TicketPriority
	Status             TicketStatus
	AssignedTeam       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ResponseDueAt      time.Time
	ResolutionDueAt    time.Time
	FirstRespondedAt   *time.Time
	ResolvedAt         *time.Time
	ResolutionNote     string
	EscalatedAt        *time.Time
	ResponseBreached   bool
	ResolutionBreached bool
	WarnedAt           *time.Time
}

// Terminal reports whether the ticket can no longer change state.
func (t *Ticket) Terminal() bool {
	return t.Status.IsTerminal()
}
