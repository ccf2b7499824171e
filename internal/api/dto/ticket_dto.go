package dto

import (
	"time"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// CreateTicketRequest payload for manual intake.
type CreateTicketRequest struct {
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	Category string `json:"category"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Note string `json:"note"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                 string                `json:"id"`
	Sender             string                `json:"sender"`
	Subject            string                `json:"subject"`
	Category           domain.Category       `json:"category"`
	Priority           domain.TicketPriority `json:"priority"`
	Status             domain.TicketStatus   `json:"status"`
	AssignedTeam       string                `json:"assigned_team,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	ResponseDueAt      time.Time             `json:"response_due_at"`
	ResolutionDueAt    time.Time             `json:"resolution_due_at"`
	ResponseBreached   bool                  `json:"response_breached"`
	ResolutionBreached bool                  `json:"resolution_breached"`
	ResolvedAt         *time.Time            `json:"resolved_at,omitempty"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID                 string                  `json:"id"`
	Fingerprint        string                  `json:"fingerprint"`
	Sender             string                  `json:"sender"`
	Subject            string                  `json:"subject"`
	Body               string                  `json:"body"`
	Category           domain.Category         `json:"category"`
	Priority           domain.TicketPriority   `json:"priority"`
	Status             domain.TicketStatus     `json:"status"`
	AssignedTeam       string                  `json:"assigned_team,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
	ResponseDueAt      time.Time               `json:"response_due_at"`
	ResolutionDueAt    time.Time               `json:"resolution_due_at"`
	FirstRespondedAt   *time.Time              `json:"first_responded_at,omitempty"`
	ResolvedAt         *time.Time              `json:"resolved_at,omitempty"`
	ResolutionNote     string                  `json:"resolution_note,omitempty"`
	EscalatedAt        *time.Time              `json:"escalated_at,omitempty"`
	ResponseBreached   bool                    `json:"response_breached"`
	ResolutionBreached bool                    `json:"resolution_breached"`
	WarnedAt           *time.Time              `json:"warned_at,omitempty"`
	History            []TicketHistoryResponse `json:"history"`
}

// TicketHistoryResponse represents one audit trail entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ChangedBy  string                  `json:"changed_by"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

// StatsResponse summarizes the ticket population.
type StatsResponse struct {
	Total      int                           `json:"total"`
	ByStatus   map[domain.TicketStatus]int   `json:"by_status"`
	ByPriority map[domain.TicketPriority]int `json:"by_priority"`
	ByCategory map[domain.Category]int       `json:"by_category"`
	Sla        SlaSummaryResponse            `json:"sla"`
}
