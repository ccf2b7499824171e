package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk-io/servicedesk/internal/api/dto"
	"github.com/opsdesk-io/servicedesk/internal/classifier"
	"github.com/opsdesk-io/servicedesk/internal/domain"
	"github.com/opsdesk-io/servicedesk/internal/repository"
	"github.com/opsdesk-io/servicedesk/internal/service"
	apperrors "github.com/opsdesk-io/servicedesk/pkg/util/errorutil"
)

// TicketsHandler serves ticket read and write endpoints.
type TicketsHandler struct {
	lifecycle  *service.LifecycleService
	classifier *classifier.Classifier
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, clf *classifier.Classifier) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, classifier: clf}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Sender) == "" || strings.TrimSpace(req.Subject) == "" {
		return apperrors.NewValidationError("sender and subject required", nil)
	}

	now := time.Now().UTC()
	msg := domain.InboundMessage{
		Sender:     strings.TrimSpace(req.Sender),
		Subject:    strings.TrimSpace(req.Subject),
		Body:       req.Body,
		ReceivedAt: now,
	}

	result := h.classifier.Classify(msg)
	input := service.TicketIntakeInput{
		Message:  msg,
		Category: result.Category,
		Priority: result.Priority,
		Fallback: result.Fallback,
		Now:      now,
	}
	if req.Category != "" {
		category := domain.Category(strings.ToUpper(strings.TrimSpace(req.Category)))
		if !category.Valid() {
			return apperrors.NewValidationError("unknown category", map[string]interface{}{"category": req.Category})
		}
		input.Category = category
		input.Fallback = false
	}
	if req.Priority != "" {
		priority := domain.TicketPriority(strings.ToUpper(strings.TrimSpace(req.Priority)))
		if !priority.Valid() {
			return apperrors.NewValidationError("unknown priority", map[string]interface{}{"priority": req.Priority})
		}
		input.Priority = priority
		input.Fallback = false
	}

	ticket, err := h.lifecycle.CreateFromMessage(c.Context(), input)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateFingerprint) {
			return apperrors.NewDuplicateMessage(msg.Fingerprint())
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketListQuery(c)
	tickets, err := h.lifecycle.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, history, err := h.lifecycle.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, history)})
}

// ResolveTicket POST /tickets/:id/resolve.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Resolve(c.Context(), c.Params("id"), req.Note, time.Now().UTC())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetStats GET /stats.
func (h *TicketsHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.lifecycle.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StatsResponse{
		Total:      stats.Total,
		ByStatus:   stats.ByStatus,
		ByPriority: stats.ByPriority,
		ByCategory: stats.ByCategory,
		Sla:        slaSummaryResponse(stats.Sla),
	}})
}

func parseTicketListQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.Category(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if breachedStr := c.Query("breached"); breachedStr != "" {
		breached := breachedStr == "true" || breachedStr == "1"
		filter.Breached = &breached
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                 ticket.ID,
		Sender:             ticket.Sender,
		Subject:            ticket.Subject,
		Category:           ticket.Category,
		Priority:           ticket.Priority,
		Status:             ticket.Status,
		AssignedTeam:       ticket.AssignedTeam,
		CreatedAt:          ticket.CreatedAt,
		ResponseDueAt:      ticket.ResponseDueAt,
		ResolutionDueAt:    ticket.ResolutionDueAt,
		ResponseBreached:   ticket.ResponseBreached,
		ResolutionBreached: ticket.ResolutionBreached,
		ResolvedAt:         ticket.ResolvedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, history []domain.TicketHistory) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		ID:                 ticket.ID,
		Fingerprint:        ticket.Fingerprint,
		Sender:             ticket.Sender,
		Subject:            ticket.Subject,
		Body:               ticket.Body,
		Category:           ticket.Category,
		Priority:           ticket.Priority,
		Status:             ticket.Status,
		AssignedTeam:       ticket.AssignedTeam,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
		ResponseDueAt:      ticket.ResponseDueAt,
		ResolutionDueAt:    ticket.ResolutionDueAt,
		FirstRespondedAt:   ticket.FirstRespondedAt,
		ResolvedAt:         ticket.ResolvedAt,
		ResolutionNote:     ticket.ResolutionNote,
		EscalatedAt:        ticket.EscalatedAt,
		ResponseBreached:   ticket.ResponseBreached,
		ResolutionBreached: ticket.ResolutionBreached,
		WarnedAt:           ticket.WarnedAt,
		History:            historyResponses(history),
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ChangedBy:  entry.ChangedBy,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}
