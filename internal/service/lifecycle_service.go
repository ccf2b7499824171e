package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/domain"
	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/repository"
	apperrors "github.com/opsdesk-io/servicedesk/pkg/util/errorutil"
)

// LifecycleService owns every ticket state change from intake to closure.
type LifecycleService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	teams      *TeamDirectory
	policy     domain.SlaPolicy
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Teams       *TeamDirectory
	Policy      domain.SlaPolicy
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketIntakeInput describes a classified message entering the lifecycle.
type TicketIntakeInput struct {
	Message  domain.InboundMessage
	Category domain.Category
	Priority domain.TicketPriority
	// Fallback marks intakes no classification rule matched.
	Fallback bool
	// Now overrides the intake clock; zero means time.Now.
	Now time.Time
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.Category
	Breached   *bool
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketStats aggregates ticket distributions and SLA standing for the
// reporting endpoint.
type TicketStats struct {
	Total      int
	ByStatus   map[domain.TicketStatus]int
	ByPriority map[domain.TicketPriority]int
	ByCategory map[domain.Category]int
	Sla        SlaSummary
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		teams:      deps.Teams,
		policy:     deps.Policy,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// CreateFromMessage opens a ticket for a classified inbound message and
// routes it by priority: low priority auto-resolves, medium priority is
// assigned to the category team, high priority escalates immediately.
// A message whose fingerprint was already ingested yields
// repository.ErrDuplicateFingerprint.
func (s *LifecycleService) CreateFromMessage(ctx context.Context, input TicketIntakeInput) (*domain.Ticket, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	sender := strings.TrimSpace(input.Message.Sender)
	if sender == "" {
		return nil, apperrors.NewValidationError("sender is required", nil)
	}
	category := input.Category
	if !category.Valid() {
		category = domain.CategoryOther
	}
	priority := input.Priority
	if !priority.Valid() {
		priority = domain.TicketPriorityLow
	}
	if input.Fallback {
		s.logger.Warn("classification fallback",
			zap.String("sender", sender),
			zap.String("subject", input.Message.Subject))
	}

	ticket := &domain.Ticket{
		Fingerprint:     input.Message.Fingerprint(),
		Sender:          sender,
		Subject:         strings.TrimSpace(input.Message.Subject),
		Body:            input.Message.Body,
		Category:        category,
		Priority:        priority,
		Status:          domain.TicketStatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
		ResponseDueAt:   s.policy.ResponseDue(priority, now),
		ResolutionDueAt: s.policy.ResolutionDue(priority, now),
	}
	s.routeNewTicket(ticket, now)

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    domain.ActorLifecycle,
		Payload: events.TicketCreatedPayload{
			Sender:   ticket.Sender,
			Subject:  ticket.Subject,
			Category: ticket.Category,
			Priority: ticket.Priority,
			Status:   ticket.Status,
			Fallback: input.Fallback,
		},
	})
	s.recordStatusChange(ctx, domain.ActorLifecycle, ticket.ID, domain.TicketStatusNew, ticket.Status, "intake routing")

	switch ticket.Status {
	case domain.TicketStatusAutoResolved:
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAutoResolved,
			TicketID: ticket.ID,
			Actor:    domain.ActorLifecycle,
			Payload: events.TicketAutoResolvedPayload{
				Sender:     ticket.Sender,
				Subject:    ticket.Subject,
				ResolvedAt: *ticket.ResolvedAt,
			},
		})
	case domain.TicketStatusEscalated:
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketEscalated,
			TicketID: ticket.ID,
			Actor:    domain.ActorLifecycle,
			Payload: events.TicketEscalatedPayload{
				Team:            ticket.AssignedTeam,
				Subject:         ticket.Subject,
				OldPriority:     ticket.Priority,
				NewPriority:     ticket.Priority,
				Reason:          events.EscalationReasonIntake,
				ResolutionDueAt: ticket.ResolutionDueAt,
			},
		})
	default:
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    domain.ActorLifecycle,
			Payload: events.TicketAssignedPayload{
				Team:     ticket.AssignedTeam,
				Subject:  ticket.Subject,
				Category: ticket.Category,
				Priority: ticket.Priority,
			},
		})
	}

	return ticket, nil
}

func (s *LifecycleService) routeNewTicket(ticket *domain.Ticket, now time.Time) {
	switch ticket.Priority {
	case domain.TicketPriorityLow:
		resolvedAt := now
		ticket.Status = domain.TicketStatusAutoResolved
		ticket.ResolvedAt = &resolvedAt
		ticket.ResolutionNote = "auto-resolved at intake"
	case domain.TicketPriorityHigh:
		escalatedAt := now
		ticket.Status = domain.TicketStatusEscalated
		ticket.AssignedTeam = s.teams.Route(ticket.Category).Email
		ticket.EscalatedAt = &escalatedAt
	default:
		ticket.Status = domain.TicketStatusAssigned
		ticket.AssignedTeam = s.teams.Route(ticket.Category).Email
	}
}

// Resolve closes an open ticket with an operator note. Only assigned and
// escalated tickets can be resolved; resolving also records the first
// response when none exists yet.
func (s *LifecycleService) Resolve(ctx context.Context, ticketID, note string, now time.Time) (*domain.Ticket, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.NewValidationError("resolution note is required", nil)
	}

	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	resolvedAt := now
	status := domain.TicketStatusResolved
	mutation := repository.TicketMutation{
		Status:         &status,
		ResolutionNote: &note,
		ResolvedAt:     &resolvedAt,
	}
	if current.FirstRespondedAt == nil {
		mutation.FirstRespondedAt = &resolvedAt
	}

	ticket, err := s.tickets.Transition(ctx, ticketID, transitionSources(domain.TicketStatusResolved), mutation)
	if err != nil {
		return nil, s.mapTransitionErr(err, ticketID)
	}

	s.recordStatusChange(ctx, domain.ActorAPI, ticket.ID, current.Status, ticket.Status, note)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketResolved,
		TicketID: ticket.ID,
		Actor:    domain.ActorAPI,
		Payload: events.TicketResolvedPayload{
			Sender:     ticket.Sender,
			Subject:    ticket.Subject,
			Note:       note,
			ResolvedAt: resolvedAt,
		},
	})
	return ticket, nil
}

// ForceEscalate records a resolution breach and escalates the ticket in a
// single guarded transition: the status moves to escalated, medium priority
// is raised to high and the breach flag is set. The flag doubles as the
// once-only marker, so repeating the call yields a state conflict which
// callers treat as already handled. The resolution deadline is recomputed
// from the escalation instant against the high-priority window when that
// shrinks it; it never extends.
func (s *LifecycleService) ForceEscalate(ctx context.Context, ticketID string, now time.Time) (*domain.Ticket, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	status := domain.TicketStatusEscalated
	breached := true
	mutation := repository.TicketMutation{
		Status:             &status,
		ResolutionBreached: &breached,
	}
	if current.Priority != domain.TicketPriorityHigh {
		high := domain.TicketPriorityHigh
		mutation.Priority = &high
	}
	if current.AssignedTeam == "" {
		team := s.teams.Route(current.Category).Email
		mutation.AssignedTeam = &team
	}
	if current.EscalatedAt == nil {
		escalatedAt := now
		mutation.EscalatedAt = &escalatedAt
	}
	if newDue := s.policy.ResolutionDue(domain.TicketPriorityHigh, now); newDue.Before(current.ResolutionDueAt) {
		mutation.ResolutionDueAt = &newDue
	}

	ticket, err := s.tickets.Transition(ctx, ticketID, transitionSources(domain.TicketStatusEscalated), mutation)
	if err != nil {
		return nil, err
	}

	if current.Status != ticket.Status {
		s.recordStatusChange(ctx, domain.ActorSlaSweep, ticket.ID, current.Status, ticket.Status, "resolution deadline breached")
	}
	if current.Priority != ticket.Priority {
		s.recordPriorityChange(ctx, domain.ActorSlaSweep, ticket.ID, current.Priority, ticket.Priority)
	}
	if current.Status != ticket.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketEscalated,
			TicketID: ticket.ID,
			Actor:    domain.ActorSlaSweep,
			Payload: events.TicketEscalatedPayload{
				Team:            ticket.AssignedTeam,
				Subject:         ticket.Subject,
				OldPriority:     current.Priority,
				NewPriority:     ticket.Priority,
				Reason:          events.EscalationReasonResolutionBreach,
				ResolutionDueAt: ticket.ResolutionDueAt,
			},
		})
	}
	return ticket, nil
}

// GetTicket returns one ticket with its audit history.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.TicketHistory, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, nil, err
	}
	if s.history == nil {
		return ticket, []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, entries, nil
}

// ListTickets returns tickets in creation order.
func (s *LifecycleService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Categories: filter.Categories,
		Breached:   filter.Breached,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	return s.tickets.List(ctx, repoFilter)
}

// Stats aggregates ticket counts by status, priority and category together
// with the SLA standing.
func (s *LifecycleService) Stats(ctx context.Context) (TicketStats, error) {
	dist, err := s.tickets.Distributions(ctx)
	if err != nil {
		return TicketStats{}, err
	}
	slaCounts, err := s.tickets.SLACounts(ctx)
	if err != nil {
		return TicketStats{}, err
	}
	return TicketStats{
		Total:      dist.Total,
		ByStatus:   dist.ByStatus,
		ByPriority: dist.ByPriority,
		ByCategory: dist.ByCategory,
		Sla:        summarizeSlaCounts(slaCounts),
	}, nil
}

func (s *LifecycleService) mapTransitionErr(err error, ticketID string) error {
	if conflict, ok := repository.IsStateConflict(err); ok {
		if conflict.Current.IsTerminal() {
			return apperrors.NewTerminalState(ticketID, string(conflict.Current))
		}
		return apperrors.NewInvalidState(ticketID, string(conflict.Current))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return err
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *LifecycleService) recordStatusChange(ctx context.Context, actor, ticketID string, oldStatus, newStatus domain.TicketStatus, comment string) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actor,
		ChangeType: domain.ChangeTypeStatus,
		OldValue:   map[string]any{"status": oldStatus},
		NewValue:   map[string]any{"status": newStatus, "comment": comment},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record status change", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *LifecycleService) recordPriorityChange(ctx context.Context, actor, ticketID string, oldPriority, newPriority domain.TicketPriority) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actor,
		ChangeType: domain.ChangeTypePriority,
		OldValue:   map[string]any{"priority": oldPriority},
		NewValue:   map[string]any{"priority": newPriority},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record priority change", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:          {domain.TicketStatusAssigned, domain.TicketStatusAutoResolved, domain.TicketStatusEscalated},
	domain.TicketStatusAssigned:     {domain.TicketStatusResolved, domain.TicketStatusEscalated},
	domain.TicketStatusEscalated:    {domain.TicketStatusResolved, domain.TicketStatusEscalated},
	domain.TicketStatusAutoResolved: {},
	domain.TicketStatusResolved:     {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// transitionSources lists every status from which next may be entered.
func transitionSources(next domain.TicketStatus) []domain.TicketStatus {
	ordered := []domain.TicketStatus{
		domain.TicketStatusNew,
		domain.TicketStatusAssigned,
		domain.TicketStatusEscalated,
		domain.TicketStatusAutoResolved,
		domain.TicketStatusResolved,
	}
	sources := make([]domain.TicketStatus, 0, len(ordered))
	for _, current := range ordered {
		if isValidTransition(current, next) {
			sources = append(sources, current)
		}
	}
	return sources
}
