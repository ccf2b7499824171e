package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/domain"
	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/repository"
)

// SweepFailure records one ticket the sweep could not evaluate.
type SweepFailure struct {
	TicketID string
	Reason   string
}

// SweepReport summarizes one SLA sweep.
type SweepReport struct {
	Checked            int
	Warnings           int
	ResponseBreaches   int
	ResolutionBreaches int
	Escalated          int
	Failed             int
	Failures           []SweepFailure
	Duration           time.Duration
}

// SlaSummary reports aggregate SLA standing across all tickets.
type SlaSummary struct {
	Total          int
	Resolved       int
	Breached       int
	AtRisk         int
	OnTrack        int
	ComplianceRate float64
}

// SlaService watches open tickets against their response and resolution
// deadlines.
type SlaService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	lifecycle  *LifecycleService
	policy     domain.SlaPolicy
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// SlaDependencies bundles collaborators for the SLA service.
type SlaDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Lifecycle   *LifecycleService
	Policy      domain.SlaPolicy
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewSlaService constructs the service.
func NewSlaService(deps SlaDependencies) *SlaService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlaService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		lifecycle:  deps.Lifecycle,
		policy:     deps.Policy,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Sweep evaluates open tickets near or past a deadline as of now. Breach
// flags and the warning marker travel in the same guarded transition that
// decides the matching event, so repeated sweeps never emit duplicates.
// A failure on one ticket is reported and does not abort the sweep.
func (s *SlaService) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	started := time.Now()

	// The cutoff reaches far enough ahead to catch tickets entering their
	// warning window, not just ones already past a deadline.
	cutoff := now.Add(s.policy.MaxWarningLookahead())
	tickets, err := s.tickets.ListDueBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{}
	for i := range tickets {
		ticket := tickets[i]
		report.Checked++
		if err := s.sweepTicket(ctx, &ticket, now, report); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, SweepFailure{TicketID: ticket.ID, Reason: err.Error()})
			s.logger.Error("sla sweep ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	report.Duration = time.Since(started)
	s.logger.Info("sla sweep complete",
		zap.Int("checked", report.Checked),
		zap.Int("warnings", report.Warnings),
		zap.Int("response_breaches", report.ResponseBreaches),
		zap.Int("resolution_breaches", report.ResolutionBreaches),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *SlaService) sweepTicket(ctx context.Context, ticket *domain.Ticket, now time.Time, report *SweepReport) error {
	if ticket.Terminal() {
		return nil
	}

	if now.After(ticket.ResponseDueAt) && ticket.FirstRespondedAt == nil && !ticket.ResponseBreached {
		flagged, err := s.markResponseBreach(ctx, ticket, now)
		if err != nil {
			return err
		}
		if flagged != nil {
			*ticket = *flagged
			report.ResponseBreaches++
		}
	}

	if now.After(ticket.ResolutionDueAt) && !ticket.ResolutionBreached {
		wasEscalated := ticket.Status == domain.TicketStatusEscalated
		escalated, err := s.lifecycle.ForceEscalate(ctx, ticket.ID, now)
		if err != nil {
			// a conflict means the ticket was resolved meanwhile or another
			// sweep already recorded this breach
			if _, ok := repository.IsStateConflict(err); ok {
				return nil
			}
			return err
		}
		*ticket = *escalated
		report.ResolutionBreaches++
		if !wasEscalated {
			report.Escalated++
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventSlaResolutionBreach,
			TicketID: ticket.ID,
			Actor:    domain.ActorSlaSweep,
			Payload: events.SlaBreachPayload{
				Team:       ticket.AssignedTeam,
				Subject:    ticket.Subject,
				DueAt:      ticket.ResolutionDueAt,
				ObservedAt: now,
			},
		})
		s.recordSlaFlag(ctx, ticket.ID, "resolution_breached", now)
		return nil
	}

	if ticket.WarnedAt == nil && !ticket.ResponseBreached && !ticket.ResolutionBreached &&
		now.Before(ticket.ResolutionDueAt) &&
		!now.Before(s.policy.WarningAt(ticket.CreatedAt, ticket.ResolutionDueAt)) {
		warned, err := s.markWarning(ctx, ticket, now)
		if err != nil {
			return err
		}
		if warned != nil {
			*ticket = *warned
			report.Warnings++
		}
	}

	return nil
}

// markResponseBreach sets the response breach flag. A nil ticket with nil
// error means another writer got there first.
func (s *SlaService) markResponseBreach(ctx context.Context, ticket *domain.Ticket, now time.Time) (*domain.Ticket, error) {
	breached := true
	updated, err := s.tickets.Transition(ctx, ticket.ID, domain.OpenStatuses(), repository.TicketMutation{
		ResponseBreached: &breached,
	})
	if err != nil {
		if _, ok := repository.IsStateConflict(err); ok {
			return nil, nil
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventSlaResponseBreach,
		TicketID: updated.ID,
		Actor:    domain.ActorSlaSweep,
		Payload: events.SlaBreachPayload{
			Team:       updated.AssignedTeam,
			Subject:    updated.Subject,
			DueAt:      updated.ResponseDueAt,
			ObservedAt: now,
		},
	})
	s.recordSlaFlag(ctx, updated.ID, "response_breached", now)
	return updated, nil
}

// markWarning stamps the warning marker. A nil ticket with nil error means
// another writer got there first.
func (s *SlaService) markWarning(ctx context.Context, ticket *domain.Ticket, now time.Time) (*domain.Ticket, error) {
	warnedAt := now
	updated, err := s.tickets.Transition(ctx, ticket.ID, domain.OpenStatuses(), repository.TicketMutation{
		WarnedAt: &warnedAt,
	})
	if err != nil {
		if _, ok := repository.IsStateConflict(err); ok {
			return nil, nil
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventSlaWarning,
		TicketID: updated.ID,
		Actor:    domain.ActorSlaSweep,
		Payload: events.SlaWarningPayload{
			Team:            updated.AssignedTeam,
			Subject:         updated.Subject,
			ResolutionDueAt: updated.ResolutionDueAt,
		},
	})
	s.recordSlaFlag(ctx, updated.ID, "warned", now)
	return updated, nil
}

// Summary aggregates SLA standing across the whole store.
func (s *SlaService) Summary(ctx context.Context) (SlaSummary, error) {
	counts, err := s.tickets.SLACounts(ctx)
	if err != nil {
		return SlaSummary{}, err
	}
	return summarizeSlaCounts(counts), nil
}

func summarizeSlaCounts(counts repository.SLACounts) SlaSummary {
	summary := SlaSummary{
		Total:    counts.Total,
		Resolved: counts.Resolved,
		Breached: counts.Breached,
		AtRisk:   counts.AtRisk,
		OnTrack:  counts.OnTrack,
	}
	if counts.Total > 0 {
		summary.ComplianceRate = float64(counts.Total-counts.Breached) / float64(counts.Total)
	}
	return summary
}

func (s *SlaService) publishEvent(ctx context.Context, event events.Event) {
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

func (s *SlaService) recordSlaFlag(ctx context.Context, ticketID, flag string, at time.Time) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  domain.ActorSlaSweep,
		ChangeType: domain.ChangeTypeSlaFlag,
		OldValue:   map[string]any{flag: false},
		NewValue:   map[string]any{flag: true, "observed_at": at},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record sla flag", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}
