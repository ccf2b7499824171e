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
	"github.com/opsdesk-io/servicedesk/internal/repository"
	"github.com/opsdesk-io/servicedesk/internal/service"
)

// sweepPolicy shortens the medium resolution window so deadline scenarios
// stay readable in hours.
func sweepPolicy() domain.SlaPolicy {
	return domain.SlaPolicy{
		Windows: map[domain.TicketPriority]domain.SlaWindows{
			domain.TicketPriorityHigh:   {Response: 1 * time.Hour, Resolution: 4 * time.Hour},
			domain.TicketPriorityMedium: {Response: 2 * time.Hour, Resolution: 8 * time.Hour},
			domain.TicketPriorityLow:    {Response: 24 * time.Hour, Resolution: 72 * time.Hour},
		},
		WarningThreshold: 0.8,
	}
}

type slaFixture struct {
	lifecycle  *service.LifecycleService
	sla        *service.SlaService
	tickets    repository.TicketRepository
	history    *repository.MemoryTicketHistoryRepository
	dispatcher *capturingDispatcher
}

func newSlaFixture(t *testing.T, tickets repository.TicketRepository) *slaFixture {
	t.Helper()
	if tickets == nil {
		tickets = repository.NewMemoryTicketRepository()
	}
	history := repository.NewMemoryTicketHistoryRepository()
	dispatcher := &capturingDispatcher{}
	policy := sweepPolicy()
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  tickets,
		HistoryRepo: history,
		Teams:       service.NewTeamDirectory(testTeamsConfig()),
		Policy:      policy,
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
	})
	sla := service.NewSlaService(service.SlaDependencies{
		TicketRepo:  tickets,
		HistoryRepo: history,
		Lifecycle:   lifecycle,
		Policy:      policy,
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
	})
	return &slaFixture{lifecycle: lifecycle, sla: sla, tickets: tickets, history: history, dispatcher: dispatcher}
}

func TestSweepResolutionBreachEscalatesOnce(t *testing.T) {
	fx := newSlaFixture(t, nil)
	created, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sweep-breach", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	fx.dispatcher.reset()

	report, err := fx.sla.Sweep(context.Background(), intakeBase.Add(9*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.ResolutionBreaches)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, 1, report.ResponseBreaches, "an unanswered ticket past both deadlines breaches both")
	assert.Zero(t, report.Failed)

	after, err := fx.tickets.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, after.ResolutionBreached)
	assert.Equal(t, domain.TicketStatusEscalated, after.Status)
	assert.Equal(t, domain.TicketPriorityHigh, after.Priority)
	assert.True(t, after.ResolutionDueAt.Equal(created.ResolutionDueAt), "breach escalation must not move the deadline")

	require.Len(t, fx.dispatcher.ofType(events.EventSlaResolutionBreach), 1)
	require.Len(t, fx.dispatcher.ofType(events.EventTicketEscalated), 1)

	second, err := fx.sla.Sweep(context.Background(), intakeBase.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Checked)
	assert.Zero(t, second.ResolutionBreaches)
	assert.Zero(t, second.Escalated)
	assert.Len(t, fx.dispatcher.ofType(events.EventSlaResolutionBreach), 1, "a breach is recorded exactly once")
	assert.Len(t, fx.dispatcher.ofType(events.EventTicketEscalated), 1)
}

func TestSweepResponseBreachBeforeResolutionDue(t *testing.T) {
	fx := newSlaFixture(t, nil)
	created, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sweep-response", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	fx.dispatcher.reset()

	report, err := fx.sla.Sweep(context.Background(), intakeBase.Add(3*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, report.ResponseBreaches)
	assert.Zero(t, report.ResolutionBreaches)
	assert.Zero(t, report.Escalated)

	after, err := fx.tickets.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, after.ResponseBreached)
	assert.False(t, after.ResolutionBreached)
	assert.Equal(t, domain.TicketStatusAssigned, after.Status, "a response breach alone does not escalate")
	assert.Equal(t, domain.TicketPriorityMedium, after.Priority)
	require.Len(t, fx.dispatcher.ofType(events.EventSlaResponseBreach), 1)

	second, err := fx.sla.Sweep(context.Background(), intakeBase.Add(3*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, second.ResponseBreaches)
	assert.Len(t, fx.dispatcher.ofType(events.EventSlaResponseBreach), 1)
}

func TestSweepWarnsRespondedTicketOnce(t *testing.T) {
	fx := newSlaFixture(t, nil)
	respondedAt := intakeBase.Add(time.Hour)
	ticket := &domain.Ticket{
		Fingerprint:      "fp-warning",
		Sender:           "alice@example.com",
		Subject:          "vpn profile broken",
		Category:         domain.CategoryNetwork,
		Priority:         domain.TicketPriorityMedium,
		Status:           domain.TicketStatusAssigned,
		AssignedTeam:     "network-team@example.com",
		CreatedAt:        intakeBase,
		UpdatedAt:        intakeBase,
		ResponseDueAt:    intakeBase.Add(2 * time.Hour),
		ResolutionDueAt:  intakeBase.Add(8 * time.Hour),
		FirstRespondedAt: &respondedAt,
	}
	require.NoError(t, fx.tickets.Create(context.Background(), ticket))

	// warning threshold 0.8 of an 8h window puts the at-risk instant at +6h24m
	report, err := fx.sla.Sweep(context.Background(), intakeBase.Add(7*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Warnings)
	assert.Zero(t, report.ResponseBreaches)
	assert.Zero(t, report.ResolutionBreaches)

	after, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, after.WarnedAt)
	assert.True(t, after.WarnedAt.Equal(intakeBase.Add(7*time.Hour)))
	require.Len(t, fx.dispatcher.ofType(events.EventSlaWarning), 1)

	second, err := fx.sla.Sweep(context.Background(), intakeBase.Add(7*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, second.Warnings)
	assert.Len(t, fx.dispatcher.ofType(events.EventSlaWarning), 1, "the warning fires exactly once")
}

func TestSweepLeavesHealthyTicketsAlone(t *testing.T) {
	fx := newSlaFixture(t, nil)
	created, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sweep-healthy", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	fx.dispatcher.reset()

	report, err := fx.sla.Sweep(context.Background(), intakeBase.Add(30*time.Minute))
	require.NoError(t, err)

	assert.Zero(t, report.Warnings)
	assert.Zero(t, report.ResponseBreaches)
	assert.Zero(t, report.ResolutionBreaches)
	assert.Zero(t, report.Escalated)
	assert.Empty(t, fx.dispatcher.events)

	after, err := fx.tickets.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, after.Status)
	assert.False(t, after.ResponseBreached)
	assert.Nil(t, after.WarnedAt)
}

func TestSweepSkipsResolvedTickets(t *testing.T) {
	fx := newSlaFixture(t, nil)
	created, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sweep-resolved", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	_, err = fx.lifecycle.Resolve(context.Background(), created.ID, "fixed before the deadline", intakeBase.Add(time.Hour))
	require.NoError(t, err)
	fx.dispatcher.reset()

	report, err := fx.sla.Sweep(context.Background(), intakeBase.Add(9*time.Hour))
	require.NoError(t, err)

	assert.Zero(t, report.Checked)
	assert.Empty(t, fx.dispatcher.events)

	after, err := fx.tickets.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, after.ResolutionBreached)
	assert.Equal(t, domain.TicketStatusResolved, after.Status)
}

// flakyTicketRepo fails transitions for one ticket id.
type flakyTicketRepo struct {
	repository.TicketRepository
	failID string
}

func (r *flakyTicketRepo) Transition(ctx context.Context, id string, from []domain.TicketStatus, mut repository.TicketMutation) (*domain.Ticket, error) {
	if id == r.failID {
		return nil, errors.New("storage offline")
	}
	return r.TicketRepository.Transition(ctx, id, from, mut)
}

func TestSweepFailureDoesNotAbortRun(t *testing.T) {
	flaky := &flakyTicketRepo{TicketRepository: repository.NewMemoryTicketRepository()}
	fx := newSlaFixture(t, flaky)

	broken, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sweep-fail-a", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	healthy, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sweep-fail-b", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	flaky.failID = broken.ID
	fx.dispatcher.reset()

	report, err := fx.sla.Sweep(context.Background(), intakeBase.Add(9*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, broken.ID, report.Failures[0].TicketID)
	assert.Contains(t, report.Failures[0].Reason, "storage offline")
	assert.Equal(t, 1, report.ResolutionBreaches, "the healthy ticket is still processed")

	after, err := fx.tickets.GetByID(context.Background(), healthy.ID)
	require.NoError(t, err)
	assert.True(t, after.ResolutionBreached)
}

func TestSummaryComputesComplianceRate(t *testing.T) {
	fx := newSlaFixture(t, nil)

	_, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sum-low", domain.TicketPriorityLow, domain.CategoryNetwork))
	require.NoError(t, err)
	_, err = fx.lifecycle.CreateFromMessage(context.Background(), intake("sum-plain", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	breached, err := fx.lifecycle.CreateFromMessage(context.Background(), intake("sum-breached", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	_, err = fx.lifecycle.ForceEscalate(context.Background(), breached.ID, intakeBase.Add(9*time.Hour))
	require.NoError(t, err)

	warnedAt := intakeBase.Add(7 * time.Hour)
	warned := &domain.Ticket{
		Fingerprint:     "fp-sum-warned",
		Sender:          "bob@example.com",
		Subject:         "mailbox nearly full",
		Category:        domain.CategoryEmail,
		Priority:        domain.TicketPriorityMedium,
		Status:          domain.TicketStatusAssigned,
		CreatedAt:       intakeBase,
		UpdatedAt:       intakeBase,
		ResponseDueAt:   intakeBase.Add(2 * time.Hour),
		ResolutionDueAt: intakeBase.Add(8 * time.Hour),
		WarnedAt:        &warnedAt,
	}
	require.NoError(t, fx.tickets.Create(context.Background(), warned))

	summary, err := fx.sla.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Resolved)
	assert.Equal(t, 1, summary.Breached)
	assert.Equal(t, 1, summary.AtRisk)
	assert.Equal(t, 2, summary.OnTrack)
	assert.InDelta(t, 0.75, summary.ComplianceRate, 1e-9)
}
