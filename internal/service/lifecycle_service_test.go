package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/config"
	"github.com/opsdesk-io/servicedesk/internal/domain"
	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/repository"
	"github.com/opsdesk-io/servicedesk/internal/service"
	apperrors "github.com/opsdesk-io/servicedesk/pkg/util/errorutil"
)

var intakeBase = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// capturingDispatcher records every published event for assertions.
type capturingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *capturingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *capturingDispatcher) SubscribeAll(handler events.EventHandler) {}

func (d *capturingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (d *capturingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

func testTeamsConfig() config.TeamsConfig {
	return config.TeamsConfig{
		Routes: map[domain.Category]domain.Team{
			domain.CategoryAccess:  {Name: "Identity & Access", Email: "identity-team@example.com"},
			domain.CategoryNetwork: {Name: "Network Operations", Email: "network-team@example.com"},
		},
		Fallback: domain.Team{Name: "Service Desk", Email: "helpdesk@example.com"},
	}
}

type lifecycleFixture struct {
	svc        *service.LifecycleService
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	dispatcher *capturingDispatcher
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	history := repository.NewMemoryTicketHistoryRepository()
	dispatcher := &capturingDispatcher{}
	svc := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  tickets,
		HistoryRepo: history,
		Teams:       service.NewTeamDirectory(testTeamsConfig()),
		Policy:      domain.DefaultSlaPolicy(),
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
	})
	return &lifecycleFixture{svc: svc, tickets: tickets, history: history, dispatcher: dispatcher}
}

func intake(messageID string, priority domain.TicketPriority, category domain.Category) service.TicketIntakeInput {
	return service.TicketIntakeInput{
		Message: domain.InboundMessage{
			MessageID:  messageID,
			Sender:     "alice@example.com",
			Subject:    "cannot reach the file server",
			Body:       "since this morning nothing mounts",
			ReceivedAt: intakeBase,
		},
		Category: category,
		Priority: priority,
		Now:      intakeBase,
	}
}

func TestCreateFromMessageLowAutoResolves(t *testing.T) {
	fx := newLifecycleFixture(t)

	ticket, err := fx.svc.CreateFromMessage(context.Background(), intake("m-low", domain.TicketPriorityLow, domain.CategoryNetwork))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusAutoResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)
	assert.True(t, ticket.ResolvedAt.Equal(intakeBase))
	assert.Empty(t, ticket.AssignedTeam)
	assert.NotEmpty(t, ticket.ResolutionNote)
	assert.True(t, ticket.ResponseDueAt.Equal(intakeBase.Add(24*time.Hour)))
	assert.True(t, ticket.ResolutionDueAt.Equal(intakeBase.Add(72*time.Hour)))

	assert.Len(t, fx.dispatcher.ofType(events.EventTicketCreated), 1)
	assert.Len(t, fx.dispatcher.ofType(events.EventTicketAutoResolved), 1)
	assert.Empty(t, fx.dispatcher.ofType(events.EventTicketAssigned))
}

func TestCreateFromMessageMediumAssignsTeam(t *testing.T) {
	fx := newLifecycleFixture(t)

	ticket, err := fx.svc.CreateFromMessage(context.Background(), intake("m-med", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	assert.Equal(t, "network-team@example.com", ticket.AssignedTeam)
	assert.Nil(t, ticket.ResolvedAt)
	assert.True(t, ticket.ResponseDueAt.Equal(intakeBase.Add(4*time.Hour)))
	assert.True(t, ticket.ResolutionDueAt.Equal(intakeBase.Add(24*time.Hour)))

	assigned := fx.dispatcher.ofType(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	payload, ok := assigned[0].Payload.(events.TicketAssignedPayload)
	require.True(t, ok)
	assert.Equal(t, "network-team@example.com", payload.Team)
}

func TestCreateFromMessageHighEscalatesImmediately(t *testing.T) {
	fx := newLifecycleFixture(t)

	ticket, err := fx.svc.CreateFromMessage(context.Background(), intake("m-high", domain.TicketPriorityHigh, domain.CategoryAccess))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.Equal(t, "identity-team@example.com", ticket.AssignedTeam)
	require.NotNil(t, ticket.EscalatedAt)
	assert.True(t, ticket.EscalatedAt.Equal(intakeBase))
	assert.Nil(t, ticket.ResolvedAt)

	escalated := fx.dispatcher.ofType(events.EventTicketEscalated)
	require.Len(t, escalated, 1)
	payload, ok := escalated[0].Payload.(events.TicketEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, events.EscalationReasonIntake, payload.Reason)
}

func TestCreateFromMessageUnknownCategoryRoutesToFallback(t *testing.T) {
	fx := newLifecycleFixture(t)

	input := intake("m-unknown", domain.TicketPriorityMedium, domain.Category("FURNITURE"))
	ticket, err := fx.svc.CreateFromMessage(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, domain.CategoryOther, ticket.Category)
	assert.Equal(t, "helpdesk@example.com", ticket.AssignedTeam)
}

func TestCreateFromMessageRequiresSender(t *testing.T) {
	fx := newLifecycleFixture(t)

	input := intake("m-nosender", domain.TicketPriorityMedium, domain.CategoryNetwork)
	input.Message.Sender = "   "
	_, err := fx.svc.CreateFromMessage(context.Background(), input)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
}

func TestCreateFromMessageDuplicateFingerprint(t *testing.T) {
	fx := newLifecycleFixture(t)

	_, err := fx.svc.CreateFromMessage(context.Background(), intake("m-dup", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	_, err = fx.svc.CreateFromMessage(context.Background(), intake("m-dup", domain.TicketPriorityMedium, domain.CategoryNetwork))
	assert.ErrorIs(t, err, repository.ErrDuplicateFingerprint)
}

func TestResolveAssignedTicket(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-resolve", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	resolvedAt := intakeBase.Add(2 * time.Hour)
	ticket, err := fx.svc.Resolve(context.Background(), created.ID, "replaced the switch uplink", resolvedAt)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)
	assert.True(t, ticket.ResolvedAt.Equal(resolvedAt))
	assert.Equal(t, "replaced the switch uplink", ticket.ResolutionNote)
	require.NotNil(t, ticket.FirstRespondedAt)
	assert.True(t, ticket.FirstRespondedAt.Equal(resolvedAt))

	resolved := fx.dispatcher.ofType(events.EventTicketResolved)
	require.Len(t, resolved, 1)

	entries, err := fx.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	var statusChanges int
	for _, entry := range entries {
		if entry.ChangeType == domain.ChangeTypeStatus && entry.ChangedBy == domain.ActorAPI {
			statusChanges++
		}
	}
	assert.Equal(t, 1, statusChanges)
}

func TestResolveRequiresNote(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-nonote", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	_, err = fx.svc.Resolve(context.Background(), created.ID, "  ", intakeBase.Add(time.Hour))

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
}

func TestResolveMissingTicket(t *testing.T) {
	fx := newLifecycleFixture(t)

	_, err := fx.svc.Resolve(context.Background(), "no-such-id", "done", intakeBase)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestResolveAutoResolvedTicketLeavesItUnchanged(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-terminal", domain.TicketPriorityLow, domain.CategoryNetwork))
	require.NoError(t, err)

	_, err = fx.svc.Resolve(context.Background(), created.ID, "trying anyway", intakeBase.Add(time.Hour))

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "TERMINAL_STATE", domainErr.Code)

	after, err := fx.tickets.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAutoResolved, after.Status)
	assert.Equal(t, created.ResolutionNote, after.ResolutionNote)
	require.NotNil(t, after.ResolvedAt)
	assert.True(t, after.ResolvedAt.Equal(*created.ResolvedAt))
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-race", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	notes := []string{"first operator note", "second operator note"}
	errs := make([]error, len(notes))
	var wg sync.WaitGroup
	for i := range notes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Resolve(context.Background(), created.ID, notes[i], intakeBase.Add(3*time.Hour))
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var domainErr *apperrors.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "TERMINAL_STATE", domainErr.Code)
		conflicts++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	after, err := fx.tickets.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, after.Status)
	assert.Contains(t, notes, after.ResolutionNote)
}

func TestForceEscalateRaisesPriorityAndSetsFlag(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-force", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	at := intakeBase.Add(25 * time.Hour)
	ticket, err := fx.svc.ForceEscalate(context.Background(), created.ID, at)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.True(t, ticket.ResolutionBreached)
	require.NotNil(t, ticket.EscalatedAt)
	assert.True(t, ticket.EscalatedAt.Equal(at))
	assert.True(t, ticket.ResponseDueAt.Equal(created.ResponseDueAt), "escalation must not move the response deadline")
	assert.True(t, ticket.ResolutionDueAt.Equal(created.ResolutionDueAt), "an overdue escalation must not extend the resolution deadline")

	escalated := fx.dispatcher.ofType(events.EventTicketEscalated)
	require.Len(t, escalated, 1)
	payload, ok := escalated[0].Payload.(events.TicketEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, events.EscalationReasonResolutionBreach, payload.Reason)
	assert.Equal(t, domain.TicketPriorityMedium, payload.OldPriority)
	assert.Equal(t, domain.TicketPriorityHigh, payload.NewPriority)
}

func TestForceEscalateBeforeDueShrinksResolutionDeadline(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-shrink", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	at := intakeBase.Add(2 * time.Hour)
	ticket, err := fx.svc.ForceEscalate(context.Background(), created.ID, at)
	require.NoError(t, err)

	assert.True(t, ticket.ResolutionDueAt.Equal(at.Add(4*time.Hour)), "early escalation tightens the deadline to the high-priority window")
	assert.True(t, ticket.ResolutionDueAt.Before(created.ResolutionDueAt))
	assert.True(t, ticket.ResponseDueAt.Equal(created.ResponseDueAt))
}

func TestForceEscalateSecondCallConflicts(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-once", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)

	_, err = fx.svc.ForceEscalate(context.Background(), created.ID, intakeBase.Add(25*time.Hour))
	require.NoError(t, err)
	fx.dispatcher.reset()

	_, err = fx.svc.ForceEscalate(context.Background(), created.ID, intakeBase.Add(26*time.Hour))
	_, ok := repository.IsStateConflict(err)
	assert.True(t, ok)
	assert.Empty(t, fx.dispatcher.ofType(events.EventTicketEscalated))
}

func TestForceEscalateAlreadyEscalatedEmitsNoEvent(t *testing.T) {
	fx := newLifecycleFixture(t)
	created, err := fx.svc.CreateFromMessage(context.Background(), intake("m-high-breach", domain.TicketPriorityHigh, domain.CategoryNetwork))
	require.NoError(t, err)
	fx.dispatcher.reset()

	ticket, err := fx.svc.ForceEscalate(context.Background(), created.ID, intakeBase.Add(5*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.True(t, ticket.ResolutionBreached)
	assert.Empty(t, fx.dispatcher.ofType(events.EventTicketEscalated), "re-escalation of an escalated ticket is not announced")
}

func TestStatsCountsByStatus(t *testing.T) {
	fx := newLifecycleFixture(t)
	_, err := fx.svc.CreateFromMessage(context.Background(), intake("m-s1", domain.TicketPriorityLow, domain.CategoryNetwork))
	require.NoError(t, err)
	_, err = fx.svc.CreateFromMessage(context.Background(), intake("m-s2", domain.TicketPriorityMedium, domain.CategoryNetwork))
	require.NoError(t, err)
	_, err = fx.svc.CreateFromMessage(context.Background(), intake("m-s3", domain.TicketPriorityHigh, domain.CategoryAccess))
	require.NoError(t, err)

	stats, err := fx.svc.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.TicketStatusAutoResolved])
	assert.Equal(t, 1, stats.ByStatus[domain.TicketStatusAssigned])
	assert.Equal(t, 1, stats.ByStatus[domain.TicketStatusEscalated])
	assert.Equal(t, 2, stats.ByCategory[domain.CategoryNetwork])
	assert.Equal(t, 1, stats.ByPriority[domain.TicketPriorityHigh])
	assert.Equal(t, 3, stats.Sla.Total)
	assert.Equal(t, 1, stats.Sla.Resolved)
	assert.InDelta(t, 1.0, stats.Sla.ComplianceRate, 1e-9)
}
