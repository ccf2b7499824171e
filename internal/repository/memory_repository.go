package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// MemoryTicketRepository is a mutex-guarded in-memory implementation used by
// demo mode and tests. Check-then-act sequences hold the lock end to end, so
// guarded transitions are atomic exactly like the SQL implementation.
type MemoryTicketRepository struct {
	mu           sync.RWMutex
	tickets      map[string]domain.Ticket
	fingerprints map[string]string
	order        []string
}

// NewMemoryTicketRepository builds an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets:      make(map[string]domain.Ticket),
		fingerprints: make(map[string]string),
	}
}

func (m *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.fingerprints[ticket.Fingerprint]; exists {
		return ErrDuplicateFingerprint
	}
	if ticket.ID == "" {
		ticket.ID = uuid.Must(uuid.NewV7()).String()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	m.tickets[ticket.ID] = *ticket
	m.fingerprints[ticket.Fingerprint] = ticket.ID
	m.order = append(m.order, ticket.ID)
	return nil
}

func (m *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ticket, nil
}

func (m *MemoryTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []domain.Ticket
	for _, id := range m.order {
		ticket := m.tickets[id]
		if matchesFilter(&ticket, filter) {
			matched = append(matched, ticket)
		}
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]domain.Ticket, end-offset)
	copy(result, matched[offset:end])
	return result, nil
}

func (m *MemoryTicketRepository) ListDueBefore(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Ticket
	for _, id := range m.order {
		ticket := m.tickets[id]
		if ticket.Terminal() {
			continue
		}
		if !ticket.ResponseDueAt.After(cutoff) || !ticket.ResolutionDueAt.After(cutoff) {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (m *MemoryTicketRepository) Transition(ctx context.Context, id string, from []domain.TicketStatus, mut TicketMutation) (*domain.Ticket, error) {
	if err := mut.validate(); err != nil {
		return nil, err
	}
	if len(from) == 0 {
		return nil, errors.New("transition requires at least one allowed source status")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	allowed := false
	for _, status := range from {
		if ticket.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &StateConflictError{TicketID: id, Current: ticket.Status}
	}
	// Once-only markers: refuse to set one that is already set.
	if mut.ResponseBreached != nil && ticket.ResponseBreached {
		return nil, &StateConflictError{TicketID: id, Current: ticket.Status}
	}
	if mut.ResolutionBreached != nil && ticket.ResolutionBreached {
		return nil, &StateConflictError{TicketID: id, Current: ticket.Status}
	}
	if mut.WarnedAt != nil && ticket.WarnedAt != nil {
		return nil, &StateConflictError{TicketID: id, Current: ticket.Status}
	}

	if mut.Status != nil {
		ticket.Status = *mut.Status
	}
	if mut.Priority != nil {
		ticket.Priority = *mut.Priority
	}
	if mut.AssignedTeam != nil {
		ticket.AssignedTeam = *mut.AssignedTeam
	}
	if mut.ResolutionNote != nil {
		ticket.ResolutionNote = *mut.ResolutionNote
	}
	if mut.ResolvedAt != nil {
		resolvedAt := *mut.ResolvedAt
		ticket.ResolvedAt = &resolvedAt
	}
	if mut.FirstRespondedAt != nil {
		respondedAt := *mut.FirstRespondedAt
		ticket.FirstRespondedAt = &respondedAt
	}
	if mut.EscalatedAt != nil {
		escalatedAt := *mut.EscalatedAt
		ticket.EscalatedAt = &escalatedAt
	}
	if mut.ResolutionDueAt != nil {
		ticket.ResolutionDueAt = *mut.ResolutionDueAt
	}
	if mut.ResponseBreached != nil {
		ticket.ResponseBreached = *mut.ResponseBreached
	}
	if mut.ResolutionBreached != nil {
		ticket.ResolutionBreached = *mut.ResolutionBreached
	}
	if mut.WarnedAt != nil {
		warnedAt := *mut.WarnedAt
		ticket.WarnedAt = &warnedAt
	}
	ticket.UpdatedAt = time.Now().UTC()

	m.tickets[id] = ticket
	return &ticket, nil
}

func (m *MemoryTicketRepository) Distributions(ctx context.Context) (TicketDistributions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dist := TicketDistributions{
		ByStatus:   make(map[domain.TicketStatus]int),
		ByPriority: make(map[domain.TicketPriority]int),
		ByCategory: make(map[domain.Category]int),
	}
	for _, ticket := range m.tickets {
		dist.Total++
		dist.ByStatus[ticket.Status]++
		dist.ByPriority[ticket.Priority]++
		dist.ByCategory[ticket.Category]++
	}
	return dist, nil
}

func (m *MemoryTicketRepository) SLACounts(ctx context.Context) (SLACounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts SLACounts
	for _, ticket := range m.tickets {
		counts.Total++
		if ticket.Terminal() {
			counts.Resolved++
		}
		if ticket.ResponseBreached || ticket.ResolutionBreached {
			counts.Breached++
		} else if ticket.WarnedAt != nil && !ticket.Terminal() {
			counts.AtRisk++
		}
	}
	counts.OnTrack = counts.Total - counts.Breached - counts.AtRisk
	return counts, nil
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if len(filter.Categories) > 0 && !containsCategory(filter.Categories, ticket.Category) {
		return false
	}
	if filter.Breached != nil {
		breached := ticket.ResponseBreached || ticket.ResolutionBreached
		if breached != *filter.Breached {
			return false
		}
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		needle := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if !strings.Contains(strings.ToLower(ticket.Subject), needle) &&
			!strings.Contains(strings.ToLower(ticket.Body), needle) &&
			!strings.Contains(strings.ToLower(ticket.Sender), needle) {
			return false
		}
	}
	return true
}

func containsStatus(haystack []domain.TicketStatus, needle domain.TicketStatus) bool {
	for _, status := range haystack {
		if status == needle {
			return true
		}
	}
	return false
}

func containsPriority(haystack []domain.TicketPriority, needle domain.TicketPriority) bool {
	for _, priority := range haystack {
		if priority == needle {
			return true
		}
	}
	return false
}

func containsCategory(haystack []domain.Category, needle domain.Category) bool {
	for _, category := range haystack {
		if category == needle {
			return true
		}
	}
	return false
}

// MemoryTicketHistoryRepository keeps audit entries in memory.
type MemoryTicketHistoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.TicketHistory
}

// NewMemoryTicketHistoryRepository builds an empty history store.
func NewMemoryTicketHistoryRepository() *MemoryTicketHistoryRepository {
	return &MemoryTicketHistoryRepository{entries: make(map[string][]domain.TicketHistory)}
}

func (m *MemoryTicketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	m.entries[history.TicketID] = append(m.entries[history.TicketID], *history)
	return nil
}

func (m *MemoryTicketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries[ticketID]
	result := make([]domain.TicketHistory, len(entries))
	copy(result, entries)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
