package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.Category
	// Breached filters on either SLA breach flag.
	Breached   *bool
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketMutation carries the field changes applied by a guarded transition.
// Nil fields are left untouched.
type TicketMutation struct {
	Status             *domain.TicketStatus
	Priority           *domain.TicketPriority
	AssignedTeam       *string
	ResolutionNote     *string
	ResolvedAt         *time.Time
	FirstRespondedAt   *time.Time
	EscalatedAt        *time.Time
	ResolutionDueAt    *time.Time
	ResponseBreached   *bool
	ResolutionBreached *bool
	WarnedAt           *time.Time
}

func (m TicketMutation) validate() error {
	if m.ResponseBreached != nil && !*m.ResponseBreached {
		return errors.New("response breach flag is monotonic")
	}
	if m.ResolutionBreached != nil && !*m.ResolutionBreached {
		return errors.New("resolution breach flag is monotonic")
	}
	return nil
}

// SLACounts aggregates SLA standing across the whole store.
type SLACounts struct {
	Total    int
	Resolved int
	Breached int
	AtRisk   int
	OnTrack  int
}

// TicketDistributions aggregates ticket counts per reporting dimension.
type TicketDistributions struct {
	Total      int
	ByStatus   map[domain.TicketStatus]int
	ByPriority map[domain.TicketPriority]int
	ByCategory map[domain.Category]int
}

// TicketRepository encapsulates ticket persistence. Transition is the single
// write path for existing tickets: the status precondition and the mutation
// are applied as one atomic compare-and-swap. Mutations that set a breach
// flag or the warning marker additionally require the marker to be unset,
// so each marker can be recorded exactly once.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListDueBefore(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
	Transition(ctx context.Context, id string, from []domain.TicketStatus, mut TicketMutation) (*domain.Ticket, error)
	Distributions(ctx context.Context) (TicketDistributions, error)
	SLACounts(ctx context.Context) (SLACounts, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, fingerprint, sender, subject, body, category, priority, status, assigned_team,
               created_at, updated_at, response_due_at, resolution_due_at, first_responded_at,
               resolved_at, resolution_note, escalated_at, response_breached, resolution_breached, warned_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.Must(uuid.NewV7()).String()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	const query = `
        INSERT INTO tickets (id, fingerprint, sender, subject, body, category, priority, status, assigned_team,
                             created_at, updated_at, response_due_at, resolution_due_at, first_responded_at,
                             resolved_at, resolution_note, escalated_at, response_breached, resolution_breached, warned_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Fingerprint,
		ticket.Sender,
		ticket.Subject,
		ticket.Body,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.AssignedTeam,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.FirstRespondedAt,
		ticket.ResolvedAt,
		ticket.ResolutionNote,
		ticket.EscalatedAt,
		ticket.ResponseBreached,
		ticket.ResolutionBreached,
		ticket.WarnedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateFingerprint
		}
		return err
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, priority := range filter.Priorities {
			args = append(args, priority)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Breached != nil {
		if *filter.Breached {
			clauses = append(clauses, "(response_breached OR resolution_breached)")
		} else {
			clauses = append(clauses, "NOT response_breached AND NOT resolution_breached")
		}
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(body) LIKE %s OR LOWER(sender) LIKE %s)", placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListDueBefore(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE status NOT IN ($1,$2)
          AND (response_due_at <= $3 OR resolution_due_at <= $3)
        ORDER BY created_at ASC, id ASC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusAutoResolved, domain.TicketStatusResolved, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Transition(ctx context.Context, id string, from []domain.TicketStatus, mut TicketMutation) (*domain.Ticket, error) {
	if err := mut.validate(); err != nil {
		return nil, err
	}
	if len(from) == 0 {
		return nil, errors.New("transition requires at least one allowed source status")
	}

	sets := []string{"updated_at=NOW()"}
	args := []any{id}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if mut.Status != nil {
		addSet("status", *mut.Status)
	}
	if mut.Priority != nil {
		addSet("priority", *mut.Priority)
	}
	if mut.AssignedTeam != nil {
		addSet("assigned_team", *mut.AssignedTeam)
	}
	if mut.ResolutionNote != nil {
		addSet("resolution_note", *mut.ResolutionNote)
	}
	if mut.ResolvedAt != nil {
		addSet("resolved_at", *mut.ResolvedAt)
	}
	if mut.FirstRespondedAt != nil {
		addSet("first_responded_at", *mut.FirstRespondedAt)
	}
	if mut.EscalatedAt != nil {
		addSet("escalated_at", *mut.EscalatedAt)
	}
	if mut.ResolutionDueAt != nil {
		addSet("resolution_due_at", *mut.ResolutionDueAt)
	}
	if mut.ResponseBreached != nil {
		addSet("response_breached", *mut.ResponseBreached)
	}
	if mut.ResolutionBreached != nil {
		addSet("resolution_breached", *mut.ResolutionBreached)
	}
	if mut.WarnedAt != nil {
		addSet("warned_at", *mut.WarnedAt)
	}

	placeholders := make([]string, len(from))
	for i, status := range from {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"id=$1",
		fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")),
	}
	// Marker fields are once-only: a transition that sets one requires it
	// to still be unset, so the caller that wins the swap is the only one
	// that observes success.
	if mut.ResponseBreached != nil {
		conditions = append(conditions, "NOT response_breached")
	}
	if mut.ResolutionBreached != nil {
		conditions = append(conditions, "NOT resolution_breached")
	}
	if mut.WarnedAt != nil {
		conditions = append(conditions, "warned_at IS NULL")
	}

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), strings.Join(conditions, " AND "), ticketColumns)

	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// No row matched: missing ticket, status precondition lost, or a
	// marker was already set.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &StateConflictError{TicketID: id, Current: current.Status}
}

func (r *ticketRepository) Distributions(ctx context.Context) (TicketDistributions, error) {
	const query = `SELECT status, priority, category, COUNT(*) FROM tickets GROUP BY status, priority, category`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return TicketDistributions{}, err
	}
	defer rows.Close()

	dist := TicketDistributions{
		ByStatus:   make(map[domain.TicketStatus]int),
		ByPriority: make(map[domain.TicketPriority]int),
		ByCategory: make(map[domain.Category]int),
	}
	for rows.Next() {
		var status domain.TicketStatus
		var priority domain.TicketPriority
		var category domain.Category
		var count int
		if err := rows.Scan(&status, &priority, &category, &count); err != nil {
			return TicketDistributions{}, err
		}
		dist.Total += count
		dist.ByStatus[status] += count
		dist.ByPriority[priority] += count
		dist.ByCategory[category] += count
	}
	return dist, rows.Err()
}

func (r *ticketRepository) SLACounts(ctx context.Context) (SLACounts, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status IN ($1,$2)),
               COUNT(*) FILTER (WHERE response_breached OR resolution_breached),
               COUNT(*) FILTER (WHERE warned_at IS NOT NULL
                                  AND NOT response_breached AND NOT resolution_breached
                                  AND status NOT IN ($1,$2))
        FROM tickets`
	var counts SLACounts
	if err := r.pool.QueryRow(ctx, query, domain.TicketStatusAutoResolved, domain.TicketStatusResolved).Scan(
		&counts.Total,
		&counts.Resolved,
		&counts.Breached,
		&counts.AtRisk,
	); err != nil {
		return SLACounts{}, err
	}
	counts.OnTrack = counts.Total - counts.Breached - counts.AtRisk
	return counts, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Fingerprint,
		&ticket.Sender,
		&ticket.Subject,
		&ticket.Body,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AssignedTeam,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResponseDueAt,
		&ticket.ResolutionDueAt,
		&ticket.FirstRespondedAt,
		&ticket.ResolvedAt,
		&ticket.ResolutionNote,
		&ticket.EscalatedAt,
		&ticket.ResponseBreached,
		&ticket.ResolutionBreached,
		&ticket.WarnedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
