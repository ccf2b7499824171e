package repository

import (
	"errors"
	"fmt"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// ErrNotFound signals a missing ticket.
var ErrNotFound = errors.New("ticket not found")

// ErrDuplicateFingerprint signals an ingestion replay of an already stored message.
var ErrDuplicateFingerprint = errors.New("duplicate message fingerprint")

// StateConflictError reports a guarded transition that lost its precondition.
type StateConflictError struct {
	TicketID string
	Current  domain.TicketStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("ticket %s is in state %s", e.TicketID, e.Current)
}

// IsStateConflict extracts a StateConflictError if err carries one.
func IsStateConflict(err error) (*StateConflictError, bool) {
	var conflict *StateConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
