package domain

import (
	"fmt"
	"time"
)

// SlaWindows holds the response and resolution targets for one priority.
type SlaWindows struct {
	Response   time.Duration
	Resolution time.Duration
}

// SlaPolicy maps priorities to deadline windows plus the warning threshold.
type SlaPolicy struct {
	Windows map[TicketPriority]SlaWindows
	// WarningThreshold is the fraction of the resolution window that must
	// elapse before an at-risk warning fires.
	WarningThreshold float64
}

// DefaultSlaPolicy mirrors the stock helpdesk targets.
func DefaultSlaPolicy() SlaPolicy {
	return SlaPolicy{
		Windows: map[TicketPriority]SlaWindows{
			TicketPriorityHigh:   {Response: 1 * time.Hour, Resolution: 4 * time.Hour},
			TicketPriorityMedium: {Response: 4 * time.Hour, Resolution: 24 * time.Hour},
			TicketPriorityLow:    {Response: 24 * time.Hour, Resolution: 72 * time.Hour},
		},
		WarningThreshold: 0.8,
	}
}

// Validate ensures every priority carries windows and response precedes resolution.
func (p SlaPolicy) Validate() error {
	for _, priority := range []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh} {
		windows, ok := p.Windows[priority]
		if !ok {
			return fmt.Errorf("sla policy missing windows for %s", priority)
		}
		if windows.Response <= 0 || windows.Resolution <= 0 {
			return fmt.Errorf("sla windows for %s must be positive", priority)
		}
		if windows.Response >= windows.Resolution {
			return fmt.Errorf("sla response window for %s must precede resolution window", priority)
		}
	}
	if p.WarningThreshold <= 0 || p.WarningThreshold >= 1 {
		return fmt.Errorf("sla warning threshold must be inside (0,1), got %v", p.WarningThreshold)
	}
	return nil
}

// ResponseDue computes the response deadline for a ticket opened at from.
func (p SlaPolicy) ResponseDue(priority TicketPriority, from time.Time) time.Time {
	return from.Add(p.Windows[priority].Response)
}

// ResolutionDue computes the resolution deadline for a ticket opened at from.
func (p SlaPolicy) ResolutionDue(priority TicketPriority, from time.Time) time.Time {
	return from.Add(p.Windows[priority].Resolution)
}

// WarningAt returns the instant an open ticket becomes at risk.
func (p SlaPolicy) WarningAt(created, resolutionDue time.Time) time.Time {
	window := resolutionDue.Sub(created)
	return created.Add(time.Duration(float64(window) * p.WarningThreshold))
}

// MaxWarningLookahead bounds how far before its resolution deadline any
// ticket can reach its warning instant. Sweeps widen their deadline scan by
// this much so upcoming warnings are not missed.
func (p SlaPolicy) MaxWarningLookahead() time.Duration {
	var maxLead time.Duration
	for _, windows := range p.Windows {
		lead := time.Duration(float64(windows.Resolution) * (1 - p.WarningThreshold))
		if lead > maxLead {
			maxLead = lead
		}
	}
	return maxLead
}
