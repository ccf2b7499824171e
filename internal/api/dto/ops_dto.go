package dto

import "time"

// IngestReportResponse summarizes one ingestion cycle.
type IngestReportResponse struct {
	Source     string                  `json:"source"`
	Fetched    int                     `json:"fetched"`
	Created    int                     `json:"created"`
	Duplicates int                     `json:"duplicates"`
	Failed     int                     `json:"failed"`
	TicketIDs  []string                `json:"ticket_ids"`
	Failures   []IngestFailureResponse `json:"failures,omitempty"`
}

// IngestFailureResponse describes one message that produced no ticket.
type IngestFailureResponse struct {
	Fingerprint string `json:"fingerprint"`
	Sender      string `json:"sender"`
	Subject     string `json:"subject"`
	Reason      string `json:"reason"`
}

// SweepReportResponse summarizes one SLA sweep.
type SweepReportResponse struct {
	Checked            int                    `json:"checked"`
	Warnings           int                    `json:"warnings"`
	ResponseBreaches   int                    `json:"response_breaches"`
	ResolutionBreaches int                    `json:"resolution_breaches"`
	Escalated          int                    `json:"escalated"`
	Failed             int                    `json:"failed"`
	Failures           []SweepFailureResponse `json:"failures,omitempty"`
	DurationMS         int64                  `json:"duration_ms"`
}

// SweepFailureResponse describes one ticket the sweep could not update.
type SweepFailureResponse struct {
	TicketID string `json:"ticket_id"`
	Reason   string `json:"reason"`
}

// SlaSummaryResponse reports compliance across the ticket population.
type SlaSummaryResponse struct {
	Total          int     `json:"total"`
	Resolved       int     `json:"resolved"`
	Breached       int     `json:"breached"`
	AtRisk         int     `json:"at_risk"`
	OnTrack        int     `json:"on_track"`
	ComplianceRate float64 `json:"compliance_rate"`
}

// TeamResponse describes a routing target.
type TeamResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// JobStatusResponse reports one scheduler job.
type JobStatusResponse struct {
	Name            string     `json:"name"`
	IntervalSeconds int        `json:"interval_seconds"`
	Runs            int        `json:"runs"`
	Failures        int        `json:"failures"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

// StatusResponse reports service runtime state and adapter posture.
type StatusResponse struct {
	App              string              `json:"app"`
	DemoMode         bool                `json:"demo_mode"`
	Source           string              `json:"source"`
	SmtpConfigured   bool                `json:"smtp_configured"`
	KafkaEnabled     bool                `json:"kafka_enabled"`
	SchedulerEnabled bool                `json:"scheduler_enabled"`
	Scheduler        []JobStatusResponse `json:"scheduler"`
	Requests         map[string]int64    `json:"requests"`
	Errors           map[string]int64    `json:"errors"`
}
