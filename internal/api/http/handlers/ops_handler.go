package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk-io/servicedesk/internal/api/dto"
	"github.com/opsdesk-io/servicedesk/internal/observability"
	"github.com/opsdesk-io/servicedesk/internal/scheduler"
	"github.com/opsdesk-io/servicedesk/internal/service"
)

// RuntimeInfo captures the adapter posture reported by the status endpoint.
type RuntimeInfo struct {
	App              string
	DemoMode         bool
	Source           string
	SmtpConfigured   bool
	KafkaEnabled     bool
	SchedulerEnabled bool
}

// OpsHandler serves operational endpoints: manual ingestion and sweep
// triggers, SLA reporting, and runtime status.
type OpsHandler struct {
	info      RuntimeInfo
	ingestion *service.IngestionService
	sla       *service.SlaService
	teams     *service.TeamDirectory
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics
}

// NewOpsHandler constructs handler. The scheduler may be nil when interval
// jobs are disabled.
func NewOpsHandler(info RuntimeInfo, ingestion *service.IngestionService, sla *service.SlaService, teams *service.TeamDirectory, sched *scheduler.Scheduler, metrics *observability.Metrics) *OpsHandler {
	return &OpsHandler{
		info:      info,
		ingestion: ingestion,
		sla:       sla,
		teams:     teams,
		scheduler: sched,
		metrics:   metrics,
	}
}

// RunIngest POST /ingest/run.
func (h *OpsHandler) RunIngest(c *fiber.Ctx) error {
	report, err := h.ingestion.Run(c.Context(), time.Now().UTC())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ingestReportResponse(report)})
}

// RunSweep POST /sla/sweep. An optional now query parameter (RFC 3339)
// evaluates deadlines against a different instant, which is how operators
// preview upcoming breaches.
func (h *OpsHandler) RunSweep(c *fiber.Ctx) error {
	now := time.Now().UTC()
	if at := parseTime(c.Query("now")); at != nil {
		now = at.UTC()
	}
	report, err := h.sla.Sweep(c.Context(), now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sweepReportResponse(report)})
}

// GetSlaSummary GET /sla/summary.
func (h *OpsHandler) GetSlaSummary(c *fiber.Ctx) error {
	summary, err := h.sla.Summary(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaSummaryResponse(summary)})
}

// ListTeams GET /teams.
func (h *OpsHandler) ListTeams(c *fiber.Ctx) error {
	teams := h.teams.Teams()
	items := make([]dto.TeamResponse, 0, len(teams))
	for _, team := range teams {
		items = append(items, dto.TeamResponse{Name: team.Name, Email: team.Email})
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetStatus GET /status.
func (h *OpsHandler) GetStatus(c *fiber.Ctx) error {
	resp := dto.StatusResponse{
		App:              h.info.App,
		DemoMode:         h.info.DemoMode,
		Source:           h.info.Source,
		SmtpConfigured:   h.info.SmtpConfigured,
		KafkaEnabled:     h.info.KafkaEnabled,
		SchedulerEnabled: h.info.SchedulerEnabled,
		Scheduler:        []dto.JobStatusResponse{},
	}
	if h.scheduler != nil {
		for _, job := range h.scheduler.Status() {
			resp.Scheduler = append(resp.Scheduler, jobStatusResponse(job))
		}
	}
	resp.Requests, resp.Errors = h.metrics.Snapshot()
	return c.JSON(fiber.Map{"data": resp})
}

func ingestReportResponse(report *service.IngestReport) dto.IngestReportResponse {
	failures := make([]dto.IngestFailureResponse, 0, len(report.Failures))
	for _, failure := range report.Failures {
		failures = append(failures, dto.IngestFailureResponse{
			Fingerprint: failure.Fingerprint,
			Sender:      failure.Sender,
			Subject:     failure.Subject,
			Reason:      failure.Reason,
		})
	}
	ticketIDs := report.TicketIDs
	if ticketIDs == nil {
		ticketIDs = []string{}
	}
	return dto.IngestReportResponse{
		Source:     report.Source,
		Fetched:    report.Fetched,
		Created:    report.Created,
		Duplicates: report.Duplicates,
		Failed:     report.Failed,
		TicketIDs:  ticketIDs,
		Failures:   failures,
	}
}

func slaSummaryResponse(summary service.SlaSummary) dto.SlaSummaryResponse {
	return dto.SlaSummaryResponse{
		Total:          summary.Total,
		Resolved:       summary.Resolved,
		Breached:       summary.Breached,
		AtRisk:         summary.AtRisk,
		OnTrack:        summary.OnTrack,
		ComplianceRate: summary.ComplianceRate,
	}
}

func sweepReportResponse(report *service.SweepReport) dto.SweepReportResponse {
	failures := make([]dto.SweepFailureResponse, 0, len(report.Failures))
	for _, failure := range report.Failures {
		failures = append(failures, dto.SweepFailureResponse{
			TicketID: failure.TicketID,
			Reason:   failure.Reason,
		})
	}
	return dto.SweepReportResponse{
		Checked:            report.Checked,
		Warnings:           report.Warnings,
		ResponseBreaches:   report.ResponseBreaches,
		ResolutionBreaches: report.ResolutionBreaches,
		Escalated:          report.Escalated,
		Failed:             report.Failed,
		Failures:           failures,
		DurationMS:         report.Duration.Milliseconds(),
	}
}

func jobStatusResponse(job scheduler.JobStatus) dto.JobStatusResponse {
	resp := dto.JobStatusResponse{
		Name:            job.Name,
		IntervalSeconds: int(job.Interval / time.Second),
		Runs:            job.Runs,
		Failures:        job.Failures,
		LastError:       job.LastError,
	}
	if !job.LastRun.IsZero() {
		lastRun := job.LastRun
		resp.LastRun = &lastRun
	}
	if !job.NextRun.IsZero() {
		nextRun := job.NextRun
		resp.NextRun = &nextRun
	}
	return resp
}
