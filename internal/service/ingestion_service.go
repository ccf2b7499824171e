package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/classifier"
	"github.com/opsdesk-io/servicedesk/internal/domain"
	"github.com/opsdesk-io/servicedesk/internal/repository"
)

// Source yields inbound messages awaiting ticket creation.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.InboundMessage, error)
}

// Deduper is a fast-path cache in front of the store's unique fingerprint
// index. Seen records the fingerprint and reports whether it was already
// recorded; Forget releases it so a failed message stays retryable.
type Deduper interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
	Forget(ctx context.Context, fingerprint string) error
}

// IngestFailure records one message that could not be ingested.
type IngestFailure struct {
	Fingerprint string
	Sender      string
	Subject     string
	Reason      string
}

// IngestReport summarizes one ingestion cycle.
type IngestReport struct {
	Source     string
	Fetched    int
	Created    int
	Duplicates int
	Failed     int
	TicketIDs  []string
	Failures   []IngestFailure
}

// IngestionService drives the fetch, classify, create pipeline.
type IngestionService struct {
	source     Source
	classifier *classifier.Classifier
	lifecycle  *LifecycleService
	deduper    Deduper
	logger     *zap.Logger
}

// IngestionDependencies bundles collaborators for the ingestion service.
type IngestionDependencies struct {
	Source     Source
	Classifier *classifier.Classifier
	Lifecycle  *LifecycleService
	Deduper    Deduper
	Logger     *zap.Logger
}

// NewIngestionService constructs the service.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		source:     deps.Source,
		classifier: deps.Classifier,
		lifecycle:  deps.Lifecycle,
		deduper:    deps.Deduper,
		logger:     logger,
	}
}

// SourceName identifies the configured message source.
func (s *IngestionService) SourceName() string {
	return s.source.Name()
}

// Run executes one ingestion cycle: fetch pending messages, classify each
// one and open tickets. Already processed messages count as duplicates and
// failures are isolated per message, so one bad message never aborts the
// cycle. Running the same batch twice creates each ticket exactly once.
func (s *IngestionService) Run(ctx context.Context, now time.Time) (*IngestReport, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	report := &IngestReport{Source: s.source.Name()}

	messages, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", s.source.Name(), err)
	}
	report.Fetched = len(messages)

	for _, msg := range messages {
		fingerprint := msg.Fingerprint()

		if s.deduper != nil {
			seen, seenErr := s.deduper.Seen(ctx, fingerprint)
			if seenErr != nil {
				s.logger.Warn("dedup cache unavailable", zap.Error(seenErr))
			} else if seen {
				report.Duplicates++
				continue
			}
		}

		result := s.classifier.Classify(msg)
		ticket, err := s.lifecycle.CreateFromMessage(ctx, TicketIntakeInput{
			Message:  msg,
			Category: result.Category,
			Priority: result.Priority,
			Fallback: result.Fallback,
			Now:      now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateFingerprint) {
				report.Duplicates++
				continue
			}
			if s.deduper != nil {
				// release the fingerprint so the message is retried next cycle
				if forgetErr := s.deduper.Forget(ctx, fingerprint); forgetErr != nil {
					s.logger.Warn("dedup release failed", zap.String("fingerprint", fingerprint), zap.Error(forgetErr))
				}
			}
			report.Failed++
			report.Failures = append(report.Failures, IngestFailure{
				Fingerprint: fingerprint,
				Sender:      msg.Sender,
				Subject:     msg.Subject,
				Reason:      err.Error(),
			})
			s.logger.Error("ingest message failed",
				zap.String("fingerprint", fingerprint),
				zap.String("sender", msg.Sender),
				zap.Error(err))
			continue
		}

		report.Created++
		report.TicketIDs = append(report.TicketIDs, ticket.ID)
	}

	s.logger.Info("ingestion cycle complete",
		zap.String("source", report.Source),
		zap.Int("fetched", report.Fetched),
		zap.Int("created", report.Created),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed))
	return report, nil
}
