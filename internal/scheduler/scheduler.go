package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc runs one cycle of periodic work at the supplied wall time.
type JobFunc func(ctx context.Context, now time.Time) error

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// JobStatus is a point-in-time snapshot of one job's bookkeeping.
type JobStatus struct {
	Name      string
	Interval  time.Duration
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError string
	NextRun   time.Time
}

// Scheduler drives registered jobs on fixed intervals. The wall clock is
// injectable so tests control the timestamps handed to jobs.
type Scheduler struct {
	logger *zap.Logger
	clock  func() time.Time

	mu     sync.Mutex
	jobs   []*jobState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type jobState struct {
	job    Job
	status JobStatus
}

// New constructs an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger, clock: time.Now}
}

// WithClock overrides the wall clock. Test hook.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// Register adds a job. Call before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &jobState{
		job:    job,
		status: JobStatus{Name: job.Name, Interval: job.Interval},
	})
}

// Start launches one goroutine per registered job. Each job runs once
// immediately and then on its interval until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	jobs := make([]*jobState, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, st := range jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, st)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, st *jobState) {
	defer s.wg.Done()

	s.execute(ctx, st)

	ticker := time.NewTicker(st.job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, st)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, st *jobState) {
	now := s.clock()
	err := st.job.Run(ctx, now)

	s.mu.Lock()
	st.status.Runs++
	st.status.LastRun = now
	st.status.NextRun = now.Add(st.job.Interval)
	if err != nil {
		st.status.Failures++
		st.status.LastError = err.Error()
	} else {
		st.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", st.job.Name), zap.Error(err))
	}
}

// Status reports a snapshot of every registered job.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, st.status)
	}
	return out
}
