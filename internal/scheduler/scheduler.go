package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers the periodic source refresh on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	entryID  cron.EntryID
	location *time.Location
}

// New creates a Scheduler in the given timezone. An overlapping run is
// skipped rather than queued.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	logger := slogLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:     c,
		location: loc,
	}, nil
}

// Schedule runs task on spec, a standard five-field cron expression or a
// descriptor such as "@hourly". A previous schedule is replaced.
func (s *Scheduler) Schedule(spec string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	entryID, err := s.cron.AddFunc(spec, task)
	if err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}

	s.entryID = entryID
	slog.Info("refresh scheduled", "cron", spec, "timezone", s.location.String())
	return nil
}

// Next returns the next scheduled run, or the zero time when nothing is
// scheduled or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// slogLogger adapts cron's logger to the process slog logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
