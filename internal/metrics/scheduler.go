package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Veraticus/statement-flow/internal/common"
)

// Scheduler re-aggregates the previous day for every active owner on a cron
// schedule.
type Scheduler struct {
	aggregator *Aggregator
	cron       *cron.Cron
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewScheduler registers the rollup job. timezone decides what "yesterday"
// means and when the schedule fires.
func NewScheduler(aggregator *Aggregator, schedule, timezone string, logger *slog.Logger) (*Scheduler, error) {
	logger = common.LoggerOrDefault(logger)

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("Invalid timezone, falling back to UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}

	s := &Scheduler{
		aggregator: aggregator,
		cron:       cron.New(cron.WithLocation(loc)),
		logger:     logger,
		loc:        loc,
		now:        time.Now,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("unable to schedule metrics rollup %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Metrics scheduler started", "timezone", s.loc.String())
}

// Stop halts the schedule and waits for a running job.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next reports when the job fires next.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Metrics rollup failed", "error", err)
	}
}

// RunOnce aggregates yesterday, in the scheduler's timezone, for every
// owner with activity.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	local := s.now().In(s.loc)
	yesterday := time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, time.UTC)

	start := time.Now()
	n, err := s.aggregator.AggregateDay(ctx, yesterday)
	if err != nil {
		return n, err
	}
	s.logger.Info("Metrics rollup complete",
		"day", yesterday.Format(time.DateOnly),
		"owners", n,
		"duration", time.Since(start))
	return n, nil
}
