package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Resetter restores paid balances to their daily allotment.
type Resetter interface {
	ResetAllTiers(ctx context.Context) (map[string]int, error)
}

// Alerter receives the sweep summary.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Scheduler runs the daily allotment reset at a fixed wall-clock time in a
// fixed zone. Runs missed while the process is down are not replayed.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
	log      *slog.Logger
	resetter Resetter
	alerts   Alerter
	timeout  time.Duration
}

func New(log *slog.Logger, resetter Resetter, alerts Alerter, spec, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", spec, err)
	}

	logger := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: schedule,
		loc:      loc,
		log:      log,
		resetter: resetter,
		alerts:   alerts,
		timeout:  30 * time.Minute,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.runJob))
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("reset scheduler started", "timezone", s.loc.String(), "next_run", s.NextRun(time.Now()))
}

// Stop halts the schedule and waits for a running sweep until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for reset job: %w", ctx.Err())
	}
}

// NextRun returns the first trigger strictly after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunReset(ctx)
}

// RunReset performs one sweep and reports the outcome.
func (s *Scheduler) RunReset(ctx context.Context) {
	start := time.Now()
	s.log.Info("running daily credit reset job")

	counts, err := s.resetter.ResetAllTiers(ctx)
	if err != nil {
		s.log.Error("daily credit reset incomplete", "err", err, "counts", counts)
	} else {
		s.log.Info("daily credit reset job finished", "counts", counts, "duration", time.Since(start).String())
	}

	if s.alerts == nil {
		return
	}
	if aerr := s.alerts.Alert(ctx, summary(start.In(s.loc), counts, err)); aerr != nil {
		s.log.Error("send reset summary", "err", aerr)
	}
}

func summary(at time.Time, counts map[string]int, err error) string {
	plans := make([]string, 0, len(counts))
	for plan := range counts {
		plans = append(plans, plan)
	}
	sort.Strings(plans)

	var b strings.Builder
	fmt.Fprintf(&b, "Daily credit reset %s\n", at.Format("2006-01-02 15:04 MST"))
	for _, plan := range plans {
		fmt.Fprintf(&b, "%s: %d accounts\n", plan, counts[plan])
	}
	if err != nil {
		fmt.Fprintf(&b, "Errors: %v\n", err)
	}
	return strings.TrimRight(b.String(), "\n")
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
