// Package digest periodically logs an agenda summary: the next upcoming
// events and the days whose overlap badge is lit.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"schedcal/internal/datekey"
	"schedcal/internal/index"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

const defaultLimit = 5

// EventSource yields the events of the current snapshot. agenda.Store
// satisfies it.
type EventSource interface {
	Events() []model.Event
}

// Report is one digest.
type Report struct {
	Today    datekey.Key
	Upcoming []model.Event
	// BusyDays are days from Today on whose badge check reports an overlap.
	BusyDays []datekey.Key
}

// Compose builds the report for today from a snapshot.
func Compose(events []model.Event, today datekey.Key, limit int) (Report, error) {
	rep := Report{Today: today}

	upcoming, err := index.Upcoming(events, today, limit)
	if err != nil {
		return rep, fmt.Errorf("digest.Compose: %w", err)
	}
	rep.Upcoming = upcoming

	idx, err := index.Build(events)
	if err != nil {
		return rep, fmt.Errorf("digest.Compose: %w", err)
	}
	for _, key := range idx.Keys() {
		if key.Before(today) {
			continue
		}
		busy, err := index.HasConflictWithinDay(idx.Day(key))
		if err != nil {
			return rep, fmt.Errorf("digest.Compose: %w", err)
		}
		if busy {
			rep.BusyDays = append(rep.BusyDays, key)
		}
	}
	return rep, nil
}

// Config controls a Scheduler.
type Config struct {
	// Spec is a standard 5-field cron expression.
	Spec string
	// Location decides both the cron clock and "today". Nil means UTC.
	Location *time.Location
	// Limit caps the upcoming list. Zero means defaultLimit.
	Limit int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Scheduler runs Compose on a cron schedule and logs the result.
type Scheduler struct {
	cfg    Config
	source EventSource
	cron   *cron.Cron
}

// New validates the schedule and registers the digest job.
func New(cfg Config, source EventSource) (*Scheduler, error) {
	if source == nil {
		return nil, errors.New("digest: nil event source")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{
		cfg:    cfg,
		source: source,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger{}),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("digest: schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	appLog.Info("digest scheduler started", "spec", s.cfg.Spec, "timezone", s.cfg.Location.String())
	s.cron.Start()

	<-ctx.Done()

	<-s.cron.Stop().Done()
	appLog.Info("digest scheduler stopped")
	return nil
}

// RunOnce composes and logs a digest immediately.
func (s *Scheduler) RunOnce() (Report, error) {
	today := datekey.FromTime(s.cfg.Now().In(s.cfg.Location))

	rep, err := Compose(s.source.Events(), today, s.cfg.Limit)
	if err != nil {
		appLog.Error("digest failed", err, "today", today)
		return rep, err
	}

	for _, ev := range rep.Upcoming {
		appLog.Info("digest upcoming",
			"date", ev.Date,
			"start", ev.StartTime,
			"end", ev.EndTime,
			"title", ev.Title,
			"category", ev.Category,
		)
	}
	busy := make([]string, len(rep.BusyDays))
	for i, k := range rep.BusyDays {
		busy[i] = k.String()
	}
	appLog.Info("digest completed",
		"today", today,
		"upcoming", len(rep.Upcoming),
		"busy_days", busy,
	)
	return rep, nil
}

func (s *Scheduler) tick() {
	_, _ = s.RunOnce()
}

// cronLogger routes cron's own diagnostics through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
