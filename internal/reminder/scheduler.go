// Package reminder runs the daily reminder check on a cron schedule.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/recurrence"
)

// Source yields the reminders firing on a day.
type Source interface {
	Reminders(ctx context.Context, day time.Time) ([]recurrence.Reminder, error)
}

// Notifier delivers the reminders of a day.
type Notifier interface {
	Notify(ctx context.Context, day time.Time, due []recurrence.Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, day time.Time, due []recurrence.Reminder) error

func (f NotifierFunc) Notify(ctx context.Context, day time.Time, due []recurrence.Reminder) error {
	return f(ctx, day, due)
}

// Scheduler wraps cron jobs that check for due reminders. Each day is
// notified at most once per Scheduler, and not before the daily check time.
type Scheduler struct {
	cron   *cron.Cron
	src    Source
	notify Notifier
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time

	mu       sync.Mutex
	notified map[string]bool
	// checkHour and checkMinute are the earliest time of day a check notifies.
	checkHour   int
	checkMinute int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the clock used to decide which day is today.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler running in loc. A nil loc means time.Local.
func NewScheduler(src Source, notify Notifier, log *zap.Logger, loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		src:      src,
		notify:   notify,
		log:      log.Named("reminder"),
		loc:      loc,
		now:      time.Now,
		notified: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleDaily checks for reminders every day at the given HH:MM time.
// Checks earlier in the day, from Check or ScheduleInterval, notify nothing.
func (s *Scheduler) ScheduleDaily(ctx context.Context, timeStr string) (cron.EntryID, error) {
	hour, minute, err := parseClock(timeStr)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.checkHour, s.checkMinute = hour, minute
	s.mu.Unlock()
	return s.cron.AddFunc(dailySpec(hour, minute), func() { s.run(ctx) })
}

// ScheduleInterval checks for reminders every interval. Days already
// notified and times before the daily check time are skipped, so this
// catches up after sleep or a late start.
func (s *Scheduler) ScheduleInterval(ctx context.Context, interval time.Duration) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), func() { s.run(ctx) })
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running checks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run(ctx context.Context) {
	if _, err := s.Check(ctx); err != nil {
		s.log.Error("reminder check failed", zap.Error(err))
	}
}

// Check notifies the reminders firing today, unless today was already
// notified or the daily check time has not been reached. It returns how
// many reminders were delivered.
func (s *Scheduler) Check(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	key := day.Format(time.DateOnly)

	s.mu.Lock()
	defer s.mu.Unlock()
	due := time.Date(now.Year(), now.Month(), now.Day(), s.checkHour, s.checkMinute, 0, 0, s.loc)
	if now.Before(due) {
		s.log.Debug("before check time", zap.String("day", key), zap.Time("check_at", due))
		return 0, nil
	}
	if s.notified[key] {
		s.log.Debug("already notified", zap.String("day", key))
		return 0, nil
	}

	reminders, err := s.src.Reminders(ctx, day)
	if err != nil && len(reminders) == 0 {
		return 0, err
	}
	if err != nil {
		s.log.Warn("some events were skipped", zap.Error(err))
	}

	if len(reminders) > 0 {
		if nerr := s.notify.Notify(ctx, day, reminders); nerr != nil {
			return 0, fmt.Errorf("notify %s: %w", key, nerr)
		}
	}
	s.notified[key] = true
	s.log.Info("checked reminders", zap.String("day", key), zap.Int("due", len(reminders)))
	return len(reminders), nil
}

func buildDailySpec(timeStr string) (string, error) {
	hour, minute, err := parseClock(timeStr)
	if err != nil {
		return "", err
	}
	return dailySpec(hour, minute), nil
}

// dailySpec is the cron spec (second minute hour dom month dow) for hour:minute.
func dailySpec(hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * *", minute, hour)
}

// parseClock parses an HH:MM time of day.
func parseClock(timeStr string) (hour, minute int, err error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", timeStr)
	}
	return hour, minute, nil
}
