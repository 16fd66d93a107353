package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/daemon"
	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/output"
	"github.com/joescharf/notus/internal/recurrence"
	"github.com/joescharf/notus/internal/reminder"
	"github.com/joescharf/notus/internal/store"
)

var (
	remindDay      string
	remindWatch    bool
	remindInterval time.Duration
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Show the reminders due on a day",
	Long: `Show the reminders due today, or on --day.

With --watch, notus keeps running and prints each day's reminders at
reminder.check_at. Only one watcher runs at a time; stop it with
'notus remind stop'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if remindWatch {
			return remindWatchRun()
		}

		nb, err := getNotebook()
		if err != nil {
			return err
		}
		loc, err := location()
		if err != nil {
			return err
		}
		day := time.Now().In(loc)
		if remindDay != "" {
			if day, err = models.ParseDateTime(remindDay, loc); err != nil {
				return fmt.Errorf("--day: %w", err)
			}
		}
		return remindRun(cmd.Context(), nb, day)
	},
}

var remindStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running reminder watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		lock := daemon.NewLock(remindLockPath())
		if dryRun {
			if pid, alive := lock.Holder(); alive {
				ui.DryRunMsg("Would stop reminder watcher (pid %d)", pid)
			}
			return nil
		}
		pid, err := lock.Stop()
		if errors.Is(err, daemon.ErrNotRunning) {
			ui.Info("No reminder watcher is running.")
			return nil
		}
		if err != nil {
			return err
		}
		ui.Success("Stopped reminder watcher (pid %d)", pid)
		return nil
	},
}

func init() {
	remindCmd.Flags().StringVar(&remindDay, "day", "", "Day to check (default today)")
	remindCmd.Flags().BoolVarP(&remindWatch, "watch", "w", false, "Keep running and notify reminders every day")
	remindCmd.Flags().DurationVar(&remindInterval, "interval", 15*time.Minute, "Catch-up check interval while watching")
	remindCmd.AddCommand(remindStopCmd)
	rootCmd.AddCommand(remindCmd)
}

func remindLockPath() string {
	return filepath.Join(viper.GetString("state_dir"), "remind.pid")
}

func remindRun(ctx context.Context, nb *notebook.Notebook, day time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	due, err := nb.Reminders(ctx, day)
	if err != nil {
		ui.Warning("%v", err)
	}
	printReminders(models.DateOf(day), due)
	return nil
}

func printReminders(day time.Time, due []recurrence.Reminder) {
	fmt.Fprintf(ui.Out, "Reminders for %s\n", day.Format("Mon 2006-01-02"))
	if len(due) == 0 {
		ui.Info("No reminders.")
		return
	}

	table := ui.Table([]string{"Event", "On", "In", "Tags"})
	for _, r := range due {
		start := r.Start()
		days := int(models.DateOf(start).Sub(day).Hours()+12) / 24
		in := "today"
		switch {
		case days == 1:
			in = "tomorrow"
		case days > 1:
			in = fmt.Sprintf("%d days", days)
		}
		_ = table.Append([]string{
			output.Cyan(r.Event.Title),
			start.Format(models.DateTimeLayout),
			in,
			output.Tags(r.Event.Tags),
		})
	}
	_ = table.Render()
}

// storeSource reloads the notebook on every check so events added by
// other notus commands while the watcher runs are seen.
type storeSource struct {
	store store.Store
	log   *zap.Logger
}

func (s storeSource) Reminders(ctx context.Context, day time.Time) ([]recurrence.Reminder, error) {
	nb := notebook.New(s.store, s.log)
	if err := nb.Open(ctx); err != nil {
		return nil, fmt.Errorf("load notebook: %w", err)
	}
	return nb.Reminders(ctx, day)
}

func remindWatchRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	loc, err := location()
	if err != nil {
		return err
	}

	lock := daemon.NewLock(remindLockPath())
	if dryRun {
		ui.DryRunMsg("Would watch reminders daily at %s", viper.GetString("reminder.check_at"))
		return nil
	}
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notify := reminder.NotifierFunc(func(_ context.Context, day time.Time, due []recurrence.Reminder) error {
		printReminders(day, due)
		return nil
	})
	sched := reminder.NewScheduler(storeSource{store: s, log: logger}, notify, logger, loc)

	// Also gates the startup and interval checks to check_at or later.
	checkAt := viper.GetString("reminder.check_at")
	if _, err := sched.ScheduleDaily(ctx, checkAt); err != nil {
		return fmt.Errorf("reminder.check_at: %w", err)
	}
	if _, err := sched.ScheduleInterval(ctx, remindInterval); err != nil {
		return fmt.Errorf("--interval: %w", err)
	}

	ui.Success("Watching reminders daily at %s (pid %d)", checkAt, os.Getpid())
	if _, err := sched.Check(ctx); err != nil {
		ui.Warning("%v", err)
	}
	sched.Start()
	<-ctx.Done()
	sched.Stop()
	ui.Info("Reminder watcher stopped.")
	return nil
}
