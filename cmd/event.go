package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/output"
)

var (
	eventStart     string
	eventEnd       string
	eventCadence   string
	eventRemind    string
	eventTags      string
	eventTagColor  string
	eventFilterTag []string
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage calendar events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventListRun()
	},
}

var eventAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add an event",
	Long: `Add a calendar event.

Dates are YYYY-MM-DD or "YYYY-MM-DD HH:MM" in reminder.timezone.
--cadence is none, daily, weekly, monthly, yearly, or an RFC 5545 rule
prefixed with "RRULE:". --remind lists offsets before each occurrence,
e.g. "1d,1w,1m".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventAddRun(args[0])
	},
}

var eventListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventListRun()
	},
}

var eventRmCmd = &cobra.Command{
	Use:     "rm <event>",
	Aliases: []string{"delete"},
	Short:   "Delete an event",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventRmRun(args[0])
	},
}

func init() {
	eventAddCmd.Flags().StringVarP(&eventStart, "start", "s", "", "Start date (required)")
	eventAddCmd.Flags().StringVarP(&eventEnd, "end", "e", "", "End date")
	eventAddCmd.Flags().StringVar(&eventCadence, "cadence", "none", "Repeat rule")
	eventAddCmd.Flags().StringVarP(&eventRemind, "remind", "r", "", "Reminder offsets, e.g. 1d,2w,1m")
	eventAddCmd.Flags().StringVarP(&eventTags, "tags", "t", "", "Comma separated tags")
	eventAddCmd.Flags().StringVarP(&eventTagColor, "color", "c", "", "Color for new tags")
	_ = eventAddCmd.MarkFlagRequired("start")

	eventListCmd.Flags().StringSliceVarP(&eventFilterTag, "tag", "t", nil, "Only events carrying these tags")

	eventCmd.AddCommand(eventAddCmd)
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(eventRmCmd)
	rootCmd.AddCommand(eventCmd)
}

// parseReminders parses a comma separated reminder list into ev.
func parseReminders(ev *models.Event, list string) error {
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		unit, n, err := models.ParseReminder(part)
		if err != nil {
			return err
		}
		ev.AddReminder(unit, n)
	}
	ev.Remind = len(ev.Reminders) > 0
	return nil
}

func eventAddRun(title string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	loc, err := location()
	if err != nil {
		return err
	}

	start, err := models.ParseDateTime(eventStart, loc)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	ev := &models.Event{
		Title:   title,
		Start:   start,
		Cadence: eventCadence,
	}
	if eventEnd != "" {
		end, err := models.ParseDateTime(eventEnd, loc)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		ev.End = &end
	}
	if err := parseReminders(ev, eventRemind); err != nil {
		return fmt.Errorf("--remind: %w", err)
	}
	ev.Tags = models.ParseTags(eventTags, eventTagColor)

	if dryRun {
		ui.DryRunMsg("Would add event %q on %s", title, start.Format(models.DateTimeLayout))
		return nil
	}

	if err := nb.AddEvent(context.Background(), ev); err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	ui.Success("Added event %s on %s (%s) %s",
		output.Cyan(ev.Title), ev.Start.Format(models.DateTimeLayout), ev.Cadence, output.Tags(ev.Tags))
	ui.VerboseLog("ID: %s", ev.ID)
	return nil
}

func eventListRun() error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	events := nb.ListEvents(context.Background(), eventFilterTag)
	if len(events) == 0 {
		ui.Info("No events. Use 'notus event add <title> --start <date>' to add one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Start", "Repeats", "Reminders", "Tags"})
	for _, ev := range events {
		reminders := ""
		if ev.Remind {
			reminders = models.FormatReminders(ev.Reminders)
		}
		_ = table.Append([]string{
			ev.ID,
			output.Cyan(ev.Title),
			ev.Start.Format(models.DateTimeLayout),
			ev.Cadence,
			reminders,
			output.Tags(ev.Tags),
		})
	}
	_ = table.Render()
	return nil
}

func eventRmRun(ref string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		ev, err := nb.GetEvent(ctx, ref)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would delete event %q", ev.Title)
		return nil
	}

	ev, err := nb.DeleteEvent(ctx, ref)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	ui.Success("Deleted event %s", ev.Title)
	return nil
}
