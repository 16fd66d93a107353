package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/output"
)

var (
	calFrom string
	calTo   string
	calDays int
)

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	Aliases: []string{"cal", "agenda"},
	Short:   "Show event occurrences in a date range",
	Long: `Show every occurrence of every event between --from and --to.

--from defaults to today; --to defaults to --days after --from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nb, err := getNotebook()
		if err != nil {
			return err
		}
		loc, err := location()
		if err != nil {
			return err
		}

		from := models.DateOf(time.Now().In(loc))
		if calFrom != "" {
			if from, err = models.ParseDateTime(calFrom, loc); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
		}
		to := from.AddDate(0, 0, calDays)
		if calTo != "" {
			if to, err = models.ParseDateTime(calTo, loc); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}
		return calendarRun(cmd.Context(), nb, from, to)
	},
}

func init() {
	calendarCmd.Flags().StringVar(&calFrom, "from", "", "First day (default today)")
	calendarCmd.Flags().StringVar(&calTo, "to", "", "Last day")
	calendarCmd.Flags().IntVarP(&calDays, "days", "d", 7, "Days to show when --to is not set")
	rootCmd.AddCommand(calendarCmd)
}

func calendarRun(ctx context.Context, nb *notebook.Notebook, from, to time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if to.Before(from) {
		return fmt.Errorf("range ends %s before it starts %s",
			to.Format(models.DateLayout), from.Format(models.DateLayout))
	}

	occ, err := nb.Agenda(ctx, from, to)
	if err != nil {
		// Occurrences of the valid events are still shown.
		ui.Warning("%v", err)
	}

	fmt.Fprintf(ui.Out, "Calendar %s to %s\n", from.Format(models.DateLayout), to.Format(models.DateLayout))
	if len(occ) == 0 {
		ui.Info("Nothing scheduled.")
		return nil
	}

	table := ui.Table([]string{"Date", "Time", "Event", "Repeats", "Tags"})
	for _, o := range occ {
		start := o.Start()
		clock := ""
		if h, m, _ := start.Clock(); h != 0 || m != 0 {
			clock = start.Format("15:04")
		}
		_ = table.Append([]string{
			start.Format("Mon 2006-01-02"),
			clock,
			output.Cyan(o.Event.Title),
			o.Event.Cadence,
			output.Tags(o.Event.Tags),
		})
	}
	_ = table.Render()
	return nil
}
