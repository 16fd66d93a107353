package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/notus/internal/calexport"
	"github.com/joescharf/notus/internal/output"
)

var (
	exportOut string
	exportTag []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export events to other formats",
}

var exportICSCmd = &cobra.Command{
	Use:   "ics",
	Short: "Export events as an iCalendar (.ics) file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportICSRun()
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import events from other formats",
}

var importICSCmd = &cobra.Command{
	Use:   "ics <file>",
	Short: "Import the events of an iCalendar (.ics) file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importICSRun(args[0])
	},
}

func init() {
	exportICSCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stdout)")
	exportICSCmd.Flags().StringSliceVarP(&exportTag, "tag", "t", nil, "Only events carrying these tags")

	exportCmd.AddCommand(exportICSCmd)
	importCmd.AddCommand(importICSCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func exportICSRun() error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	events := nb.ListEvents(context.Background(), exportTag)
	if dryRun {
		ui.DryRunMsg("Would export %d event(s)", len(events))
		return nil
	}

	var w io.Writer = ui.Out
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if err := calexport.Export(w, events, time.Now().UTC()); err != nil {
		return fmt.Errorf("export ics: %w", err)
	}
	if exportOut != "" {
		ui.Success("Exported %d event(s) to %s", len(events), exportOut)
	}
	return nil
}

func importICSRun(path string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	loc, err := location()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	events, err := calexport.Import(f, loc)
	if err != nil {
		// Events that did convert are still imported.
		ui.Warning("%v", err)
	}

	ctx := context.Background()
	var added int
	for _, ev := range events {
		if dryRun {
			ui.DryRunMsg("Would import event %q", ev.Title)
			continue
		}
		if err := nb.AddEvent(ctx, ev); err != nil {
			ui.Warning("Skipping %q: %v", ev.Title, err)
			continue
		}
		added++
		ui.VerboseLog("Imported %s %s", output.Cyan(ev.Title), output.Tags(ev.Tags))
	}
	if !dryRun {
		ui.Success("Imported %d of %d event(s) from %s", added, len(events), path)
	}
	return nil
}
