package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/output"
)

var (
	noteContent    string
	noteTags       string
	noteTagColor   string
	notePin        bool
	noteTitle      string
	noteUnpin      bool
	noteArchive    bool
	noteUnarchive  bool
	noteFilterTags []string
	noteArchived   bool
	noteAll        bool
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return noteListRun()
	},
}

var noteAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return noteAddRun(args[0])
	},
}

var noteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List notes, pinned first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return noteListRun()
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <note>",
	Short: "Show a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return noteShowRun(args[0])
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <note>",
	Short: "Change a note's title, content, pin or archive state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return noteEditRun(cmd, args[0])
	},
}

var noteRmCmd = &cobra.Command{
	Use:     "rm <note>",
	Aliases: []string{"delete"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return noteRmRun(args[0])
	},
}

func init() {
	noteAddCmd.Flags().StringVar(&noteContent, "content", "", "Note body")
	noteAddCmd.Flags().StringVarP(&noteTags, "tags", "t", "", "Comma separated tags")
	noteAddCmd.Flags().StringVarP(&noteTagColor, "color", "c", "", "Color for new tags")
	noteAddCmd.Flags().BoolVar(&notePin, "pin", false, "Pin the note")

	noteListCmd.Flags().StringSliceVarP(&noteFilterTags, "tag", "t", nil, "Only notes carrying these tags")
	noteListCmd.Flags().BoolVar(&noteArchived, "archived", false, "List archived notes")
	noteListCmd.Flags().BoolVarP(&noteAll, "all", "a", false, "List archived and active notes")

	noteEditCmd.Flags().StringVar(&noteTitle, "title", "", "New title")
	noteEditCmd.Flags().StringVar(&noteContent, "content", "", "New body")
	noteEditCmd.Flags().BoolVar(&notePin, "pin", false, "Pin the note")
	noteEditCmd.Flags().BoolVar(&noteUnpin, "unpin", false, "Unpin the note")
	noteEditCmd.Flags().BoolVar(&noteArchive, "archive", false, "Archive the note")
	noteEditCmd.Flags().BoolVar(&noteUnarchive, "unarchive", false, "Restore an archived note")
	noteEditCmd.MarkFlagsMutuallyExclusive("pin", "unpin")
	noteEditCmd.MarkFlagsMutuallyExclusive("archive", "unarchive")

	noteCmd.AddCommand(noteAddCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteShowCmd)
	noteCmd.AddCommand(noteEditCmd)
	noteCmd.AddCommand(noteRmCmd)
	rootCmd.AddCommand(noteCmd)
}

func noteAddRun(title string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	n := &models.Note{
		Title:   title,
		Content: noteContent,
		Pinned:  notePin,
	}
	n.Tags = models.ParseTags(noteTags, noteTagColor)

	if dryRun {
		ui.DryRunMsg("Would add note %q with tags %s", title, strings.Join(n.Names(), ", "))
		return nil
	}

	if err := nb.AddNote(context.Background(), n); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	ui.Success("Added note %s %s", output.Cyan(n.Title), output.Tags(n.Tags))
	ui.VerboseLog("ID: %s", n.ID)
	return nil
}

func noteListRun() error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	notes := nb.ListNotes(context.Background(), notebook.NoteFilter{
		Tags:     noteFilterTags,
		Archived: noteArchived,
		All:      noteAll,
	})
	if len(notes) == 0 {
		ui.Info("No notes. Use 'notus note add <title>' to add one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Tags", "Updated"})
	for _, n := range notes {
		title := n.Title
		if n.Pinned {
			title = "* " + title
		}
		if n.Archived {
			title = output.Yellow(title + " (archived)")
		}
		_ = table.Append([]string{
			n.ID,
			title,
			output.Tags(n.Tags),
			n.UpdatedAt.Local().Format(models.DateTimeLayout),
		})
	}
	_ = table.Render()
	return nil
}

func noteShowRun(ref string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	n, err := nb.GetNote(context.Background(), ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(n.Title))
	fmt.Fprintf(ui.Out, "ID:       %s\n", n.ID)
	if len(n.Tags) > 0 {
		fmt.Fprintf(ui.Out, "Tags:     %s\n", output.Tags(n.Tags))
	}
	if n.Pinned {
		fmt.Fprintf(ui.Out, "Pinned:   yes\n")
	}
	if n.Archived {
		fmt.Fprintf(ui.Out, "Archived: yes\n")
	}
	fmt.Fprintf(ui.Out, "Created:  %s\n", n.CreatedAt.Local().Format(models.DateTimeLayout))
	fmt.Fprintf(ui.Out, "Updated:  %s\n", n.UpdatedAt.Local().Format(models.DateTimeLayout))
	if n.Content != "" {
		fmt.Fprintf(ui.Out, "\n%s\n", n.Content)
	}
	return nil
}

func noteEditRun(cmd *cobra.Command, ref string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	ctx := context.Background()

	cur, err := nb.GetNote(ctx, ref)
	if err != nil {
		return err
	}

	next := *cur
	if cmd.Flags().Changed("title") {
		next.Title = noteTitle
	}
	if cmd.Flags().Changed("content") {
		next.Content = noteContent
	}
	switch {
	case notePin:
		next.Pinned = true
	case noteUnpin:
		next.Pinned = false
	}
	switch {
	case noteArchive:
		next.Archived = true
	case noteUnarchive:
		next.Archived = false
	}

	if dryRun {
		ui.DryRunMsg("Would update note %q", cur.Title)
		return nil
	}

	n, err := nb.UpdateNote(ctx, &next)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	ui.Success("Updated note %s", output.Cyan(n.Title))
	return nil
}

func noteRmRun(ref string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		n, err := nb.GetNote(ctx, ref)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would delete note %q", n.Title)
		return nil
	}

	n, err := nb.DeleteNote(ctx, ref)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	ui.Success("Deleted note %s", n.Title)
	return nil
}
