package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/notus/internal/llm"
	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/output"
	"github.com/joescharf/notus/internal/tags"
)

var (
	tagColor string
	tagApply bool
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage colored tags",
	Long:  "Create, list, toggle, and delete the tags shared by notes and events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagListRun()
	},
}

var tagListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagListRun()
	},
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name>...",
	Short: "Create tags, or recolor existing ones",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagCreateRun(args)
	},
}

var tagToggleCmd = &cobra.Command{
	Use:   "toggle <note|event> <name>...",
	Short: "Add missing tags to a note or event and remove present ones",
	Long: `Toggle tags on a note or event.

The target is "note:<id>", "event:<id>", a bare id, or a title.
Tags the target carries are removed; the others are added, creating
them in the --color color when they do not exist yet.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagToggleRun(args[0], args[1:])
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:     "delete <name>...",
	Aliases: []string{"rm"},
	Short:   "Delete tags and remove them from every note and event",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagDeleteRun(args)
	},
}

var tagSuggestCmd = &cobra.Command{
	Use:   "suggest <note>",
	Short: "Ask Claude to suggest tags for a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagSuggestRun(args[0])
	},
}

func init() {
	tagCreateCmd.Flags().StringVarP(&tagColor, "color", "c", "", "Tag color (white, red, green, yellow, blue, purple, cyan)")
	tagToggleCmd.Flags().StringVarP(&tagColor, "color", "c", "", "Color for tags created by the toggle")
	tagSuggestCmd.Flags().BoolVar(&tagApply, "apply", false, "Add the suggested tags to the note")

	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagCreateCmd)
	tagCmd.AddCommand(tagToggleCmd)
	tagCmd.AddCommand(tagDeleteCmd)
	tagCmd.AddCommand(tagSuggestCmd)
	rootCmd.AddCommand(tagCmd)
}

func tagListRun() error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	all := nb.Tags()
	if len(all) == 0 {
		ui.Info("No tags. Use 'notus tag create <name>' to create one.")
		return nil
	}

	table := ui.Table([]string{"Tag", "Color", "Notes", "Events", "Created"})
	for _, t := range all {
		var notes, events int
		for _, e := range nb.Tagged(t.Name) {
			switch e.(type) {
			case *models.Note:
				notes++
			case *models.Event:
				events++
			}
		}
		_ = table.Append([]string{
			output.TagColor(t),
			string(t.Color),
			strconv.Itoa(notes),
			strconv.Itoa(events),
			t.CreatedAt.Format(models.DateLayout),
		})
	}
	_ = table.Render()
	return nil
}

func tagCreateRun(names []string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	requested := models.ParseTags(strings.Join(names, ","), tagColor)
	if dryRun {
		for _, t := range requested {
			ui.DryRunMsg("Would create tag: %s", t.Name)
		}
		return nil
	}

	outcomes, err := nb.CreateTags(context.Background(), requested)
	if err != nil {
		return fmt.Errorf("create tags: %w", err)
	}
	for _, o := range outcomes {
		if o.Tag == nil {
			continue
		}
		ui.Info("%s %s", output.TagColor(o.Tag), output.ResultColor(o.Result.String()))
	}
	return nil
}

func tagToggleRun(ref string, names []string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	ctx := context.Background()

	e, err := nb.Entity(ctx, ref)
	if err != nil {
		return err
	}

	requested := models.ParseTags(strings.Join(names, ","), tagColor)
	if dryRun {
		for _, t := range requested {
			ui.DryRunMsg("Would toggle tag %s on %s", t.Name, e.EntityKey())
		}
		return nil
	}

	outcomes, err := nb.ToggleTags(ctx, ref, requested)
	if err != nil {
		return fmt.Errorf("toggle tags: %w", err)
	}
	for _, o := range outcomes {
		ui.Info("%s %s", output.TagColor(o.Tag), output.ResultColor(o.Action.String()))
	}
	ui.Success("%s now tagged: %s", e.EntityKey(), output.Tags(e.Tagset().Tags))
	return nil
}

func tagDeleteRun(names []string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}

	if dryRun {
		for _, name := range names {
			ui.DryRunMsg("Would delete tag: %s", name)
		}
		return nil
	}

	outcomes, err := nb.DeleteTags(context.Background(), names)
	if err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	for _, o := range outcomes {
		if o.Result == tags.NotFound {
			ui.Warning("Tag %s %s", o.Name, output.ResultColor(o.Result.String()))
			continue
		}
		ui.Success("Tag %s %s", output.TagColor(o.Tag), output.ResultColor(o.Result.String()))
	}
	return nil
}

func tagSuggestRun(ref string) error {
	nb, err := getNotebook()
	if err != nil {
		return err
	}
	ctx := context.Background()

	note, err := nb.GetNote(ctx, ref)
	if err != nil {
		return err
	}

	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("no Anthropic API key: set anthropic.api_key or ANTHROPIC_API_KEY")
	}
	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))

	ui.VerboseLog("Asking %s for tags on %q", viper.GetString("anthropic.model"), note.Title)
	suggestions, err := client.SuggestTags(ctx, note, nb.TagNames())
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		ui.Info("No tag suggestions for %q", note.Title)
		return nil
	}

	table := ui.Table([]string{"Tag", "New", "Reason"})
	var apply []*models.Tag
	for _, s := range suggestions {
		isNew := "yes"
		if s.Existing {
			isNew = ""
		}
		_ = table.Append([]string{output.Cyan(s.Name), isNew, s.Reason})
		apply = append(apply, models.NewTag(s.Name, ""))
	}
	_ = table.Render()

	if !tagApply {
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would add %d tag(s) to %s", len(apply), note.EntityKey())
		return nil
	}
	if _, err := nb.ToggleTags(ctx, note.EntityKey(), apply); err != nil {
		return fmt.Errorf("apply suggestions: %w", err)
	}
	ui.Success("%q now tagged: %s", note.Title, output.Tags(note.Tags))
	return nil
}
