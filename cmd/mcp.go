package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	notusmcp "github.com/joescharf/notus/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code read and write the notebook natively. Configure
it in Claude Code with:

  {
    "mcpServers": {
      "notus": { "command": "notus", "args": ["mcp"] }
    }
  }

Available tools: notus_list_notes, notus_add_note, notus_add_event,
notus_list_tags, notus_toggle_tags, notus_create_tags, notus_delete_tags,
notus_agenda, notus_reminders`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nb, err := getNotebook()
		if err != nil {
			return err
		}
		loc, err := location()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// stdout carries the protocol; status goes to the logger only.
		srv := notusmcp.NewServer(nb, logger, loc, buildVersion)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
