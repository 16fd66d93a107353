package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/logging"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/output"
	"github.com/joescharf/notus/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *zap.Logger
	dataStore store.Store
	book      *notebook.Notebook

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "notus",
	Short: "Notes and calendar with colored tags, recurring events and reminders",
	Long: `notus keeps notes and calendar events in one notebook.
Notes and events share one set of colored tags; events can repeat daily,
weekly, monthly, yearly or by RRULE and remind you days, weeks or months
ahead.

Running bare 'notus' shows today's reminders and the coming week.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/notus/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "notus")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("NOTUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers the default of every config key.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "notus")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "notus.db"))
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")
	viper.SetDefault("reminder.check_at", "08:00")
	viper.SetDefault("reminder.timezone", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Config{
		Level:  level,
		Format: viper.GetString("log.format"),
		File:   viper.GetString("log.file"),
	})
	if err != nil {
		ui.Warning("Logging disabled: %v", err)
		log = zap.NewNop()
	}
	logger = log

	// Initialize the notebook lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

func closeDeps() {
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

// rootRun handles `notus` with no subcommand: today's reminders and the coming week.
func rootRun(cmd *cobra.Command) error {
	nb, err := getNotebook()
	if err != nil {
		return cmd.Help()
	}

	loc, err := location()
	if err != nil {
		return err
	}
	today := time.Now().In(loc)
	if err := remindRun(cmd.Context(), nb, today); err != nil {
		return err
	}
	fmt.Fprintln(ui.Out)
	return calendarRun(cmd.Context(), nb, today, today.AddDate(0, 0, 7))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getNotebook returns the shared notebook, loading it on first call.
func getNotebook() (*notebook.Notebook, error) {
	if book != nil {
		return book, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	nb := notebook.New(s, logger)
	if err := nb.Open(context.Background()); err != nil {
		return nil, fmt.Errorf("load notebook: %w", err)
	}
	book = nb
	return book, nil
}

// location returns the time zone used for dates on the command line.
func location() (*time.Location, error) {
	tz := viper.GetString("reminder.timezone")
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone: %w", err)
	}
	return loc, nil
}
