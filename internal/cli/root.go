// Package cli defines Cobra command definitions for the adt-console CLI.
// This file contains the root command, which runs the interactive console.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/tui"
	"github.com/adt-framework/adt-console/internal/tui/app"
	"github.com/adt-framework/adt-console/internal/tui/commands"
)

var (
	homeDir  string
	logLevel string
	version  = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "adt-console",
	Short: "Operator console for ADT governed agent sessions",
	Long: `adt-console runs several AI agent sessions side by side, each in its own
terminal, next to a live view of ADT governance: the active task, its
delegation chain, the agent's recent actions and phase progress.

Sessions live in a backend daemon and survive console restarts.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runConsole,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Console directory (default $ADT_CONSOLE_HOME or ~/.adt/console)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostics level: debug, info, warn or error")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(logCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	// Without a terminal there is nothing to draw; Run prints guidance.
	if !tui.IsTTY() {
		return tui.Run(nil)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	be, release, err := e.openBackend(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts := console.Options{
		Config:  e.cfg,
		Backend: be,
		Service: e.service(),
		Audit:   e.audit,
		Ambient: []notify.AmbientSink{notify.NewTitleAmbient(os.Stdout)},
		Logger:  e.logger,
	}
	var recents commands.RecentLister
	if store := e.openRecents(); store != nil {
		defer store.Close()
		opts.Recent = store
		recents = store
	}
	if e.cfg.Notifications.Desktop {
		opts.Desktop = notify.NewDesktop(os.Stdout, e.cfg.Notifications.RatePerMinute)
	}

	c, err := console.New(opts)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting console: %w", err)
	}
	defer c.Close()

	return tui.Run(app.New(c, recents, e.cfg))
}
