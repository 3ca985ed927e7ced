// sessions.go implements "adt-console sessions", headless session
// management against the backend daemon.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/session"
)

var (
	closeAll bool
	closeYes bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and close agent sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions running in the backend daemon",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened session configurations",
	Args:  cobra.NoArgs,
	RunE:  runSessionsRecent,
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close [id]",
	Short: "Close one session, or every session with --all",
	Args: func(cmd *cobra.Command, args []string) error {
		if closeAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runSessionsClose,
}

func init() {
	sessionsCloseCmd.Flags().BoolVar(&closeAll, "all", false, "Close every session")
	sessionsCloseCmd.Flags().BoolVarP(&closeYes, "yes", "y", false, "Do not ask for confirmation")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRecentCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	client, err := e.daemonClient(cmd.Context())
	if err != nil {
		return err
	}
	list, err := client.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions running.")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAGENT\tROLE\tSPEC\tUPTIME\tSTATE")
	for _, d := range list {
		state := "running"
		if !d.Alive {
			state = "exited"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Agent, d.Role, orDash(d.SpecRef), session.FormatUptime(now.Sub(d.CreatedAt)), state)
	}
	return tw.Flush()
}

func runSessionsRecent(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	store := e.openRecents()
	if store == nil {
		return fmt.Errorf("recent sessions unavailable; see %s", e.dir)
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recent sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPENED\tAGENT\tROLE\tSPEC\tPROJECT")
	for _, r := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.OpenedAt.Local().Format("2006-01-02 15:04"), r.Agent, r.Role, orDash(r.SpecRef), orDash(r.Project))
	}
	return tw.Flush()
}

func runSessionsClose(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	client, err := e.daemonClient(ctx)
	if err != nil {
		return err
	}
	c, err := console.New(console.Options{
		Config:  e.cfg,
		Backend: client,
		Audit:   e.audit,
		Logger:  e.logger,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	if _, err := c.Restore(ctx); err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}

	var confirm session.Confirmer = session.Confirmed
	if !closeYes {
		confirm = promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	if closeAll {
		n := len(c.Sessions())
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions running.")
			return nil
		}
		if err := c.CloseAll(ctx, confirm); err != nil {
			return declined(cmd.OutOrStdout(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Closed %d sessions.\n", n)
		return nil
	}

	if err := c.CloseSession(ctx, args[0], confirm); err != nil {
		return declined(cmd.OutOrStdout(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Closed %s.\n", args[0])
	return nil
}

// promptConfirmer asks on out and reads y or yes from in.
func promptConfirmer(in io.Reader, out io.Writer) session.Confirmer {
	reader := bufio.NewReader(in)
	return session.ConfirmFunc(func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	})
}

// declined turns a refused confirmation into a message instead of an
// error.
func declined(out io.Writer, err error) error {
	if errors.Is(err, session.ErrCloseDeclined) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}
	return err
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}
