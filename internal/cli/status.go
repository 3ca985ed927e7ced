// status.go implements "adt-console status", a one-shot governance and
// session summary.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/alignment"
	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show governance state and session alignment",
	Long: `Fetch one governance snapshot and print where it came from, phase
progress, and the alignment of every session the backend daemon runs.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	snap := e.fetcher().Refresh(ctx)

	var sessions []*session.Session
	client, err := e.daemonClient(ctx)
	if err == nil {
		sessions, err = daemonSessions(ctx, client)
	}
	if err != nil {
		e.logger.Debug("status without sessions", "error", err)
	}

	printStatus(cmd.OutOrStdout(), snap, sessions, err == nil, time.Now())
	return nil
}

func daemonSessions(ctx context.Context, client *backend.Client) ([]*session.Session, error) {
	list, err := client.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*session.Session, 0, len(list))
	for _, d := range list {
		out = append(out, &session.Session{
			ID:        d.ID,
			Agent:     session.AgentKind(d.Agent),
			Role:      d.Role,
			SpecRef:   d.SpecRef,
			Command:   d.Command,
			CreatedAt: d.CreatedAt,
			Alive:     d.Alive,
		})
	}
	return out, nil
}

func printStatus(w io.Writer, snap *governance.Snapshot, sessions []*session.Session, daemonUp bool, now time.Time) {
	fmt.Fprintln(w, "ADT Console Status")
	fmt.Fprintf(w, "Governance: %s", snap.Source)
	if snap.DTTPStatus != "" {
		fmt.Fprintf(w, " (DTTP %s)", snap.DTTPStatus)
	}
	fmt.Fprintln(w)
	for _, slice := range snap.DegradedSlices() {
		fmt.Fprintf(w, "  %s unavailable: %v\n", slice, snap.Degraded[slice].Err)
	}

	ambient := notify.ComputeAmbient(snap.Events, len(sessions))
	fmt.Fprintf(w, "Ambient: %s (%s)\n", ambient.Text, ambient.Level)

	progress := governance.Progress(snap.Phases, snap.Tasks)
	if len(progress) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Phases:")
		for _, p := range progress {
			name := p.Phase.Name
			if name == "" {
				name = p.Phase.ID
			}
			fmt.Fprintf(w, "  %-24s %d/%d  %3d%%\n", name, p.Completed, p.Total, p.Percent())
		}
	}

	fmt.Fprintln(w)
	if !daemonUp {
		fmt.Fprintln(w, "Sessions: backend daemon not running")
		return
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "Sessions: none")
		return
	}
	fmt.Fprintln(w, "Sessions:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range sessions {
		task := "--"
		if t := governance.ActiveTask(snap.Tasks, s.Role); t != nil {
			task = t.ID
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Role, s.Agent, task, alignment.Evaluate(s, snap), session.FormatUptime(now.Sub(s.CreatedAt)))
	}
	tw.Flush()
}
