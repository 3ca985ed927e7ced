// log.go implements "adt-console log", which prints the audit log.
package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/log"
)

var (
	logEvent string
	logLimit int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the console's audit log",
	Long: `Print recorded console events: sessions created, closed and restored,
spawn failures, alerts, and governance going offline or online. The most
recent events are printed last.`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logEvent, "event", "", "Only show events of this type, e.g. alert_fired")
	logCmd.Flags().IntVarP(&logLimit, "lines", "n", 20, "Show at most this many events (0 for all)")
}

func runLog(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	events, err := e.audit.ReadAll()
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	printLog(cmd.OutOrStdout(), filterLog(events, logEvent, logLimit))
	return nil
}

// filterLog keeps events of the given type ("" for all) and then the last
// limit of them.
func filterLog(events []log.LogEvent, event string, limit int) []log.LogEvent {
	var out []log.LogEvent
	for _, ev := range events {
		if event == "" || ev.Event == event {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func printLog(w io.Writer, events []log.LogEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Time.Local().Format(time.DateTime), ev.Event, logDetail(ev))
	}
	tw.Flush()
}

// logDetail summarizes the fields an event carries.
func logDetail(ev log.LogEvent) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("session", ev.SessionID)
	add("agent", ev.Agent)
	add("role", ev.Role)
	add("spec", ev.SpecRef)
	add("kind", ev.Kind)
	add("title", ev.Title)
	add("source", ev.Source)
	if ev.Count > 0 {
		add("count", fmt.Sprint(ev.Count))
	}
	if ev.ExitCode != 0 {
		add("exit", fmt.Sprint(ev.ExitCode))
	}
	add("error", ev.Error)
	return strings.Join(parts, " ")
}
