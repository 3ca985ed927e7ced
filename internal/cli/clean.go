// clean.go implements "adt-console clean", which prunes stale entries from
// the recent-sessions list.
package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/session"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Forget old recent-session configurations",
	Long: `Remove recent-session configurations that were last opened more than
--days ago. Use --dry-run to preview what would be removed.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

var (
	cleanDays   int
	cleanDryRun bool
)

func init() {
	cleanCmd.Flags().IntVar(&cleanDays, "days", 30, "Forget configurations older than this many days")
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "Preview what would be removed without deleting")
}

func runClean(cmd *cobra.Command, args []string) error {
	if cleanDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", cleanDays)
	}
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	store, err := session.NewRecentStore(filepath.Join(e.dir, recentDB))
	if err != nil {
		return fmt.Errorf("open recent sessions: %w", err)
	}
	defer store.Close()

	pruned, err := store.Prune(time.Now().AddDate(0, 0, -cleanDays), cleanDryRun)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(pruned) == 0 {
		fmt.Fprintln(out, "No recent sessions to clean up.")
		return nil
	}
	verb := "Removed"
	if cleanDryRun {
		verb = "Would remove"
	}
	for _, p := range pruned {
		fmt.Fprintf(out, "  %s %s (%s) opened %s\n", verb, p.Role, p.Agent, p.OpenedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "%s %d configuration(s).\n", verb, len(pruned))
	return nil
}
