// watch.go implements "adt-console watch", which streams governance alerts
// without the interactive console.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/notify"
)

var watchDesktop bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream governance alerts to the terminal",
	Long: `Poll the ADS event log and print one line per new event: denials,
escalations, completions and everything else. Events already in the log
when watch starts are not printed. Stop with ctrl+c.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchDesktop, "desktop", false, "Also raise desktop notifications")
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := notify.NewDispatcher(e.logger.With("component", "notify"))
	d.Route(notify.ConsumerToast, notify.NewWriter(cmd.OutOrStdout()))
	if watchDesktop || e.cfg.Notifications.Desktop {
		d.Route(notify.ConsumerDesktop, notify.NewDesktop(cmd.ErrOrStderr(), e.cfg.Notifications.RatePerMinute))
	}

	interval := e.cfg.Polling.NotifyInterval()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &watcher{
		fetcher:    e.fetcher(),
		dispatcher: d,
		sessions:   func() int { return e.sessionCount(ctx) },
		log:        e.logger,
	}
	w.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// watcher runs the notification cycle for the watch command.
type watcher struct {
	fetcher    *governance.Fetcher
	dispatcher *notify.Dispatcher
	sessions   func() int
	source     governance.Source
	log        *slog.Logger
}

func (w *watcher) poll(ctx context.Context) {
	events, source, err := w.fetcher.Events(ctx)
	if source != w.source {
		if w.source != "" {
			w.dispatcher.MarkOutage()
		}
		w.source = source
	}
	if err != nil {
		if !errors.Is(err, governance.ErrServiceUnreachable) {
			w.log.Warn("poll events", "source", source, "error", err)
		}
		return
	}
	w.dispatcher.Dispatch(ctx, events, w.sessions())
}

// sessionCount asks the daemon how many sessions it runs, or 0 when it is
// down.
func (e *env) sessionCount(ctx context.Context) int {
	client, err := e.daemonClient(ctx)
	if err != nil {
		return 0
	}
	list, err := client.List(ctx)
	if err != nil {
		return 0
	}
	return len(list)
}
