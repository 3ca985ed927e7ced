// daemon.go implements "adt-console daemon", the backend that owns agent
// PTYs so sessions outlive the console.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/log"
	"github.com/adt-framework/adt-console/internal/metrics"
)

var (
	daemonSocket      string
	daemonMetricsAddr string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the session backend daemon",
	Long: `Run the backend that owns agent processes and their pseudo-terminals.
The console connects to it over a unix socket and starts it on demand
when backend.autostart is set. Stopping the daemon ends every session.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonSocket, "socket", "", "Unix socket to listen on (default backend.socket or <home>/backend.sock)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	socket := daemonSocket
	if socket == "" {
		socket = e.cfg.SocketPath(e.dir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	if daemonMetricsAddr != "" {
		srv := &http.Server{Addr: daemonMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Warn("metrics server", "error", err)
			}
		}()
		defer srv.Close()
	}

	m := e.manager()
	server := backend.NewServer(m, socket, e.logger.With("component", "daemon"))

	if err := e.audit.Append(log.LogEvent{
		Event: log.EventDaemonStarted,
		Data:  map[string]any{"socket": socket, "pid": os.Getpid()},
	}); err != nil {
		e.logger.Warn("audit log append", "error", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backend daemon listening on %s\n", socket)

	serveErr := server.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(shutdownCtx)
	return serveErr
}
