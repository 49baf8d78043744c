package cli

import (
	"context"
	"fmt"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/util"
)

type serveFlags struct {
	addr  string
	trace string
	once  bool
}

func (a *app) serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve <scenario|dir>...",
		Short: "Run scenarios behind the websocket notification feed",
		Long: `Start the websocket feed, run the scenarios one after another and keep
serving until interrupted. Clients connect to /ws for notifications and
session snapshots; GET /status returns the current sessions as JSON.

Examples:
  go-wlan serve --addr localhost:7681 scenarios/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), args, f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (default monitor.address from config)")
	cmd.Flags().StringVar(&f.trace, "trace", "", "also append notifications to this CBOR trace file")
	cmd.Flags().BoolVar(&f.once, "once", false, "exit when the scenarios are done instead of serving until interrupted")
	return cmd
}

func (a *app) serve(ctx context.Context, paths []string, f serveFlags) error {
	scenarios, err := loadScenarios(paths)
	if err != nil {
		return err
	}
	addr := f.addr
	if addr == "" {
		addr = a.cfg.Monitor.Address
	}
	srv, feed, err := a.startMonitor(addr)
	if err != nil {
		return err
	}
	defer stopMonitor(srv)
	_, _ = fmt.Fprintf(a.out, "monitor on ws://%s/ws\n", srv.Addr())

	sinks := []notify.Sink{feed}
	trace, err := a.openTrace(f.trace)
	if err != nil {
		return err
	}
	if trace != nil {
		util.RegisterCloser("trace", trace)
		sinks = append(sinks, trace)
	}

	runner := a.newRunner(sinks...)
	for _, sc := range scenarios {
		rep, err := runner.Run(ctx, sc)
		a.printReport(rep)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.WithFields(logger.Fields{
				"at":       "cli.serve",
				"scenario": sc.Name,
			}).WithError(err).Debug("scenario_failed")
		}
	}
	if f.once {
		return nil
	}
	<-ctx.Done()
	log.WithField("at", "cli.serve").Info("serve_interrupted")
	return nil
}
