package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/go-wlan/go-wlan/lib/monitor"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/sim"
	"github.com/go-wlan/go-wlan/lib/util"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

type runFlags struct {
	trace    string
	monitor  string
	failFast bool
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <scenario|dir>...",
		Short: "Run scenarios against the simulated wire engine",
		Long: `Run one or more scenario files. Directories are expanded to the .yaml and
.yml files they contain.

Each scenario gets a fresh roam machine built from the configuration file.
The command fails when any scenario fails.

Examples:
  go-wlan run scenarios/
  go-wlan run --trace run.cbor scenarios/fallback.yaml
  go-wlan run --monitor localhost:7681 scenarios/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScenarios(cmd.Context(), args, f)
		},
	}
	cmd.Flags().StringVar(&f.trace, "trace", "", "append notifications to this CBOR trace file (default from config when trace.enabled)")
	cmd.Flags().StringVar(&f.monitor, "monitor", "", "serve the websocket feed on this address (default from config when monitor.enabled)")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "stop at the first failing scenario")
	return cmd
}

// loadScenarios reads every file or directory named in paths.
func loadScenarios(paths []string) ([]*sim.Scenario, error) {
	var out []*sim.Scenario
	for _, p := range paths {
		switch util.StatPath(p) {
		case util.PathMissing:
			return nil, oops.Wrapf(wlan.ErrInvalidParameter, "scenario path %s does not exist", p)
		case util.PathOther:
			return nil, oops.Wrapf(wlan.ErrInvalidParameter, "scenario path %s is not a file or directory", p)
		case util.PathDir:
			scs, err := sim.LoadDirectory(p)
			if err != nil {
				return nil, err
			}
			out = append(out, scs...)
			continue
		}
		sc, err := sim.LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "no scenarios found in %v", paths)
	}
	return out, nil
}

// openTrace returns the trace sink to use, or nil when tracing is off.
func (a *app) openTrace(path string) (*notify.TraceSink, error) {
	if path == "" && a.cfg.Trace.Enabled {
		path = a.cfg.Trace.Path
	}
	if path == "" {
		return nil, nil
	}
	return notify.NewTraceSink(path)
}

// startMonitor starts the websocket feed on addr, falling back to the
// configured address when monitoring is enabled. It returns nil when the feed
// is off.
func (a *app) startMonitor(addr string) (*monitor.Server, *monitor.Broadcaster, error) {
	if addr == "" && a.cfg.Monitor.Enabled {
		addr = a.cfg.Monitor.Address
	}
	if addr == "" {
		return nil, nil, nil
	}
	b := monitor.NewBroadcaster(
		monitor.WithSendBuffer(a.cfg.Monitor.SendBuffer),
		monitor.WithSnapshotter(a.ref),
	)
	srv := monitor.NewServer(addr, b, a.ref)
	if err := srv.Start(); err != nil {
		b.Close()
		return nil, nil, err
	}
	return srv, b, nil
}

func stopMonitor(srv *monitor.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).WithField("at", "cli.stopMonitor").Warn("monitor_shutdown_failed")
	}
}

// newRunner builds a runner publishing to sinks and tracking the live machine.
func (a *app) newRunner(sinks ...notify.Sink) *sim.Runner {
	opts := []sim.RunnerOption{
		sim.WithObserver(a.ref.set),
		sim.WithPower(sim.PowerSpec{
			TransitionDelay:  a.cfg.Power.TransitionDelay,
			StartInPowerSave: a.cfg.Power.StartInPowerSave,
		}),
	}
	if len(sinks) > 0 {
		opts = append(opts, sim.WithSink(notify.MultiSink(sinks)))
	}
	return sim.NewRunner(roam.FromDefaults(a.cfg), opts...)
}

func (a *app) runScenarios(ctx context.Context, paths []string, f runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scenarios, err := loadScenarios(paths)
	if err != nil {
		return err
	}

	trace, err := a.openTrace(f.trace)
	if err != nil {
		return err
	}
	var sinks []notify.Sink
	if trace != nil {
		defer trace.Close()
		sinks = append(sinks, trace)
	}
	srv, feed, err := a.startMonitor(f.monitor)
	if err != nil {
		return err
	}
	defer stopMonitor(srv)
	if feed != nil {
		sinks = append(sinks, feed)
		_, _ = fmt.Fprintf(a.out, "monitor on ws://%s/ws\n", srv.Addr())
	}

	runner := a.newRunner(sinks...)
	failed := 0
	for _, sc := range scenarios {
		rep, err := runner.Run(ctx, sc)
		a.printReport(rep)
		if err == nil {
			continue
		}
		failed++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.failFast {
			break
		}
	}
	log.WithFields(logger.Fields{
		"at":        "cli.runScenarios",
		"scenarios": len(scenarios),
		"failed":    failed,
	}).Debug("run_finished")
	if failed > 0 {
		return oops.Wrapf(wlan.ErrFailure, "%d of %d scenarios failed", failed, len(scenarios))
	}
	return nil
}

func (a *app) printReport(rep *sim.Report) {
	if rep == nil {
		return
	}
	if rep.Passed {
		_, _ = fmt.Fprintf(a.out, "PASS %s (%d steps, %d requests, %s)\n",
			rep.Name, rep.Steps, len(rep.Requests), rep.Elapsed.Round(time.Millisecond))
		return
	}
	if rep.Failed < 0 {
		_, _ = fmt.Fprintf(a.out, "FAIL %s: %v\n", rep.Name, rep.Err)
		return
	}
	_, _ = fmt.Fprintf(a.out, "FAIL %s at step %d: %v\n", rep.Name, rep.Failed, rep.Err)
}
