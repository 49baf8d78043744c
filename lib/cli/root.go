// Package cli is the go-wlan command line: scenario runs against the
// simulated wire engine, a live terminal watcher, the websocket feed, trace
// inspection and a read-only look at the host's wireless links.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/go-wlan/go-wlan/lib/config"
	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/util"
	"github.com/go-wlan/go-wlan/lib/util/signals"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// Version information (set by build flags)
var version = "dev"

// app is the state shared by the sub-commands of one invocation.
type app struct {
	cfg config.ConfigDefaults
	out io.Writer
	ref *machineRef
}

// machineRef points at the machine of the scenario currently running, so
// the watcher, the monitor and shutdown handling can reach it.
type machineRef struct {
	p atomic.Pointer[roam.Machine]
}

func (r *machineRef) set(m *roam.Machine) { r.p.Store(m) }

// Snapshot implements tui.Source and monitor.Snapshotter.
func (r *machineRef) Snapshot() ([]session.Info, roam.Stats, error) {
	m := r.p.Load()
	if m == nil {
		return nil, roam.Stats{}, oops.Wrapf(wlan.ErrWrongState, "no scenario running")
	}
	return m.Snapshot()
}

// disconnectAll asks every open session of the current machine to leave its
// BSS, then waits until none is joined or joining, or ctx expires. A machine
// that already closed is not an error.
func (r *machineRef) disconnectAll(ctx context.Context) {
	m := r.p.Load()
	if m == nil {
		return
	}
	infos, _, err := m.Snapshot()
	if err != nil {
		return
	}
	for _, info := range infos {
		if info.Kind == session.KindStopped {
			continue
		}
		if err := m.Disconnect(info.ID); err != nil {
			log.WithFields(logger.Fields{
				"at":      "cli.machineRef.disconnectAll",
				"session": info.ID.String(),
			}).WithError(err).Warn("disconnect_failed")
		}
	}

	tick := time.NewTicker(disconnectPoll)
	defer tick.Stop()
	for {
		infos, _, err := m.Snapshot()
		if err != nil || !anyConnected(infos) {
			return
		}
		select {
		case <-ctx.Done():
			log.WithField("at", "cli.machineRef.disconnectAll").Warn("sessions_still_connected")
			return
		case <-tick.C:
		}
	}
}

const disconnectPoll = 20 * time.Millisecond

func anyConnected(infos []session.Info) bool {
	for _, info := range infos {
		if info.Kind == session.KindJoined || info.Kind == session.KindJoining {
			return true
		}
	}
	return false
}

// NewRootCmd builds the command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, ref: &machineRef{}}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "go-wlan",
		Short: "802.11 station connection and roaming orchestrator",
		Long: `go-wlan drives station sessions through association, key installation
and lost-link recovery.

Scenarios describe the air (BSSes, lower-layer faults) and the steps a
client takes; they run against a simulated wire engine so every roam
decision can be replayed and checked.

Examples:
  # Run every scenario in a directory
  go-wlan run scenarios/

  # Watch one scenario live
  go-wlan watch scenarios/lost_link.yaml

  # Inspect a notification trace
  go-wlan trace dump ~/.go-wlan/trace.cbor`,
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}
	cmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/.go-wlan/config.yaml)")
	cmd.SetOut(a.out)
	cmd.SetErr(a.out)

	cmd.AddCommand(a.runCmd())
	cmd.AddCommand(a.watchCmd())
	cmd.AddCommand(a.serveCmd())
	cmd.AddCommand(a.traceCmd())
	cmd.AddCommand(a.scanCmd())
	cmd.AddCommand(a.versionCmd())
	return cmd
}

func (a *app) loadConfig(_ *cobra.Command, _ []string) error {
	if err := config.InitConfig(); err != nil {
		return err
	}
	cfg := config.CurrentConfig()
	if err := config.Validate(cfg); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}
	a.cfg = cfg
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// no configuration needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(_ *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(a.out, "go-wlan version %s\n", version)
		},
	}
}

// Execute runs the command line with process signal handling: SIGINT and
// SIGTERM disconnect open sessions and cancel the running command, SIGHUP
// reloads the configuration file.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &app{out: os.Stdout, ref: &machineRef{}}

	go signals.Handle()
	defer signals.StopHandle()
	signals.RegisterPreShutdownHandler(a.ref.disconnectAll)
	interrupt := signals.RegisterInterruptHandler(func() { cancel() })
	defer signals.DeregisterInterruptHandler(interrupt)
	reload := signals.RegisterReloadHandler(func() {
		if err := a.loadConfig(nil, nil); err != nil {
			log.WithError(err).WithField("at", "cli.Execute").Warn("config_reload_failed")
			return
		}
		log.WithField("at", "cli.Execute").Info("config_reloaded")
	})
	defer signals.DeregisterReloadHandler(reload)
	defer func() {
		if err := util.CloseAll(); err != nil {
			log.WithError(err).WithField("at", "cli.Execute").Warn("close_failed")
		}
	}()

	return a.rootCmd().ExecuteContext(ctx)
}
