package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/tui"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		refresh time.Duration
		trace   string
	)
	cmd := &cobra.Command{
		Use:   "watch <scenario>",
		Short: "Run a scenario and watch its sessions live",
		Long: `Run one scenario in the background and show the session table and the
notification log in the terminal. The view stays open after the scenario
ends; press q to quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), args[0], refresh, trace)
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", time.Second, "session table refresh interval")
	cmd.Flags().StringVar(&trace, "trace", "", "also append notifications to this CBOR trace file")
	return cmd
}

func (a *app) watch(ctx context.Context, path string, refresh time.Duration, tracePath string) error {
	scenarios, err := loadScenarios([]string{path})
	if err != nil {
		return err
	}
	sc := scenarios[0]

	trace, err := a.openTrace(tracePath)
	if err != nil {
		return err
	}
	feed := notify.NewChanSink(256)
	sinks := []notify.Sink{feed}
	if trace != nil {
		defer trace.Close()
		sinks = append(sinks, trace)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep, _ := a.newRunner(sinks...).Run(ctx, sc)
		if rep != nil && !rep.Passed {
			log.WithField("at", "cli.watch").WithError(rep.Err).Warn("scenario_failed")
		}
	}()

	err = tui.Run(a.ref, feed.C(), tui.WithRefresh(refresh), tui.WithTitle("go-wlan • "+sc.Name))
	cancel()
	<-done
	return err
}
