package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/go-wlan/go-wlan/lib/monitor"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

type dumpFlags struct {
	session int
	event   string
	json    bool
}

func (a *app) traceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect notification trace files",
	}
	cmd.AddCommand(a.traceDumpCmd())
	return cmd
}

func (a *app) traceDumpCmd() *cobra.Command {
	var f dumpFlags
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the notifications stored in a trace file",
		Long: `Print every notification of a CBOR trace written by run, watch or serve.

Examples:
  go-wlan trace dump ~/.go-wlan/trace.cbor
  go-wlan trace dump --session 0 --event roaming_completion run.cbor
  go-wlan trace dump --json run.cbor`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.dumpTrace(args[0], f)
		},
	}
	cmd.Flags().IntVar(&f.session, "session", -1, "only show this session")
	cmd.Flags().StringVar(&f.event, "event", "", "only show this event kind, e.g. link_up")
	cmd.Flags().BoolVar(&f.json, "json", false, "print one JSON object per line")
	return cmd
}

func (a *app) dumpTrace(path string, f dumpFlags) error {
	var (
		kind    notify.EventKind
		byEvent bool
	)
	if f.event != "" {
		k, err := notify.ParseEventKind(f.event)
		if err != nil {
			return err
		}
		kind, byEvent = k, true
	}
	if f.session > 255 {
		return oops.Wrapf(wlan.ErrInvalidParameter, "session %d out of range", f.session)
	}

	r, err := notify.OpenTrace(path)
	if err != nil {
		return err
	}
	defer r.Close()

	enc := json.NewEncoder(a.out)
	count := 0
	for {
		n, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return oops.Wrapf(err, "trace %s after %d notifications", path, count)
		}
		if f.session >= 0 && int(n.Session) != f.session {
			continue
		}
		if byEvent && n.Event != kind {
			continue
		}
		count++
		if f.json {
			if err := enc.Encode(monitor.EventFrom(n)); err != nil {
				return oops.Wrapf(err, "encode notification")
			}
			continue
		}
		_, _ = fmt.Fprintf(a.out, "%s %s\n", n.Time.Format("15:04:05.000"), n)
	}
	if !f.json {
		_, _ = fmt.Fprintf(a.out, "%d notifications\n", count)
	}
	return nil
}
