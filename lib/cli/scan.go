package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/mdlayher/wifi"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/scan"
)

// wifiConn is the nl80211 client the scan command talks to.
type wifiConn interface {
	scan.WifiClient
	Close() error
}

var openWifi = func() (wifiConn, error) {
	c, err := wifi.New()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) scanCmd() *cobra.Command {
	var ssids []string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Show the BSSes this host's station interfaces are associated with",
		Long: `Read the current links of the host's station interfaces over nl80211 and
show them the way the scan cache sees them, including whether the
configured admission policy (roam.min_rssi, roam.bands, roam.exclude_bssids)
admits each one as a roam target.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.scanHost(cmd.Context(), scan.Filter{SSIDs: ssids})
		},
	}
	cmd.Flags().StringSliceVar(&ssids, "ssid", nil, "only show these SSIDs")
	return cmd
}

func (a *app) scanHost(ctx context.Context, filter scan.Filter) error {
	c, err := openWifi()
	if err != nil {
		return oops.Wrapf(err, "open nl80211")
	}
	defer c.Close()

	src := scan.WifiSource(c)
	cache := scan.NewCache(scan.WithMaxCandidates(a.cfg.Roam.MaxCandidates))
	admit := roam.FromDefaults(a.cfg).Admission.Filter()
	found, err := src(ctx, filter)
	if err != nil {
		return err
	}
	cache.Update(found...)

	entries := cache.Entries()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(a.out, "no associated station interfaces")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BSSID\tSSID\tCH\tBAND\tRSSI\tROAMABLE")
	for _, b := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%t\n",
			b.BSSID, b.SSID, b.Channel, b.Band, b.RSSI, (admit == nil || admit.Accept(b)) && cache.ShouldRoamTo(0, b))
	}
	return w.Flush()
}
