package scan

import (
	"context"
	"time"

	"github.com/go-i2p/logger"
	"github.com/mdlayher/wifi"
	"github.com/samber/oops"
)

// WifiClient is the part of *wifi.Client a live source needs.
type WifiClient interface {
	Interfaces() ([]*wifi.Interface, error)
	BSS(ifi *wifi.Interface) (*wifi.BSS, error)
	StationInfo(ifi *wifi.Interface) ([]*wifi.StationInfo, error)
}

// WifiSource reports the BSS every station interface on the host is
// associated with. The kernel only exposes the current BSS without a trigger
// scan, so the result is at most one entry per interface. Interfaces that are
// not associated are skipped.
func WifiSource(c WifiClient) Source {
	return func(ctx context.Context, filter Filter) ([]*BSSDescription, error) {
		ifis, err := c.Interfaces()
		if err != nil {
			return nil, oops.Wrapf(err, "list wifi interfaces")
		}
		var out []*BSSDescription
		for _, ifi := range ifis {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if ifi.Type != wifi.InterfaceTypeStation {
				continue
			}
			d, err := describeLink(c, ifi)
			if err != nil {
				log.WithFields(logger.Fields{
					"at":        "scan.WifiSource",
					"interface": ifi.Name,
				}).WithError(err).Debug("interface_skipped")
				continue
			}
			if filter.Match(d) {
				out = append(out, d)
			}
		}
		return out, nil
	}
}

func describeLink(c WifiClient, ifi *wifi.Interface) (*BSSDescription, error) {
	b, err := c.BSS(ifi)
	if err != nil {
		return nil, oops.Wrapf(err, "bss of %s", ifi.Name)
	}
	rssi := 0
	if infos, err := c.StationInfo(ifi); err == nil && len(infos) > 0 {
		rssi = infos[0].Signal
	}
	return FromWifiBSS(b, rssi, time.Now())
}
