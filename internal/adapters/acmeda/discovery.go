package acmeda

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	serviceType      = "_acmeda._tcp"
	serviceDomain    = "local."
	discoveryTimeout = 3 * time.Second
)

// DiscoveredHub is one hub announced over mDNS
type DiscoveredHub struct {
	Host string
	Name string
}

// discoverHubs is swapped in tests to avoid real mDNS traffic
var discoverHubs = DiscoverHubs

// DiscoverHubs browses mDNS for Pulse hubs on the local network. A failed
// browse yields an empty list; the config flow falls back to manual entry.
func DiscoverHubs(ctx context.Context) []DiscoveredHub {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	browseCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	go func() {
		_ = resolver.Browse(browseCtx, serviceType, serviceDomain, entries)
	}()

	var hubs []DiscoveredHub
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		hubs = append(hubs, DiscoveredHub{
			Host: entry.AddrIPv4[0].String() + ":" + strconv.Itoa(entry.Port),
			Name: strings.TrimSuffix(entry.Instance, "."+serviceType),
		})
	}
	return hubs
}
