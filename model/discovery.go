package model

import "time"

// DiscoveryResult is what the discovery service learns about a device from
// a UDP broadcast: its id, address, and (when carried in the broadcast)
// protocol version and product key.
type DiscoveryResult struct {
	ID           string
	IP           string
	Version      Version
	HasVersion   bool
	ProductKey   string
	DiscoveredAt time.Time
}

// Expired reports whether this result is older than the discovery cache's
// TTL and should be treated as a miss.
func (r DiscoveryResult) Expired(ttl time.Duration) bool {
	return time.Since(r.DiscoveredAt) >= ttl
}

// DiscoveryConfig controls the process-wide discovery service. Defaults
// are applied with github.com/creasty/defaults, mirroring the teacher's
// configuration.New / defaults.Set(cfg) idiom.
type DiscoveryConfig struct {
	// Ports the passive listener binds and the active scanner broadcasts
	// on: 6666 (v3.1/3.3), 6667 (v3.3/3.4), 7000 (v3.5, 0x6699 framed).
	Ports []int `default:"[6666,6667,7000]"`
	// ScanTimeout bounds how long an active scan waits for a response.
	ScanTimeout time.Duration `default:"10s"`
	// CacheTTL is how long a discovery cache entry stays fresh.
	CacheTTL time.Duration `default:"30m"`
	// RescanCooldown throttles the probe broadcasts of Discover's active
	// scans to one round per window, across every device sharing the
	// discovery service.
	RescanCooldown time.Duration `default:"5m"`
	// BroadcastInterval is the spacing between the two broadcasts sent
	// per port during a single active scan.
	BroadcastInterval time.Duration `default:"6s"`
}
