// Package device is tuyalink's public API: a Builder that assembles a
// device.DeviceConfig and a Device that wraps an internal/session.Session
// with the control/query/subscribe surface callers use.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/creasty/defaults"

	"tuyalink/internal/bus"
	"tuyalink/internal/discovery"
	"tuyalink/internal/session"
	"tuyalink/model"
	"tuyalink/pkg/logger"
)

// Builder assembles a Device's configuration with chainable setters,
// applying github.com/creasty/defaults for anything left unset.
type Builder struct {
	cfg  model.DeviceConfig
	bus  *bus.Bus
	disc *discovery.Service
	log  *logger.Log
}

// NewBuilder starts building a device identified by id, with localKey as
// its AES key.
func NewBuilder(id, localKey string) *Builder {
	cfg := model.DeviceConfig{ID: id, LocalKey: localKey}
	if err := defaults.Set(&cfg); err != nil {
		// defaults.Set only fails on malformed `default:` tags, which is
		// a programming error in DeviceConfig itself, not caller input.
		panic(fmt.Sprintf("tuyalink: invalid DeviceConfig defaults: %v", err))
	}
	return &Builder{cfg: cfg}
}

// Address sets the device's LAN address. "", "Auto", and "0.0.0.0" all
// mean "resolve via discovery".
func (b *Builder) Address(addr string) *Builder {
	b.cfg.Address = addr
	return b
}

// Port overrides the default control port (6668).
func (b *Builder) Port(port int) *Builder {
	b.cfg.Port = port
	return b
}

// Version sets the protocol version from its string form ("3.1".."3.5",
// "Auto", or the pseudo version "3.2"). "3.2" additionally sets the
// device's initial DevType to device22, matching how TinyTuya has
// historically used "3.2" as shorthand for that firmware family. The
// session only ever switches DevType to device22, never back.
func (b *Builder) Version(v string) (*Builder, error) {
	parsed, err := model.ParseVersion(v)
	if err != nil {
		return b, err
	}
	b.cfg.Version = parsed
	b.cfg.DevType = model.DevTypeForVersionString(v)
	return b, nil
}

// DevType overrides the device-type tag directly, bypassing the
// string-version inference Version applies.
func (b *Builder) DevType(dt string) *Builder {
	b.cfg.DevType = dt
	return b
}

// Persist controls whether the session reconnects with backoff after a
// dropped connection (default true).
func (b *Builder) Persist(p bool) *Builder {
	b.cfg.Persist = p
	return b
}

// Nowait controls whether control commands wait for a device reply
// (default false: wait).
func (b *Builder) Nowait(n bool) *Builder {
	b.cfg.Nowait = n
	return b
}

// ConnectionTimeout overrides the default 10s dial+handshake timeout.
func (b *Builder) ConnectionTimeout(d time.Duration) *Builder {
	b.cfg.ConnectionTimeout = d
	return b
}

// HeartbeatInterval overrides the default 10s heartbeat spacing.
func (b *Builder) HeartbeatInterval(d time.Duration) *Builder {
	b.cfg.HeartbeatInterval = d
	return b
}

// WithDiscovery attaches a shared Scanner, used to resolve an "Auto"
// address. Devices built without one must set an explicit Address.
func (b *Builder) WithDiscovery(s *Scanner) *Builder {
	b.disc = s.service()
	return b
}

// WithBus attaches a shared bus.Bus so multiple devices can publish
// through one process-wide dispatcher. A Builder that doesn't call this
// gets its own private Bus.
func (b *Builder) WithBus(bb *bus.Bus) *Builder {
	b.bus = bb
	return b
}

// WithLogger attaches a logger; without one the session logs nothing.
func (b *Builder) WithLogger(l *logger.Log) *Builder {
	b.log = l
	return b
}

// Build starts the device's session and returns a ready-to-use Device.
func (b *Builder) Build(ctx context.Context) (*Device, error) {
	if b.cfg.ID == "" {
		return nil, fmt.Errorf("tuyalink: device id is required")
	}
	if len(b.cfg.LocalKey) != 16 {
		return nil, fmt.Errorf("tuyalink: local key must be 16 bytes, got %d", len(b.cfg.LocalKey))
	}

	b2 := *b
	if b2.bus == nil {
		b2.bus = bus.New(b2.log)
	}

	s := session.New(b2.cfg, b2.bus, b2.disc, b2.log)
	s.Start(ctx)

	return &Device{cfg: b2.cfg, session: s, bus: b2.bus}, nil
}
