package model

import "time"

// DeviceConfig is the fully-resolved configuration for one device
// session: everything the builder collects before a session's background
// goroutine starts. Defaults are applied with github.com/creasty/defaults
// before the caller's overrides are layered on.
type DeviceConfig struct {
	ID       string  `default:""`
	Address  string  `default:"Auto"`
	LocalKey string  `default:""`
	Version  Version `default:"0"`
	// DevType starts as DevTypeDefault unless the caller asked for
	// version "3.2", in which case it starts as DevTypeDevice22.
	DevType string `default:"default"`
	Port    int    `default:"6668"`
	// ConnectionTimeout bounds a single TCP dial + handshake attempt.
	ConnectionTimeout time.Duration `default:"10s"`
	// CommandTimeout bounds how long Request waits for a matching reply.
	CommandTimeout time.Duration `default:"5s"`
	// HeartbeatInterval is the nominal spacing between heartbeats; each
	// connection jitters it once by up to 10% to avoid a thundering herd
	// when many devices are managed by one process.
	HeartbeatInterval time.Duration `default:"10s"`
	// Persist keeps the session's background goroutine running (with
	// reconnect/backoff) after the TCP connection drops. When false, a
	// dropped connection stops the session instead of retrying.
	Persist bool `default:"true"`
	// Nowait skips waiting for a reply on control commands, matching
	// TinyTuya's "nowait" option for devices that never ack a set.
	Nowait bool `default:"false"`
}
