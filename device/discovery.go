package device

import (
	"context"

	"github.com/creasty/defaults"

	"tuyalink/internal/discovery"
	"tuyalink/model"
	"tuyalink/pkg/logger"
)

// Scanner is the public handle to the process-wide discovery service:
// the passive listener plus the active, single-flighted scanner that
// Builder.WithDiscovery attaches to devices using "Auto" addressing.
type Scanner struct {
	svc *discovery.Service
}

// NewScanner builds a Scanner with default ports/timeouts; pass the
// result to Builder.WithDiscovery for each device that should resolve
// its address automatically.
func NewScanner(log *logger.Log) *Scanner {
	var cfg model.DiscoveryConfig
	defaults.Set(&cfg)
	return &Scanner{svc: discovery.New(cfg, log)}
}

// WithDiscoveryConfig builds a Scanner from an explicit configuration,
// for callers that need non-default ports, timeouts, or cooldowns.
func WithDiscoveryConfig(cfg model.DiscoveryConfig, log *logger.Log) *Scanner {
	return &Scanner{svc: discovery.New(cfg, log)}
}

// Discover resolves a single device id to its current LAN address.
func (s *Scanner) Discover(ctx context.Context, deviceID string) (model.DiscoveryResult, error) {
	return s.svc.Discover(ctx, deviceID)
}

// ScanAll runs one active broadcast round and returns every device seen,
// whether it was already cached or just answered this scan.
func (s *Scanner) ScanAll(ctx context.Context) ([]model.DiscoveryResult, error) {
	return s.svc.ScanAll(ctx)
}

// Close stops the scanner's passive listener and cache.
func (s *Scanner) Close() {
	s.svc.Close()
}

// service exposes the underlying discovery.Service for Builder.WithDiscovery,
// which needs the concrete type the session package depends on.
func (s *Scanner) service() *discovery.Service { return s.svc }
