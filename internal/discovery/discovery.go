// Package discovery implements Tuya's UDP device discovery: a
// process-wide passive listener that caches every broadcast it
// overhears, and an active scanner that probes the LAN on demand and
// single-flights concurrent lookups for the same device id.
//
// It's grounded on original_source's scanner module, translated from
// tokio UdpSocket + OnceLock-held process globals into a net.PacketConn
// goroutine pool owned by one Service value, with golang.org/x/sync's
// singleflight standing in for the hand-rolled Notify/AtomicBool
// single-flight gate, and jellydator/ttlcache/v3 standing in for the
// hand-rolled RwLock<HashMap<..>> discovery cache.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"tuyalink/model"
	"tuyalink/pkg/logger"
	"tuyalink/pkg/tuyaerr"
)

// Service is the process-wide discovery service. One Service is normally
// shared by every device.Device in a process; its passive listener binds
// once regardless of how many devices ask for discovery.
type Service struct {
	cfg model.DiscoveryConfig
	log *logger.Log

	cache   *ttlcache.Cache[string, model.DiscoveryResult]
	group   singleflight.Group
	limiter *rate.Limiter

	mu            sync.Mutex
	listenerOnce  sync.Once
	listenerConns []net.PacketConn
	stopCh        chan struct{}
}

// New builds a Service. Its passive listener starts lazily on the first
// Discover or ScanAll call; no broadcast is observed before that.
func New(cfg model.DiscoveryConfig, log *logger.Log) *Service {
	cache := ttlcache.New[string, model.DiscoveryResult](
		ttlcache.WithTTL[string, model.DiscoveryResult](cfg.CacheTTL),
	)
	go cache.Start()

	// RescanCooldown bounds one token per cooldown window: a Discover
	// scan any sooner than that sends no probes and only waits for the
	// passive listener to fill the cache, rather than being rejected.
	limiter := rate.NewLimiter(rate.Every(cfg.RescanCooldown), 1)

	return &Service{
		cfg:     cfg,
		log:     log,
		cache:   cache,
		limiter: limiter,
		stopCh:  make(chan struct{}),
	}
}

// Close stops the passive listener and the cache's janitor goroutine.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	for _, c := range s.listenerConns {
		c.Close()
	}
	s.cache.Stop()
}

// ensurePassiveListener lazily binds one UDP socket per configured port
// and starts a receive loop on each. It's idempotent: later calls are a
// no-op once the listener is up.
func (s *Service) ensurePassiveListener() {
	s.listenerOnce.Do(func() {
		for _, port := range s.cfg.Ports {
			conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
			if err != nil {
				if s.log != nil {
					s.log.Debug("discovery: failed to bind passive listener", "port", port, "err", err)
				}
				continue
			}

			s.mu.Lock()
			s.listenerConns = append(s.listenerConns, conn)
			s.mu.Unlock()

			go s.receiveLoop(conn)
		}
	})
}

func (s *Service) receiveLoop(conn net.PacketConn) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}

		datagram := append([]byte(nil), buf[:n]...)
		if res, ok := parsePacket(datagram); ok {
			s.cache.Set(res.ID, res, ttlcache.DefaultTTL)
		}
	}
}

// Discover returns the address of deviceID, using a cached entry if one
// is fresh, or running an active scan (single-flighted across concurrent
// callers) otherwise.
func (s *Service) Discover(ctx context.Context, deviceID string) (model.DiscoveryResult, error) {
	s.ensurePassiveListener()

	if item := s.cache.Get(deviceID); item != nil {
		return item.Value(), nil
	}

	v, err, _ := s.group.Do(deviceID, func() (interface{}, error) {
		return s.scanFor(ctx, deviceID)
	})
	if err != nil {
		return model.DiscoveryResult{}, err
	}
	return v.(model.DiscoveryResult), nil
}

// scanFor runs an active broadcast scan and waits for deviceID to show
// up in the cache, up to cfg.ScanTimeout.
func (s *Service) scanFor(ctx context.Context, deviceID string) (model.DiscoveryResult, error) {
	if !s.limiter.Allow() {
		if s.log != nil {
			s.log.Debug("discovery: rescan throttled", "device", deviceID)
		}
	} else {
		s.broadcastProbes()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if item := s.cache.Get(deviceID); item != nil {
			return item.Value(), nil
		}
		select {
		case <-ctx.Done():
			return model.DiscoveryResult{}, tuyaerr.Wrap(tuyaerr.CodeTimeout, "TIMEOUT",
				fmt.Errorf("discovery timed out for device %s", deviceID))
		case <-ticker.C:
		}
	}
}

// ScanAll runs a single active broadcast round and returns every device
// the passive listener has cached once the scan window elapses,
// matching the "whole network scan" mode TinyTuya calls tuyaScanAll.
func (s *Service) ScanAll(ctx context.Context) ([]model.DiscoveryResult, error) {
	s.ensurePassiveListener()
	s.broadcastProbes()

	timer := time.NewTimer(s.cfg.ScanTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	items := s.cache.Items()
	out := make([]model.DiscoveryResult, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	return out, nil
}

func (s *Service) broadcastProbes() {
	for _, port := range s.cfg.Ports {
		probe, err := buildBroadcastProbe(port)
		if err != nil {
			continue
		}
		go s.sendBroadcast(port, probe)
	}
}

func (s *Service) sendBroadcast(port int, probe []byte) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return
	}
	defer conn.Close()

	if pc, ok := conn.(*net.UDPConn); ok {
		_ = pc.SetWriteBuffer(2048)
	}

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: port}

	for i := 0; i < 2; i++ {
		conn.WriteTo(probe, dst)
		time.Sleep(s.cfg.BroadcastInterval)
	}
}
