package session

import (
	"bufio"
	"context"
	"net"
	"time"

	"tuyalink/model"
	"tuyalink/pkg/tuyaerr"
)

// runConnectionLoop is the outer state machine: resolve, connect,
// handshake, then hand off to maintainConnection until the connection
// drops or ctx is cancelled. When cfg.Persist is set, a dropped
// connection triggers a backoff wait and another attempt instead of
// ending the loop.
func (s *Session) runConnectionLoop(ctx context.Context) {
	defer close(s.done)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			s.drainPending(ctx.Err())
			return
		default:
		}

		attempt++
		s.setState(StateConnecting)

		conn, sessionKey, err := s.connectAndHandshake(ctx)
		if err != nil {
			s.recordErr(err)
			if s.bus != nil {
				s.bus.PublishSynthetic(s.cfg.ID, tuyaerr.CodeConnect, err.Error())
			}

			if !s.cfg.Persist {
				s.setState(StateIdle)
				s.drainPending(err)
				return
			}

			if !s.waitForBackoff(ctx, attempt) {
				s.drainPending(ctx.Err())
				return
			}
			continue
		}

		attempt = 0
		s.resetSeqno()
		s.mu.Lock()
		s.sessionKey = sessionKey
		s.mu.Unlock()
		s.setState(StateActive)

		disconnected := s.maintainConnection(ctx, conn)
		conn.Close()

		if !s.cfg.Persist || ctx.Err() != nil {
			s.setState(StateIdle)
			s.drainPending(disconnected)
			return
		}

		s.setState(StateDraining)
		if s.bus != nil {
			s.bus.PublishSynthetic(s.cfg.ID, tuyaerr.CodeOffline, "connection lost, reconnecting")
		}

		if !s.waitForBackoff(ctx, 1) {
			s.drainPending(ctx.Err())
			return
		}
	}
}

// connectAndHandshake resolves the device's address, dials it, and runs
// the session-key handshake when the active version requires one.
func (s *Session) connectAndHandshake(ctx context.Context) (net.Conn, []byte, error) {
	s.setState(StateResolving)
	cfg := s.snapshotConfig()

	addr, err := resolveAddress(ctx, s.disc, cfg.ID, cfg.Address, cfg.Port)
	if err != nil {
		return nil, nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, nil, tuyaerr.Wrap(tuyaerr.CodeConnect, "CONNECTION_FAILED", err)
	}

	if cfg.Version.Val() < 3.4 {
		return conn, []byte(cfg.LocalKey), nil
	}

	s.setState(StateHandshaking)
	conn.SetDeadline(time.Now().Add(cfg.ConnectionTimeout))
	sessionKey, err := negotiateSessionKey(conn, []byte(cfg.LocalKey), cfg.Version)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	conn.SetDeadline(time.Time{})

	return conn, sessionKey, nil
}

// maintainConnection owns an established connection: it spawns a reader
// goroutine, starts a jittered heartbeat ticker, and services the
// session's command channel until the reader reports the connection
// dead or ctx is cancelled. It returns the error that ended the
// connection (nil on a clean caller-initiated disconnect).
func (s *Session) maintainConnection(ctx context.Context, conn net.Conn) error {
	incoming := make(chan model.Message, 16)
	readErrCh := make(chan error, 1)

	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()

	go s.readLoop(readerCtx, conn, incoming, readErrCh)

	heartbeat := time.NewTicker(jitteredHeartbeat(s.cfg.HeartbeatInterval))
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrCh:
			return err

		case msg := <-incoming:
			s.handleIncoming(msg)

		case <-heartbeat.C:
			if err := s.sendHeartbeat(conn); err != nil {
				return err
			}

		case raw := <-s.cmdCh:
			switch cmd := raw.(type) {
			case disconnect:
				return nil
			case *request:
				s.processCommand(conn, cmd)
			}
		}
	}
}

// readLoop reads frames off conn until it errors or ctx is cancelled,
// forwarding decoded messages on incoming and reporting the terminal
// error on errCh.
func (s *Session) readLoop(ctx context.Context, conn net.Conn, incoming chan<- model.Message, errCh chan<- error) {
	r := bufio.NewReaderSize(conn, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		frame, err := readFullPacket(r)
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}

		cfg := s.snapshotConfig()
		s.mu.RLock()
		sessionKey := s.sessionKey
		s.mu.RUnlock()

		msg, isDevice22, err := unpackAndCheckDevice22(cfg, sessionKey, frame)
		if err != nil {
			if s.bus != nil {
				s.bus.PublishSyntheticFrame(s.cfg.ID, tuyaerr.CodeJSON, err.Error(), frame, 0)
			}
			continue
		}
		if isDevice22 && cfg.DevType != model.DevTypeDevice22 {
			s.setDevType(model.DevTypeDevice22)
			if s.bus != nil {
				s.bus.PublishSynthetic(s.cfg.ID, tuyaerr.CodeDevType, "device22 firmware detected, retry with upgraded command")
			}
		}

		cleaned, err := decodeMessage(cfg, sessionKey, msg)
		if err != nil {
			if s.bus != nil {
				s.bus.PublishSyntheticFrame(s.cfg.ID, tuyaerr.CodeJSON, err.Error(), msg.Payload, msg.Cmd)
			}
			continue
		}
		msg.Payload = cleaned

		select {
		case incoming <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handleIncoming dispatches a decoded message to its waiting request (by
// sequence number) if one exists, and always republishes it on the bus
// for subscribers.
func (s *Session) handleIncoming(msg model.Message) {
	if s.bus != nil {
		s.bus.Publish(s.cfg.ID, msg)
	}

	s.pendingMu.Lock()
	reply, ok := s.pending[msg.Seqno]
	if ok {
		delete(s.pending, msg.Seqno)
	}
	s.pendingMu.Unlock()

	if ok {
		reply <- requestResult{msg: msg}
	}
}

// processCommand encodes and sends one queued request, registering its
// reply channel (unless Nowait) under the sequence number it was sent
// with.
func (s *Session) processCommand(conn net.Conn, req *request) {
	seqno := s.nextSeqno()
	cfg := s.snapshotConfig()

	s.mu.RLock()
	sessionKey := s.sessionKey
	s.mu.RUnlock()

	msg, err := buildMessage(cfg, sessionKey, seqno, req.cmd, req.payload)
	if err != nil {
		s.failRequest(req, err)
		return
	}

	packed, err := packFrame(cfg, sessionKey, msg)
	if err != nil {
		s.failRequest(req, err)
		return
	}

	if !cfg.Nowait {
		s.pendingMu.Lock()
		s.pending[seqno] = req.reply
		s.pendingMu.Unlock()
	}

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(packed); err != nil {
		s.pendingMu.Lock()
		delete(s.pending, seqno)
		s.pendingMu.Unlock()
		s.failRequest(req, tuyaerr.Wrap(tuyaerr.CodeConnect, "CONNECTION_FAILED", err))
		return
	}

	if cfg.Nowait {
		req.reply <- requestResult{}
	}
}

func (s *Session) failRequest(req *request, err error) {
	select {
	case req.reply <- requestResult{err: err}:
	default:
	}
}

// sendHeartbeat sends a HEART_BEAT frame; the reply (if any) arrives
// through the normal incoming path and is published on the bus like any
// other message, since nothing is waiting on its sequence number.
func (s *Session) sendHeartbeat(conn net.Conn) error {
	cfg := s.snapshotConfig()
	s.mu.RLock()
	sessionKey := s.sessionKey
	s.mu.RUnlock()

	seqno := s.nextSeqno()
	payload, err := generatePayload(cfg, model.CmdHeartBeat, nil, "", "")
	if err != nil {
		return err
	}
	msg, err := buildMessage(cfg, sessionKey, seqno, model.CmdHeartBeat, payload)
	if err != nil {
		return err
	}
	packed, err := packFrame(cfg, sessionKey, msg)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Write(packed)
	if err != nil {
		return tuyaerr.Wrap(tuyaerr.CodeConnect, "CONNECTION_FAILED", err)
	}
	return nil
}

// drainPending fails every request still waiting for a reply when the
// session stops or its connection drops without Persist to recover it.
func (s *Session) drainPending(err error) {
	if err == nil {
		err = tuyaerr.ErrOffline
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for seqno, reply := range s.pending {
		reply <- requestResult{err: err}
		delete(s.pending, seqno)
	}
}

// waitForBackoff sleeps for the backoff duration matching attempt,
// returning false if ctx is cancelled first.
func (s *Session) waitForBackoff(ctx context.Context, attempt int) bool {
	d := backoffDuration(attempt)
	if s.log != nil {
		s.log.Debug("session: backing off before reconnect", "device", s.cfg.ID, "attempt", attempt, "wait", d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
