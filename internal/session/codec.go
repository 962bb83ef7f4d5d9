package session

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"tuyalink/internal/cipher"
	"tuyalink/internal/wire"
	"tuyalink/model"
	"tuyalink/pkg/tuyaerr"
)

// versionHeaderLen is the length of the ASCII version-tag header that
// wraps payloads of commands outside the no-header set (3 version bytes +
// 12 MD5 placeholder bytes).
const versionHeaderLen = 15

// buildMessage encodes an outbound command into a wire-ready Message,
// applying the version header and encryption the protocol expects for
// the active version.
func buildMessage(cfg model.DeviceConfig, sessionKey []byte, seqno uint32, cmd model.CommandType, payload []byte) (model.Message, error) {
	switch {
	case cfg.Version.Val() < 3.4:
		return packPre34(cfg, sessionKey, seqno, cmd, payload)
	default:
		return packPost34(cfg, sessionKey, seqno, cmd, payload)
	}
}

func packPre34(cfg model.DeviceConfig, key []byte, seqno uint32, cmd model.CommandType, payload []byte) (model.Message, error) {
	if !needsEncryptionAt31(cfg, cmd) {
		return model.Message{
			Prefix:  model.Prefix55AA,
			Seqno:   seqno,
			Cmd:     uint32(cmd),
			Payload: payload,
		}, nil
	}

	c, err := cipher.New(key)
	if err != nil {
		return model.Message{}, err
	}

	encrypted, err := c.EncryptECB(payload)
	if err != nil {
		return model.Message{}, err
	}

	if model.NeedsVersionHeader(cmd) {
		encrypted = append(addVersionHeader(cfg.Version), encrypted...)
	}

	return model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   seqno,
		Cmd:     uint32(cmd),
		Payload: encrypted,
	}, nil
}

// needsEncryptionAt31 reports whether cmd is ECB-encrypted at all at
// protocol version 3.1: only Control (and device22 firmwares, which
// encrypt every command) get that treatment there. At 3.3 everything
// routed through packPre34 is encrypted as before. Other 3.1 commands go
// out in the clear with no version header.
func needsEncryptionAt31(cfg model.DeviceConfig, cmd model.CommandType) bool {
	if cfg.Version != model.Version31 {
		return true
	}
	if cfg.DevType == model.DevTypeDevice22 {
		return true
	}
	return cmd == model.CmdControl || cmd == model.CmdControlNew
}

func packPost34(cfg model.DeviceConfig, key []byte, seqno uint32, cmd model.CommandType, payload []byte) (model.Message, error) {
	plain := payload
	if model.NeedsVersionHeader(cmd) {
		plain = append(addVersionHeader(cfg.Version), plain...)
	}

	if cfg.Version.Val() >= 3.5 {
		iv := make([]byte, cipher.GCMNonceSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return model.Message{}, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED", err)
		}
		return model.Message{
			Prefix:  model.Prefix6699,
			Seqno:   seqno,
			Cmd:     uint32(cmd),
			Payload: plain,
			IV:      iv,
		}, nil
	}

	c, err := cipher.New(key)
	if err != nil {
		return model.Message{}, err
	}

	encrypted, err := c.EncryptECB(plain)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   seqno,
		Cmd:     uint32(cmd),
		Payload: encrypted,
	}, nil
}

func addVersionHeader(v model.Version) []byte {
	out := make([]byte, versionHeaderLen)
	b := v.Bytes()
	copy(out, b[:])
	return out
}

func hasVersionHeader(payload []byte, v model.Version) bool {
	if len(payload) < versionHeaderLen {
		return false
	}
	return bytes.HasPrefix(payload, []byte(v.String()))
}

func removeVersionHeader(payload []byte) []byte {
	if len(payload) < versionHeaderLen {
		return payload
	}
	return payload[versionHeaderLen:]
}

// frameKey returns the footer/GCM key for wire.PackOpts/UnpackOpts
// appropriate for the active protocol version: 0x55AA frames below 3.4
// use CRC32 (nil key);
// 3.4 uses HMAC-SHA256 with the session key; 3.5 uses 0x6699/GCM.
func frameKey(cfg model.DeviceConfig, sessionKey []byte) []byte {
	if cfg.Version.Val() >= 3.4 {
		return sessionKey
	}
	return nil
}

// packFrame wraps wire.Pack with the footer/GCM key selection appropriate
// for the active protocol version.
func packFrame(cfg model.DeviceConfig, sessionKey []byte, msg model.Message) ([]byte, error) {
	return wire.Pack(msg, wire.PackOpts{HMACKey: frameKey(cfg, sessionKey)})
}

// decodeMessage decrypts and validates an inbound Message's payload,
// returning the cleaned JSON bytes. For 0x55AA frames below 3.4, no
// decryption is needed only when the payload already looks like JSON
// (some commands, e.g. DP_QUERY replies on very old firmware, arrive in
// the clear).
func decodeMessage(cfg model.DeviceConfig, sessionKey []byte, msg model.Message) ([]byte, error) {
	payload := msg.Payload

	if len(payload) == 0 {
		return payload, nil
	}

	// 0x6699 frames are GCM and already decrypted by wire.Unpack; only the
	// version header, when present, is stripped. Only 0x55AA frames need
	// the ECB pass below.
	if msg.Prefix == model.Prefix6699 {
		if hasVersionHeader(payload, cfg.Version) {
			payload = removeVersionHeader(payload)
		}
		return payload, nil
	}

	if payload[0] == '{' || payload[0] == '[' {
		return payload, nil
	}

	if len(sessionKey) == 0 {
		return payload, nil
	}

	c, err := cipher.New(sessionKey)
	if err != nil {
		return nil, err
	}

	// Below 3.4 the version header wraps the ciphertext (added after
	// encryption on the pack side), so it must be stripped first. At 3.4+
	// the header is encrypted together with the payload, so it only
	// exists once the ciphertext has been decrypted.
	if cfg.Version.Val() < 3.4 {
		if hasVersionHeader(payload, cfg.Version) {
			payload = removeVersionHeader(payload)
		}
		return c.DecryptECB(payload)
	}

	decrypted, err := c.DecryptECB(payload)
	if err != nil {
		return nil, err
	}
	if hasVersionHeader(decrypted, cfg.Version) {
		decrypted = removeVersionHeader(decrypted)
	}
	return decrypted, nil
}

// scanForPrefix searches r for the next frame prefix (0x55AA or 0x6699)
// using a 4-byte rolling window, matching firmwares that occasionally
// prepend junk bytes before a reply. It gives up after scanning 1024
// bytes without finding a recognized prefix.
func scanForPrefix(r io.Reader) (uint32, error) {
	var window [4]byte
	if _, err := io.ReadFull(r, window[:]); err != nil {
		return 0, tuyaerr.FromIOTimeout(err)
	}

	for scanned := 0; scanned < 1024; scanned++ {
		v := binary.BigEndian.Uint32(window[:])
		if v == model.Prefix55AA || v == model.Prefix6699 {
			return v, nil
		}

		var next [1]byte
		if _, err := io.ReadFull(r, next[:]); err != nil {
			return 0, tuyaerr.FromIOTimeout(err)
		}
		copy(window[:], window[1:])
		window[3] = next[0]
	}

	return 0, fmt.Errorf("tuyalink: no frame prefix found in first 1024 bytes")
}
