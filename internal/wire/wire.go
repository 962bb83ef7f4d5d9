// Package wire implements Tuya's frame codec: packing and parsing the
// 0x55AA (CRC32 or HMAC-SHA256 footer) and 0x6699 (AES-GCM) framings.
// It's a direct port of the packet layer in original_source's protocol
// module, translated from manual byteorder/Cursor plumbing into Go's
// encoding/binary.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"tuyalink/internal/cipher"
	"tuyalink/model"
	"tuyalink/pkg/tuyaerr"
)

const (
	header55AALen = 16
	header6699Len = 18
	footerLen     = 4 // suffix only; CRC/HMAC length is added separately
)

// PackOpts controls how Pack frames a message.
type PackOpts struct {
	// HMACKey selects the footer algorithm for 0x55AA frames: nil means
	// CRC32 (ISO-HDLC), non-nil means HMAC-SHA256. 0x6699 frames always
	// require a non-nil key, since it doubles as the GCM key.
	HMACKey []byte
}

// Pack serializes msg into its on-wire byte form.
func Pack(msg model.Message, opts PackOpts) ([]byte, error) {
	switch msg.Prefix {
	case model.Prefix55AA:
		return pack55AA(msg, opts.HMACKey)
	case model.Prefix6699:
		return pack6699(msg, opts.HMACKey)
	default:
		return nil, fmt.Errorf("tuyalink: unknown frame prefix 0x%08x", msg.Prefix)
	}
}

func pack55AA(msg model.Message, hmacKey []byte) ([]byte, error) {
	footer := 4 + 4 // CRC32 + suffix
	if hmacKey != nil {
		footer = 32 + 4 // HMAC-SHA256 + suffix
	}

	payloadLen := uint32(len(msg.Payload) + footer)

	buf := make([]byte, 0, header55AALen+len(msg.Payload)+footer)
	buf = appendU32(buf, msg.Prefix)
	buf = appendU32(buf, msg.Seqno)
	buf = appendU32(buf, msg.Cmd)
	buf = appendU32(buf, payloadLen)
	buf = append(buf, msg.Payload...)

	if hmacKey != nil {
		mac, err := hmacSHA256(hmacKey, buf)
		if err != nil {
			return nil, err
		}
		buf = append(buf, mac...)
	} else {
		buf = appendU32(buf, crc32.Checksum(buf, crc32.IEEETable))
	}
	buf = appendU32(buf, model.Suffix55AA)

	return buf, nil
}

func pack6699(msg model.Message, key []byte) ([]byte, error) {
	if key == nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED",
			fmt.Errorf("0x6699 frames require a GCM key"))
	}

	raw := make([]byte, 0, 4+len(msg.Payload))
	if msg.Retcode != nil {
		raw = appendU32(raw, *msg.Retcode)
	}
	raw = append(raw, msg.Payload...)

	iv := msg.IV
	if iv == nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED",
			fmt.Errorf("0x6699 frames require a caller-supplied IV"))
	}

	totalPayloadLen := cipher.GCMNonceSize + len(raw) + cipher.GCMTagSize

	header := make([]byte, 0, header6699Len)
	header = appendU32(header, model.Prefix6699)
	header = append(header, 0, 0) // unknown/reserved
	header = appendU32(header, msg.Seqno)
	header = appendU32(header, msg.Cmd)
	header = appendU32(header, uint32(totalPayloadLen))

	c, err := cipher.New(key)
	if err != nil {
		return nil, err
	}
	sealed, err := c.EncryptGCM(raw, iv, header[4:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(header)+len(sealed)+footerLen)
	out = append(out, header...)
	out = append(out, sealed...)
	out = appendU32(out, model.Suffix6699)
	return out, nil
}

// ParseHeader reads the framing header without touching the payload.
func ParseHeader(data []byte) (model.Header, error) {
	if len(data) < header55AALen {
		return model.Header{}, tuyaerr.ErrInvalidHeader
	}

	prefix := binary.BigEndian.Uint32(data[0:4])

	switch prefix {
	case model.Prefix55AA:
		seqno := binary.BigEndian.Uint32(data[4:8])
		cmd := binary.BigEndian.Uint32(data[8:12])
		payloadLen := binary.BigEndian.Uint32(data[12:16])
		return model.Header{
			Prefix:      prefix,
			Seqno:       seqno,
			Cmd:         cmd,
			PayloadLen:  payloadLen,
			TotalLength: payloadLen + header55AALen,
		}, nil

	case model.Prefix6699:
		if len(data) < header6699Len {
			return model.Header{}, tuyaerr.ErrInvalidHeader
		}
		seqno := binary.BigEndian.Uint32(data[6:10])
		cmd := binary.BigEndian.Uint32(data[10:14])
		payloadLen := binary.BigEndian.Uint32(data[14:18])
		return model.Header{
			Prefix:      prefix,
			Seqno:       seqno,
			Cmd:         cmd,
			PayloadLen:  payloadLen,
			TotalLength: payloadLen + header6699Len + footerLen,
		}, nil

	default:
		return model.Header{}, tuyaerr.ErrInvalidHeader
	}
}

// UnpackOpts controls how Unpack parses a frame.
type UnpackOpts struct {
	// HMACKey selects the footer algorithm for 0x55AA frames (nil means
	// CRC32) and supplies the GCM key for 0x6699 frames (required).
	HMACKey []byte
	// Header, if non-nil, is reused instead of re-parsed from data.
	Header *model.Header
	// NoRetcode forces retcode parsing on (false) or off (true). Nil
	// means auto-detect, matching the heuristic devices expect callers
	// to apply when the retcode field is ambiguous.
	NoRetcode *bool
}

// Unpack parses a complete on-wire frame into a Message, verifying its
// footer (CRC32, HMAC, or GCM tag as appropriate).
func Unpack(data []byte, opts UnpackOpts) (model.Message, error) {
	hdr := opts.Header
	if hdr == nil {
		h, err := ParseHeader(data)
		if err != nil {
			return model.Message{}, err
		}
		hdr = &h
	}

	if len(data) < int(hdr.TotalLength) {
		return model.Message{}, fmt.Errorf("tuyalink: frame shorter than declared length (%d < %d)",
			len(data), hdr.TotalLength)
	}

	switch hdr.Prefix {
	case model.Prefix55AA:
		return unpack55AA(data, *hdr, opts.HMACKey, opts.NoRetcode)
	case model.Prefix6699:
		return unpack6699(data, *hdr, opts.HMACKey, opts.NoRetcode)
	default:
		return model.Message{}, tuyaerr.ErrInvalidHeader
	}
}

func unpack55AA(data []byte, hdr model.Header, hmacKey []byte, noRetcode *bool) (model.Message, error) {
	footer := 4 + 4
	if hmacKey != nil {
		footer = 32 + 4
	}

	msgLen := int(hdr.TotalLength)
	payloadEnd := msgLen - footer
	if payloadEnd < header55AALen {
		return model.Message{}, fmt.Errorf("tuyalink: payload end %d before header end %d", payloadEnd, header55AALen)
	}

	payloadStart := header55AALen
	var retcode *uint32

	shouldParseRetcode := false
	switch {
	case noRetcode != nil:
		shouldParseRetcode = !*noRetcode
	default:
		shouldParseRetcode = payloadEnd-payloadStart >= 4 &&
			data[payloadStart] != '{' &&
			(data[payloadStart] == 0 ||
				(payloadEnd-payloadStart > 4 &&
					(data[payloadStart+4] == '{' || data[payloadStart+4] == '3')))
	}

	if shouldParseRetcode && payloadEnd-payloadStart >= 4 {
		rc := binary.BigEndian.Uint32(data[payloadStart : payloadStart+4])
		retcode = &rc
		payloadStart += 4
	}

	payload := append([]byte(nil), data[payloadStart:payloadEnd]...)

	checksumData := data[:payloadEnd]
	footerBytes := data[payloadEnd:msgLen]

	if hmacKey != nil {
		mac, err := hmacSHA256(hmacKey, checksumData)
		if err != nil {
			return model.Message{}, err
		}
		if !hmacEqual(mac, footerBytes[:32]) {
			return model.Message{}, tuyaerr.ErrHmacMismatch
		}
	} else {
		calc := crc32.Checksum(checksumData, crc32.IEEETable)
		recv := binary.BigEndian.Uint32(footerBytes[:4])
		if calc != recv {
			return model.Message{}, tuyaerr.ErrCrcMismatch
		}
	}

	return model.Message{
		Prefix:  hdr.Prefix,
		Seqno:   hdr.Seqno,
		Cmd:     hdr.Cmd,
		Retcode: retcode,
		Payload: payload,
	}, nil
}

func unpack6699(data []byte, hdr model.Header, key []byte, noRetcode *bool) (model.Message, error) {
	if key == nil {
		return model.Message{}, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED",
			fmt.Errorf("0x6699 frames require a GCM key"))
	}

	msgLen := int(hdr.TotalLength)
	payloadWithIVTag := data[header6699Len : msgLen-footerLen]

	if len(payloadWithIVTag) < cipher.GCMNonceSize+cipher.GCMTagSize {
		return model.Message{}, tuyaerr.ErrInvalidPayload
	}

	iv := payloadWithIVTag[:cipher.GCMNonceSize]
	ciphertextWithTag := payloadWithIVTag[cipher.GCMNonceSize:]

	c, err := cipher.New(key)
	if err != nil {
		return model.Message{}, err
	}

	headerBytes := data[4:header6699Len]
	sealed := append(append([]byte(nil), iv...), ciphertextWithTag...)
	decrypted, err := c.DecryptGCM(sealed, headerBytes)
	if err != nil {
		return model.Message{}, err
	}

	payload := decrypted
	var retcode *uint32
	const retcodeLen = 4

	shouldParseRetcode := false
	switch {
	case noRetcode != nil:
		shouldParseRetcode = !*noRetcode
	default:
		shouldParseRetcode = len(payload) >= retcodeLen &&
			payload[0] != '{' &&
			(payload[0] == 0 ||
				(len(payload) > retcodeLen &&
					(payload[retcodeLen] == '{' || payload[retcodeLen] == '3')))
	}

	if shouldParseRetcode && len(payload) >= retcodeLen {
		rc := binary.BigEndian.Uint32(payload[:retcodeLen])
		retcode = &rc
		payload = payload[retcodeLen:]
	}

	return model.Message{
		Prefix:  hdr.Prefix,
		Seqno:   hdr.Seqno,
		Cmd:     hdr.Cmd,
		Retcode: retcode,
		Payload: append([]byte(nil), payload...),
		IV:      append([]byte(nil), iv...),
	}, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
