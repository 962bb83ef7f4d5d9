package session

import (
	"io"
	"strings"

	"tuyalink/internal/wire"
	"tuyalink/model"
	"tuyalink/pkg/tuyaerr"
)

// readFullPacket reads one complete frame from r: it scans for the next
// recognized prefix, reads the rest of the header, then reads exactly
// TotalLength-4 more bytes (the 4 prefix bytes it already consumed).
func readFullPacket(r io.Reader) ([]byte, error) {
	prefix, err := scanForPrefix(r)
	if err != nil {
		return nil, err
	}

	headerLen := 16
	if prefix == model.Prefix6699 {
		headerLen = 18
	}

	restOfHeader := make([]byte, headerLen-4)
	if _, err := io.ReadFull(r, restOfHeader); err != nil {
		return nil, tuyaerr.FromIOTimeout(err)
	}

	head := make([]byte, 4, headerLen)
	head[0] = byte(prefix >> 24)
	head[1] = byte(prefix >> 16)
	head[2] = byte(prefix >> 8)
	head[3] = byte(prefix)
	head = append(head, restOfHeader...)

	hdr, err := wire.ParseHeader(head)
	if err != nil {
		return nil, err
	}

	rest := make([]byte, int(hdr.TotalLength)-headerLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, tuyaerr.FromIOTimeout(err)
	}

	return append(head, rest...), nil
}

// unpackAndCheckDevice22 unpacks a 0x55AA frame and reports whether the
// payload signals device22 behavior, via either of two independent
// signals: the device's own "data unvalid" error string, or a CRC32
// footer check succeeding only after the retcode-bearing bytes are
// excluded from the payload (older device22 firmwares omit the retcode
// field the rest of the fleet includes).
func unpackAndCheckDevice22(cfg model.DeviceConfig, sessionKey []byte, frame []byte) (model.Message, bool, error) {
	key := frameKey(cfg, sessionKey)

	msg, err := wire.Unpack(frame, wire.UnpackOpts{HMACKey: key})
	if err == nil {
		if strings.Contains(string(msg.Payload), "data unvalid") {
			return msg, true, nil
		}
		return msg, false, nil
	}

	if cfg.DevType == model.DevTypeDevice22 {
		return model.Message{}, true, err
	}

	noRetcode := true
	retryMsg, retryErr := wire.Unpack(frame, wire.UnpackOpts{HMACKey: key, NoRetcode: &noRetcode})
	if retryErr == nil {
		return retryMsg, true, nil
	}

	return model.Message{}, false, err
}
