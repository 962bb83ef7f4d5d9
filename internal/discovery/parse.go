package discovery

import (
	"bytes"
	"encoding/json"
	"time"

	"tuyalink/internal/cipher"
	"tuyalink/internal/wire"
	"tuyalink/model"
)

// rawDiscoveryJSON is the subset of fields a discovery broadcast's JSON
// body might carry, across every protocol version.
type rawDiscoveryJSON struct {
	GwID       string `json:"gwId"`
	DevID      string `json:"devId"`
	ID         string `json:"id"`
	IP         string `json:"ip"`
	Version    string `json:"version"`
	ProductKey string `json:"productKey"`
}

func (r rawDiscoveryJSON) deviceID() string {
	switch {
	case r.GwID != "":
		return r.GwID
	case r.DevID != "":
		return r.DevID
	default:
		return r.ID
	}
}

// parsePacket decodes a raw UDP discovery datagram into a DiscoveryResult,
// trying (in order): plain JSON, twelve key/retcode-flag combinations of
// the framed+ECB/GCM protocol, whole-packet ECB decryption, and finally a
// byte-scan for the first '{' in the datagram. It returns false if none
// of these produce a JSON object carrying both an id and an ip.
func parsePacket(data []byte) (model.DiscoveryResult, bool) {
	if res, ok := tryParseJSON(data); ok {
		return res, true
	}

	type attempt struct {
		key       []byte
		noRetcode *bool
	}
	truePtr, falsePtr := boolPtr(true), boolPtr(false)
	attempts := []attempt{
		{udpKey35, truePtr}, {udpKey35, falsePtr}, {udpKey35, nil},
		{udpKey34, truePtr}, {udpKey34, falsePtr}, {udpKey34, nil},
		{udpKey33, truePtr}, {udpKey33, falsePtr}, {udpKey33, nil},
		{nil, truePtr}, {nil, falsePtr}, {nil, nil},
	}

	for _, a := range attempts {
		msg, err := wire.Unpack(data, wire.UnpackOpts{HMACKey: a.key, NoRetcode: a.noRetcode})
		if err != nil || len(msg.Payload) == 0 {
			continue
		}

		if res, ok := tryParseJSON(msg.Payload); ok {
			return res, true
		}

		keysToTry := candidateKeys
		if a.key != nil {
			keysToTry = [][]byte{a.key}
		}
		for _, k := range keysToTry {
			c, err := cipher.New(k)
			if err != nil {
				continue
			}
			decrypted, err := c.DecryptECB(msg.Payload)
			if err != nil {
				continue
			}
			if res, ok := tryParseJSON(decrypted); ok {
				return res, true
			}
		}
	}

	for _, k := range []([]byte){udpKey33, udpKey34} {
		c, err := cipher.New(k)
		if err != nil {
			continue
		}
		decrypted, err := c.DecryptECB(data)
		if err != nil {
			continue
		}
		if res, ok := tryParseJSON(decrypted); ok {
			return res, true
		}
	}

	if idx := bytes.IndexByte(data, '{'); idx >= 0 {
		if res, ok := tryParseJSON(data[idx:]); ok {
			return res, true
		}
	}

	return model.DiscoveryResult{}, false
}

func tryParseJSON(data []byte) (model.DiscoveryResult, bool) {
	var raw rawDiscoveryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.DiscoveryResult{}, false
	}

	id := raw.deviceID()
	if id == "" || raw.IP == "" {
		return model.DiscoveryResult{}, false
	}

	res := model.DiscoveryResult{
		ID:           id,
		IP:           raw.IP,
		ProductKey:   raw.ProductKey,
		DiscoveredAt: time.Now(),
	}
	if v, err := model.ParseVersion(raw.Version); err == nil && raw.Version != "" {
		res.Version = v
		res.HasVersion = true
	}
	return res, true
}

func boolPtr(b bool) *bool { return &b }
