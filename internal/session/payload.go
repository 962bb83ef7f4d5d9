package session

import (
	"encoding/json"
	"strconv"
	"time"

	"tuyalink/model"
)

// basePayload is the envelope every flat-form control/query payload starts
// from before command-specific fields are layered in. Fields are tagged
// omitempty because the exact set present on the wire varies by command
// and protocol version.
type basePayload struct {
	GwID  string `json:"gwId,omitempty"`
	DevID string `json:"devId,omitempty"`
	UID   string `json:"uid,omitempty"`
	T     string `json:"t,omitempty"`
	DpID  []int  `json:"dpId,omitempty"`
	Dps   any    `json:"dps,omitempty"`
	Cid   string `json:"cid,omitempty"`
}

func nowTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// newBasePayload builds the envelope common to every flat outbound
// message: gwId/devId set to the device's id, and t set to the current
// Unix timestamp once the protocol version requires one (3.2 and later).
func newBasePayload(deviceID string, includeTimestamp bool) basePayload {
	p := basePayload{GwID: deviceID, DevID: deviceID}
	if includeTimestamp {
		p.T = nowTimestamp()
	}
	return p
}

// generatePayload builds the JSON body for cmd given dps (for control
// commands), a sub-device id cid (empty for the primary device), and an
// optional reqType that some LanExtStream requests (e.g. sub-device
// discovery) carry alongside their data.
//
// ControlNew and LanExtStream are wrapped in the "protocol 5" envelope
// once the active version is 3.4 or later; every other command, and
// every command below 3.4, uses the flat form.
func generatePayload(cfg model.DeviceConfig, cmd model.CommandType, dps any, cid string, reqType string) ([]byte, error) {
	if cmd == model.CmdHeartBeat {
		return marshalJSON(struct {
			GwID  string `json:"gwId"`
			DevID string `json:"devId"`
		}{GwID: cfg.ID, DevID: cfg.ID})
	}

	if cmd == model.CmdControlNew && dps == nil {
		// device22 firmwares reject an empty ControlNew payload; the
		// original client always sends a throwaway dp in its place.
		dps = map[string]any{"1": nil}
	}

	nested := cfg.Version.Val() >= 3.4 && (cmd == model.CmdControlNew || cmd == model.CmdLanExtStream)

	includeTimestamp := cfg.Version.Val() >= 3.2
	base := newBasePayload(cfg.ID, includeTimestamp)

	switch cmd {
	case model.CmdDpQuery, model.CmdDpQueryNew:
		base.Cid = cid
		return marshalJSON(base)

	case model.CmdControl, model.CmdControlNew:
		if nested {
			return marshalNestedEnvelope(controlData{Cid: cid, Dps: dps}, reqType)
		}
		base.Dps = dps
		base.Cid = cid
		return marshalJSON(base)

	case model.CmdUpdateDps:
		base.Dps = dps
		return marshalJSON(base)

	case model.CmdLanExtStream:
		if nested {
			return marshalNestedEnvelope(dps, reqType)
		}
		base.Dps = dps
		return marshalJSON(base)

	default:
		base.Dps = dps
		base.Cid = cid
		return marshalJSON(base)
	}
}

// controlData is the "data" object a nested ControlNew envelope carries.
type controlData struct {
	Cid string `json:"cid,omitempty"`
	Dps any    `json:"dps,omitempty"`
}

// marshalNestedEnvelope wraps data in the "protocol 5" envelope that
// ControlNew and LanExtStream use at version 3.4+:
// {"protocol":5,"t":<unix_seconds>,"data":{...},"reqType":"..."}.
func marshalNestedEnvelope(data any, reqType string) ([]byte, error) {
	out := struct {
		Protocol int    `json:"protocol"`
		T        int64  `json:"t"`
		Data     any    `json:"data"`
		ReqType  string `json:"reqType,omitempty"`
	}{
		Protocol: 5,
		T:        time.Now().Unix(),
		Data:     data,
		ReqType:  reqType,
	}
	return marshalJSON(out)
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
