package discovery

import (
	"tuyalink/internal/wire"
	"tuyalink/model"
)

// buildBroadcastProbe builds the active-scan probe datagram for port: a
// plain UDP_NEW frame on 6666/6667, or a GCM-framed REQ_DEV_INFO packet
// on 7000.
func buildBroadcastProbe(port int) ([]byte, error) {
	if port == 7000 {
		return buildReqDevInfoProbe()
	}

	msg := model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   1,
		Cmd:     uint32(model.CmdUdpNew),
		Payload: []byte(`{"from":"app"}`),
	}
	return wire.Pack(msg, wire.PackOpts{})
}

func buildReqDevInfoProbe() ([]byte, error) {
	msg := model.Message{
		Prefix:  model.Prefix6699,
		Seqno:   1,
		Cmd:     uint32(model.CmdReqDevInfo),
		Payload: []byte("{}"),
		IV:      make([]byte, 12),
	}
	return wire.Pack(msg, wire.PackOpts{HMACKey: udpKey35})
}

