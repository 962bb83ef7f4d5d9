package model

// CommandType is the Tuya protocol command byte. Only the commands the
// session state machine and discovery service issue or recognize are
// named; the wire carries the rest as plain uint32 cmd values.
type CommandType uint32

const (
	CmdApConfig         CommandType = 0x01
	CmdActive           CommandType = 0x02
	CmdSessKeyNegStart  CommandType = 0x03
	CmdSessKeyNegResp   CommandType = 0x04
	CmdSessKeyNegFinish CommandType = 0x05
	CmdUnbind           CommandType = 0x06
	CmdControl          CommandType = 0x07
	CmdStatus           CommandType = 0x08
	CmdHeartBeat        CommandType = 0x09
	CmdDpQuery          CommandType = 0x0A
	CmdQueryWifi        CommandType = 0x0B
	CmdTokenBind        CommandType = 0x0C
	CmdControlNew       CommandType = 0x0D
	CmdEnableWifi       CommandType = 0x0E
	CmdWifiInfo         CommandType = 0x0F
	CmdDpQueryNew       CommandType = 0x10
	CmdSceneExecute     CommandType = 0x11
	CmdUpdateDps        CommandType = 0x12
	CmdUdpNew           CommandType = 0x13
	CmdApConfigNew      CommandType = 0x14
	CmdLanExportConfig  CommandType = 0x22
	CmdLanPublishConfig CommandType = 0x23
	CmdReqDevInfo       CommandType = 0x25
	CmdLanExtStream     CommandType = 0x40
)

// noHeaderCommands is the set of commands sent without the 15-byte
// version-header wrap, at any version >= 3.2.
var noHeaderCommands = map[CommandType]bool{
	CmdDpQuery:          true,
	CmdDpQueryNew:       true,
	CmdUpdateDps:        true,
	CmdHeartBeat:        true,
	CmdSessKeyNegStart:  true,
	CmdSessKeyNegResp:   true,
	CmdSessKeyNegFinish: true,
	CmdLanExtStream:     true,
}

// NeedsVersionHeader reports whether cmd should be wrapped with the
// version-header prefix: added after encryption below 3.4, and before
// encryption at 3.4 and later.
func NeedsVersionHeader(cmd CommandType) bool {
	return !noHeaderCommands[cmd]
}
