package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuyalink/internal/cipher"
	"tuyalink/internal/wire"
	"tuyalink/model"
)

func TestParsePacketPlainJSON(t *testing.T) {
	raw := []byte(`{"gwId":"abc123","ip":"192.168.1.50","version":"3.3","productKey":"pk1"}`)

	res, ok := parsePacket(raw)
	require.True(t, ok)
	assert.Equal(t, "abc123", res.ID)
	assert.Equal(t, "192.168.1.50", res.IP)
	assert.Equal(t, model.Version33, res.Version)
	assert.True(t, res.HasVersion)
}

func TestParsePacketFramedECB(t *testing.T) {
	payload := []byte(`{"gwId":"dev-xyz","ip":"10.0.0.9","version":"3.3"}`)

	c, err := cipher.New(udpKey33)
	require.NoError(t, err)
	encrypted, err := c.EncryptECB(payload)
	require.NoError(t, err)

	msg := model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   1,
		Cmd:     uint32(model.CmdUdpNew),
		Payload: encrypted,
	}
	packed, err := wire.Pack(msg, wire.PackOpts{})
	require.NoError(t, err)

	res, ok := parsePacket(packed)
	require.True(t, ok)
	assert.Equal(t, "dev-xyz", res.ID)
	assert.Equal(t, "10.0.0.9", res.IP)
}

func TestParsePacketFallsBackToEmbeddedJSON(t *testing.T) {
	raw := append([]byte{0x01, 0x02, 0x03}, []byte(`{"gwId":"noise","ip":"1.2.3.4"}`)...)

	res, ok := parsePacket(raw)
	require.True(t, ok)
	assert.Equal(t, "noise", res.ID)
}

func TestParsePacketRejectsGarbage(t *testing.T) {
	_, ok := parsePacket([]byte{0x00, 0x01, 0x02, 0x03, 0x04})
	assert.False(t, ok)
}
