package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuyalink/model"
)

func TestPackUnpack55AACRC(t *testing.T) {
	msg := model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   1,
		Cmd:     uint32(model.CmdDpQuery),
		Payload: []byte(`{"gwId":"abc","devId":"abc"}`),
	}

	packed, err := Pack(msg, PackOpts{})
	require.NoError(t, err)

	got, err := Unpack(packed, UnpackOpts{})
	require.NoError(t, err)
	assert.Equal(t, msg.Seqno, got.Seqno)
	assert.Equal(t, msg.Cmd, got.Cmd)
	assert.Equal(t, msg.Payload, got.Payload)
	assert.Nil(t, got.Retcode)
}

func TestPackUnpack55AAHMAC(t *testing.T) {
	key := []byte("0123456789ABCDEF")
	msg := model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   7,
		Cmd:     uint32(model.CmdStatus),
		Payload: []byte(`{"dps":{"1":true}}`),
	}

	packed, err := Pack(msg, PackOpts{HMACKey: key})
	require.NoError(t, err)

	got, err := Unpack(packed, UnpackOpts{HMACKey: key})
	require.NoError(t, err)
	assert.Equal(t, msg.Payload, got.Payload)
}

func TestUnpack55AADetectsCorruptFooter(t *testing.T) {
	msg := model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   1,
		Cmd:     uint32(model.CmdDpQuery),
		Payload: []byte(`{"a":1}`),
	}

	packed, err := Pack(msg, PackOpts{})
	require.NoError(t, err)
	packed[len(packed)-5] ^= 0xFF

	_, err = Unpack(packed, UnpackOpts{})
	assert.Error(t, err)
}

func TestPackUnpack6699GCM(t *testing.T) {
	key := []byte("0123456789ABCDEF")
	iv := bytes.Repeat([]byte{0x09}, 12)
	retcode := uint32(0)

	msg := model.Message{
		Prefix:  model.Prefix6699,
		Seqno:   3,
		Cmd:     uint32(model.CmdDpQuery),
		Retcode: &retcode,
		Payload: []byte(`{"dps":{"1":true}}`),
		IV:      iv,
	}

	packed, err := Pack(msg, PackOpts{HMACKey: key})
	require.NoError(t, err)

	got, err := Unpack(packed, UnpackOpts{HMACKey: key})
	require.NoError(t, err)
	assert.Equal(t, msg.Payload, got.Payload)
	require.NotNil(t, got.Retcode)
	assert.Equal(t, uint32(0), *got.Retcode)
}

func TestParseHeaderRejectsShortData(t *testing.T) {
	_, err := ParseHeader([]byte{0, 1, 2})
	assert.Error(t, err)
}

func TestParseHeaderRejectsUnknownPrefix(t *testing.T) {
	buf := make([]byte, 16)
	buf[0], buf[1], buf[2], buf[3] = 0xde, 0xad, 0xbe, 0xef
	_, err := ParseHeader(buf)
	assert.Error(t, err)
}
