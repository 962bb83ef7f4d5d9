package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuyalink/model"
)

func TestPublishDeliversToListener(t *testing.T) {
	b := New(nil)
	listener := b.Listen("dev-1")
	defer b.Close("dev-1", listener)

	msg := model.Message{Seqno: 1, Cmd: 7, Payload: []byte(`{"ok":true}`)}
	b.Publish("dev-1", msg)

	select {
	case got := <-listener:
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestPublishDoesNotReplayToLateListener(t *testing.T) {
	b := New(nil)
	b.Publish("dev-1", model.Message{Seqno: 1})

	listener := b.Listen("dev-1")
	defer b.Close("dev-1", listener)

	select {
	case got := <-listener:
		t.Fatalf("expected no replay, got %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHasListenersTracksRegistration(t *testing.T) {
	b := New(nil)
	require.False(t, b.HasListeners("dev-1"))

	listener := b.Listen("dev-1")
	assert.True(t, b.HasListeners("dev-1"))

	b.Close("dev-1", listener)
	assert.False(t, b.HasListeners("dev-1"))
}

func TestSynthesizeEncodesCodeAndDetail(t *testing.T) {
	msg := Synthesize(902, "device offline")
	assert.Equal(t, uint32(0), msg.Seqno)
	assert.Equal(t, uint32(0), msg.Cmd)
	assert.Contains(t, string(msg.Payload), `"Err":"902"`)
	assert.Contains(t, string(msg.Payload), "device offline")
}

func TestSynthesizeFrameErrorCarriesRawBytesAndCmd(t *testing.T) {
	msg := SynthesizeFrameError(900, "bad json", []byte{0xde, 0xad}, 10)
	assert.Contains(t, string(msg.Payload), `"Err":"900"`)
	assert.Contains(t, string(msg.Payload), `"data":"dead"`)
	assert.Contains(t, string(msg.Payload), `"cmd":10`)
}

func TestPublishSyntheticReachesListener(t *testing.T) {
	b := New(nil)
	listener := b.Listen("dev-1")
	defer b.Close("dev-1", listener)

	b.PublishSynthetic("dev-1", 902, "timeout")

	select {
	case msg := <-listener:
		assert.Contains(t, string(msg.Payload), "timeout")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for synthetic broadcast")
	}
}

func TestCloseDeviceTearsDownRegardlessOfListenerCount(t *testing.T) {
	b := New(nil)
	l1 := b.Listen("dev-1")
	_ = b.Listen("dev-1")
	defer func() { recover() }() // second listener channel is force-closed by CloseDevice

	b.CloseDevice("dev-1")
	assert.False(t, b.HasListeners("dev-1"))

	_, ok := <-l1
	assert.False(t, ok)
}
