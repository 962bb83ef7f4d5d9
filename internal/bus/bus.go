// Package bus fans out decoded frames and synthetic status/error events to
// every subscriber of a device. It generalizes the teacher's
// internal/verifier/notify service (one broadcast.Broadcaster per id,
// reference-counted listeners) from notification ids to device ids and
// from arbitrary payloads to model.Message.
package bus

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/dustin/go-broadcast"

	"tuyalink/model"
	"tuyalink/pkg/logger"
)

// Bus owns one broadcast.Broadcaster per device id and tracks how many
// listeners are attached to each, so it can release a device's channel
// once nobody is watching it anymore. broadcast.Broadcaster only speaks
// chan interface{}; Bus bridges each registered raw channel to a typed
// chan model.Message so callers never type-assert.
type Bus struct {
	mu            sync.RWMutex
	channels      map[string]broadcast.Broadcaster
	listenerCount map[string]int
	raw           map[chan model.Message]chan interface{}
	log           *logger.Log
}

// New creates an empty Bus.
func New(log *logger.Log) *Bus {
	return &Bus{
		channels:      make(map[string]broadcast.Broadcaster),
		listenerCount: make(map[string]int),
		raw:           make(map[chan model.Message]chan interface{}),
		log:           log,
	}
}

// broadcaster returns (creating if necessary) the Broadcaster for id.
// It takes b.mu for writing itself, so callers must not hold b.mu; the
// map check and creation happen under that one lock, so concurrent
// callers never create two Broadcasters for the same id.
func (b *Bus) broadcaster(id string) broadcast.Broadcaster {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[id]
	if !ok {
		ch = broadcast.NewBroadcaster(64)
		b.channels[id] = ch
	}
	return ch
}

// Publish delivers msg to every current subscriber of id. There's no
// historical replay: a subscriber only sees messages published after it
// calls Listen.
func (b *Bus) Publish(id string, msg model.Message) {
	b.broadcaster(id).Submit(msg)
}

// PublishSynthetic builds and publishes a synthetic event message (seqno
// and cmd both zero, as the wire protocol never assigns real frames that
// pair) carrying an error code and a human-readable detail string. The
// session state machine uses this to surface connection and decode
// failures to subscribers without a corresponding device reply.
func (b *Bus) PublishSynthetic(id string, code int, detail string) {
	b.Publish(id, Synthesize(code, detail))
}

// PublishSyntheticFrame is PublishSynthetic plus the raw frame bytes that
// failed to parse/decrypt and the command they arrived under, hex-encoded
// into the event. The session's reader uses this for ERR_JSON (900)
// events, so subscribers can inspect what the device actually sent.
func (b *Bus) PublishSyntheticFrame(id string, code int, detail string, raw []byte, cmd uint32) {
	b.Publish(id, SynthesizeFrameError(code, detail, raw, cmd))
}

// Synthesize builds a synthetic status/error Message: seqno=0, cmd=0,
// Payload is a small JSON object carrying detail and the stringified
// error code under "Error"/"Err", matching the shape TinyTuya callers
// expect from out-of-band events.
func Synthesize(code int, detail string) model.Message {
	return synthesize(code, detail, "", 0)
}

// SynthesizeFrameError is Synthesize plus the offending frame's raw bytes
// (hex-encoded under "data") and its command (under "cmd").
func SynthesizeFrameError(code int, detail string, raw []byte, cmd uint32) model.Message {
	return synthesize(code, detail, hex.EncodeToString(raw), cmd)
}

func synthesize(code int, detail, rawHex string, cmd uint32) model.Message {
	payload, err := json.Marshal(struct {
		Error string `json:"Error"`
		Err   string `json:"Err"`
		Data  string `json:"data,omitempty"`
		Cmd   uint32 `json:"cmd,omitempty"`
	}{Error: detail, Err: strconv.Itoa(code), Data: rawHex, Cmd: cmd})
	if err != nil {
		// json.Marshal on a plain struct of string/int fields never
		// fails; this is only reached if that stops being true.
		payload = []byte(`{}`)
	}
	return model.Message{
		Prefix:  model.Prefix55AA,
		Seqno:   0,
		Cmd:     0,
		Payload: payload,
	}
}

// Listen opens a channel on id's broadcaster and counts the listener.
// Callers must pass the returned channel to Close when done.
func (b *Bus) Listen(id string) chan model.Message {
	raw := make(chan interface{})
	b.broadcaster(id).Register(raw)

	out := make(chan model.Message)
	go func() {
		defer close(out)
		for v := range raw {
			msg, ok := v.(model.Message)
			if !ok {
				continue
			}
			out <- msg
		}
	}()

	b.mu.Lock()
	b.listenerCount[id]++
	b.raw[out] = raw
	b.mu.Unlock()

	return out
}

// Close detaches listener from id's broadcaster and decrements the
// listener count. Once the count reaches zero the underlying broadcaster
// is dropped; a later Listen call recreates it.
func (b *Bus) Close(id string, listener chan model.Message) {
	b.mu.Lock()
	ch, ok := b.channels[id]
	raw, rawOK := b.raw[listener]
	if rawOK {
		delete(b.raw, listener)
	}
	b.mu.Unlock()
	if !ok || !rawOK {
		return
	}

	ch.Unregister(raw)
	close(raw)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listenerCount[id]--
	if b.listenerCount[id] <= 0 {
		delete(b.listenerCount, id)
		if c, ok := b.channels[id]; ok {
			c.Close()
			delete(b.channels, id)
		}
	}
}

// HasListeners reports whether id currently has any attached listener.
func (b *Bus) HasListeners(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listenerCount[id] > 0
}

// CloseDevice tears down id's broadcaster entirely, regardless of
// listener count. The session state machine calls this when a device is
// permanently stopped.
func (b *Bus) CloseDevice(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[id]; ok {
		ch.Close()
		delete(b.channels, id)
	}
	delete(b.listenerCount, id)
}
