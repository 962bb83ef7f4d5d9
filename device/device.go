package device

import (
	"context"

	"tuyalink/internal/bus"
	"tuyalink/internal/session"
	"tuyalink/model"
)

// Device is the public handle to one physical device's session: issuing
// commands, querying status, and subscribing to its broadcast stream.
type Device struct {
	cfg     model.DeviceConfig
	session *session.Session
	bus     *bus.Bus
}

// ID returns the device's id.
func (d *Device) ID() string { return d.cfg.ID }

// Status queries the device's current datapoints.
func (d *Device) Status(ctx context.Context) (map[string]any, error) {
	return d.session.Status(ctx, "")
}

// SetDps sends a batch of datapoint updates and returns the device's ack,
// unless the device was built with Nowait.
func (d *Device) SetDps(ctx context.Context, dps map[string]any) (map[string]any, error) {
	return d.session.SetDps(ctx, dps, "")
}

// SetValue updates a single datapoint.
func (d *Device) SetValue(ctx context.Context, dp string, value any) (map[string]any, error) {
	return d.session.SetValue(ctx, dp, value, "")
}

// Request issues an arbitrary command, for callers that need a command
// Status/SetDps/SetValue don't cover. reqType is carried in the nested
// "protocol 5" envelope some LanExtStream requests use; pass "" when it
// doesn't apply.
func (d *Device) Request(ctx context.Context, cmd model.CommandType, dps any, reqType string) (model.Message, error) {
	return d.session.Request(ctx, cmd, dps, "", reqType)
}

// SubDiscover asks a gateway device which of its attached sub-devices are
// currently online: a LanExtStream request with an empty cids filter and
// the subdev_online_stat_query reqType.
func (d *Device) SubDiscover(ctx context.Context) (model.Message, error) {
	return d.session.Request(ctx, model.CmdLanExtStream, map[string]any{"cids": []string{}}, "", "subdev_online_stat_query")
}

// Listener opens a channel receiving every message (real or synthetic)
// the session publishes for this device. Callers must pass the returned
// channel to Unlisten when done.
func (d *Device) Listener() chan model.Message {
	return d.bus.Listen(d.cfg.ID)
}

// Unlisten detaches a channel previously returned by Listener.
func (d *Device) Unlisten(ch chan model.Message) {
	d.bus.Close(d.cfg.ID, ch)
}

// Sub returns a SubDevice view of one gateway-attached sub-device,
// addressed by its cid. A SubDevice shares its parent's session and
// connection; it does not start a second background goroutine.
func (d *Device) Sub(cid string) *SubDevice {
	return &SubDevice{parent: d, cid: cid}
}

// State reports the session's current connection lifecycle state.
func (d *Device) State() session.State {
	return d.session.State()
}

// LastError reports the most recent connection error, or nil if the
// device has never failed to connect.
func (d *Device) LastError() error {
	return d.session.LastError()
}

// Close forces the current connection closed (a soft disconnect); the
// session reconnects automatically if it was built with Persist (the
// default). Use Stop to tear the session down permanently.
func (d *Device) Close() {
	d.session.Close()
}

// Stop permanently stops the device's session and releases its
// broadcast channel.
func (d *Device) Stop() {
	d.session.Stop()
}

// SubDevice is a thin view of one sub-device attached to a gateway
// Device. It reuses the gateway's session and TCP connection; every
// command it issues carries its cid alongside the gateway's id.
type SubDevice struct {
	parent *Device
	cid    string
}

// ID returns the sub-device's cid.
func (s *SubDevice) ID() string { return s.cid }

// Status queries the sub-device's current datapoints.
func (s *SubDevice) Status(ctx context.Context) (map[string]any, error) {
	return s.parent.session.Status(ctx, s.cid)
}

// SetDps sends a batch of datapoint updates to the sub-device.
func (s *SubDevice) SetDps(ctx context.Context, dps map[string]any) (map[string]any, error) {
	return s.parent.session.SetDps(ctx, dps, s.cid)
}

// SetValue updates a single datapoint on the sub-device.
func (s *SubDevice) SetValue(ctx context.Context, dp string, value any) (map[string]any, error) {
	return s.parent.session.SetValue(ctx, dp, value, s.cid)
}
