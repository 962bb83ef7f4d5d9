package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuyalink/model"
)

func TestGeneratePayloadDpQueryPrimaryDevice(t *testing.T) {
	cfg := model.DeviceConfig{ID: "dev1", Version: model.Version33}

	raw, err := generatePayload(cfg, model.CmdDpQuery, nil, "", "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "dev1", got["gwId"])
	assert.Equal(t, "dev1", got["devId"])
	assert.NotEmpty(t, got["t"])
}

func TestGeneratePayloadControlFlatBelow34(t *testing.T) {
	cfg := model.DeviceConfig{ID: "gw1", Version: model.Version33}

	raw, err := generatePayload(cfg, model.CmdControl, map[string]any{"1": true}, "sub-1", "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "sub-1", got["cid"])
	dps, ok := got["dps"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, dps["1"])
}

func TestGeneratePayloadControlNewNestsAt34(t *testing.T) {
	cfg := model.DeviceConfig{ID: "gw1", Version: model.Version34}

	raw, err := generatePayload(cfg, model.CmdControlNew, map[string]any{"1": true}, "sub-1", "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.EqualValues(t, 5, got["protocol"])
	assert.NotEmpty(t, got["t"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sub-1", data["cid"])
	dps, ok := data["dps"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, dps["1"])
}

func TestGeneratePayloadControlNewDefaultsEmptyDps(t *testing.T) {
	cfg := model.DeviceConfig{ID: "gw1", Version: model.Version33, DevType: model.DevTypeDevice22}

	raw, err := generatePayload(cfg, model.CmdControlNew, nil, "", "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	dps, ok := got["dps"].(map[string]any)
	require.True(t, ok)
	_, hasOne := dps["1"]
	assert.True(t, hasOne)
}

func TestGeneratePayloadLanExtStreamNestsWithReqType(t *testing.T) {
	cfg := model.DeviceConfig{ID: "gw1", Version: model.Version34}

	raw, err := generatePayload(cfg, model.CmdLanExtStream, map[string]any{"cids": []string{}}, "", "subdev_online_stat_query")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "subdev_online_stat_query", got["reqType"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	_, hasCids := data["cids"]
	assert.True(t, hasCids)
}

func TestGeneratePayloadHeartbeatIsGwDevId(t *testing.T) {
	cfg := model.DeviceConfig{ID: "dev1", Version: model.Version31}

	raw, err := generatePayload(cfg, model.CmdHeartBeat, nil, "", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"gwId":"dev1","devId":"dev1"}`, string(raw))
}

func TestGeneratePayloadOmitsTimestampBelow32(t *testing.T) {
	cfg := model.DeviceConfig{ID: "dev1", Version: model.Version31}

	raw, err := generatePayload(cfg, model.CmdDpQuery, nil, "", "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	_, hasT := got["t"]
	assert.False(t, hasT)
}
