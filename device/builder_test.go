package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuyalink/model"
)

func TestNewBuilderAppliesDefaults(t *testing.T) {
	b := NewBuilder("dev1", "0123456789ABCDEF")
	assert.Equal(t, "Auto", b.cfg.Address)
	assert.Equal(t, 6668, b.cfg.Port)
	assert.True(t, b.cfg.Persist)
	assert.False(t, b.cfg.Nowait)
}

func TestVersionSetsPseudo32DevType(t *testing.T) {
	b, err := NewBuilder("dev1", "0123456789ABCDEF").Version("3.2")
	require.NoError(t, err)
	assert.Equal(t, model.Version33, b.cfg.Version)
	assert.Equal(t, model.DevTypeDevice22, b.cfg.DevType)
}

func TestVersionRejectsUnknown(t *testing.T) {
	_, err := NewBuilder("dev1", "0123456789ABCDEF").Version("9.9")
	assert.Error(t, err)
}

func TestBuildRejectsShortKey(t *testing.T) {
	_, err := NewBuilder("dev1", "short").Build(nil)
	assert.Error(t, err)
}

func TestBuildRejectsMissingID(t *testing.T) {
	_, err := NewBuilder("", "0123456789ABCDEF").Build(nil)
	assert.Error(t, err)
}
