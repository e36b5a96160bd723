package gate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestStaticGrantsAndDenies(t *testing.T) {
	g, err := NewStatic(map[string][]string{
		"pause":    {admin.Hex()},
		"moderate": {admin.Hex(), stranger.Hex()},
	})
	require.NoError(t, err)

	ok, err := g.HasCapability(admin, domain.CapPause)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.HasCapability(stranger, domain.CapPause)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.HasCapability(stranger, domain.CapModerate)
	require.NoError(t, err)
	assert.True(t, ok)

	// Capability with no allow-list at all.
	ok, err = g.HasCapability(admin, domain.CapParameters)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticRejectsUnknownCapability(t *testing.T) {
	_, err := NewStatic(map[string][]string{"superuser": {admin.Hex()}})
	assert.Error(t, err)
}

func TestStaticRejectsMalformedAddress(t *testing.T) {
	_, err := NewStatic(map[string][]string{"pause": {"not-an-address"}})
	assert.Error(t, err)
}

func TestStaticCapabilityNamesCaseInsensitive(t *testing.T) {
	g, err := NewStatic(map[string][]string{"Pause": {admin.Hex()}})
	require.NoError(t, err)

	ok, err := g.HasCapability(admin, domain.CapPause)
	require.NoError(t, err)
	assert.True(t, ok)
}
